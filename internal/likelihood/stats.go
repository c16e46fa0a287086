package likelihood

import "gonum.org/v1/gonum/mat"

const (
	HistogramBins = 100
	HistogramMin  = -5.0
	HistogramMax  = 5.0
)

// ResidualStats accumulates running summaries of the accepted residuals.
// Means and histograms are per datapoint; covariances are per system,
// treating every point's block as one sample.
type ResidualStats struct {
	N          int
	Mean       []float64
	MeanNormed []float64
	// Histogram holds HistogramBins counts per datapoint.
	Histogram []int

	points    int
	blocks    []int
	CovN      int
	CovMean   [][]float64
	CovMatrix [][]float64

	delta []float64
}

func NewResidualStats(points int, blocks []int) *ResidualStats {
	perColumn, widest := 0, 0
	for _, b := range blocks {
		perColumn += b
		widest = max(widest, b)
	}
	size := points * perColumn
	s := &ResidualStats{
		Mean:       make([]float64, size),
		MeanNormed: make([]float64, size),
		Histogram:  make([]int, size*HistogramBins),
		points:     points,
		blocks:     append([]int(nil), blocks...),
		CovMean:    make([][]float64, len(blocks)),
		CovMatrix:  make([][]float64, len(blocks)),
		delta:      make([]float64, widest),
	}
	for k, b := range blocks {
		s.CovMean[k] = make([]float64, b)
		s.CovMatrix[k] = make([]float64, b*b)
	}
	return s
}

func (s *ResidualStats) Blocks() []int { return s.blocks }

func (s *ResidualStats) updateMean(residual, normed []float64) {
	s.N++
	n := float64(s.N)
	for i, r := range residual {
		s.Mean[i] += (r - s.Mean[i]) / n
		s.MeanNormed[i] += (normed[i] - s.MeanNormed[i]) / n

		bin := int((normed[i] - HistogramMin) / (HistogramMax - HistogramMin) * HistogramBins)
		if bin >= 0 && bin < HistogramBins {
			s.Histogram[i*HistogramBins+bin]++
		}
	}
}

// updateCovariance applies the online population covariance recurrence
// C_n = C_{n-1} + (n-1) d d' - C_{n-1}/n with d = (x - mu_{n-1})/n.
func (s *ResidualStats) updateCovariance(residual []float64) {
	p := 0
	for range s.points {
		s.CovN++
		n := float64(s.CovN)
		for k, size := range s.blocks {
			mu := s.CovMean[k]
			cov := s.CovMatrix[k]
			d := s.delta[:size]
			for j := range d {
				d[j] = (residual[p+j] - mu[j]) / n
				mu[j] += d[j]
			}
			for j := 0; j < size; j++ {
				for l := j; l < size; l++ {
					v := cov[j*size+l] + (n-1)*d[j]*d[l] - cov[j*size+l]/n
					cov[j*size+l] = v
					cov[l*size+j] = v
				}
			}
			p += size
		}
	}
}

// Covariance returns the running covariance of system k.
func (s *ResidualStats) Covariance(k int) *mat.SymDense {
	size := s.blocks[k]
	return mat.NewSymDense(size, append([]float64(nil), s.CovMatrix[k]...))
}
