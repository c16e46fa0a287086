package noise

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"aeminvert/internal/rng"
)

// Covariance is a full noise covariance at unit scale, stored as its
// eigendecomposition.
type Covariance struct {
	size    int
	values  []float64
	vectors *mat.Dense
	logDet  float64
}

func NewCovariance(matrix [][]float64) (*Covariance, error) {
	n := len(matrix)
	if n == 0 {
		return nil, errors.New("covariance noise needs a matrix")
	}
	data := make([]float64, 0, n*n)
	for i, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("covariance row %d has %d values, want %d", i, len(row), n)
		}
		data = append(data, row...)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			if math.Abs(matrix[i][j]-matrix[j][i]) > 1e-12*math.Max(1, math.Abs(matrix[i][j])) {
				return nil, fmt.Errorf("covariance is not symmetric at %d,%d", i, j)
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(n, data), true); !ok {
		return nil, errors.New("covariance eigendecomposition failed")
	}
	values := eig.Values(nil)
	logDet := 0.0
	for k, w := range values {
		if w <= 0 {
			return nil, fmt.Errorf("covariance is not positive definite: eigenvalue %d is %g", k, w)
		}
		logDet += math.Log(w)
	}
	vectors := mat.NewDense(n, n, nil)
	eig.VectorsTo(vectors)
	return &Covariance{size: n, values: values, vectors: vectors, logDet: logDet}, nil
}

func (m *Covariance) Kind() Kind { return KindCovariance }
func (m *Covariance) sealed()    {}

func (m *Covariance) NLL(observed, times, residuals []float64, lambda float64, normed []float64) (float64, float64, error) {
	n := m.size
	if len(residuals) != n || len(normed) != n || len(observed) != n || len(times) != n {
		return 0, 0, fmt.Errorf("%w: covariance is %dx%d, residuals %d", ErrSizeMismatch, n, n, len(residuals))
	}
	nll := 0.0
	for k, w := range m.values {
		proj := 0.0
		for i, r := range residuals {
			proj += m.vectors.At(i, k) * r
		}
		z := proj / (lambda * math.Sqrt(w))
		normed[k] = z
		nll += 0.5 * z * z
	}
	return nll, float64(n)*math.Log(lambda) + 0.5*m.logDet, nil
}

func (m *Covariance) Draw(s *rng.Stream, observed, times []float64, lambda float64, out []float64) error {
	n := m.size
	if len(out) != n || len(observed) != n || len(times) != n {
		return ErrSizeMismatch
	}
	z := make([]float64, n)
	for k, w := range m.values {
		z[k] = s.Normal(0, math.Sqrt(w))
	}
	for i := range out {
		v := 0.0
		for k := range z {
			v += m.vectors.At(i, k) * z[k]
		}
		out[i] = lambda * v
	}
	return nil
}
