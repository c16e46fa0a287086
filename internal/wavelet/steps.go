package wavelet

import "math"

// All steps are normalised so the low-pass output of a constant signal is
// that constant. The root coefficient of a fully transformed image is then
// its mean.

type haar struct{}

func (haar) Forward(x, work []float64) {
	half := len(x) / 2
	for i := 0; i < half; i++ {
		a, b := x[2*i], x[2*i+1]
		d := b - a
		work[i] = a + d/2
		work[half+i] = d
	}
	copy(x, work[:len(x)])
}

func (haar) Inverse(x, work []float64) {
	half := len(x) / 2
	for i := 0; i < half; i++ {
		s, d := x[i], x[half+i]
		a := s - d/2
		work[2*i] = a
		work[2*i+1] = a + d
	}
	copy(x, work[:len(x)])
}

var (
	daub4 = []float64{
		(1 + math.Sqrt(3)) / (4 * math.Sqrt2),
		(3 + math.Sqrt(3)) / (4 * math.Sqrt2),
		(3 - math.Sqrt(3)) / (4 * math.Sqrt2),
		(1 - math.Sqrt(3)) / (4 * math.Sqrt2),
	}
	daub6 = []float64{
		0.3326705529500825,
		0.8068915093110924,
		0.4598775021184914,
		-0.1350110200102546,
		-0.0854412738820267,
		0.0352262918857095,
	}
	daub8 = []float64{
		0.2303778133088964,
		0.7148465705529154,
		0.6308807679298587,
		-0.0279837694168599,
		-0.1870348117190931,
		0.0308413818355607,
		0.0328830116668852,
		-0.0105974017850690,
	}
)

// orthogonal is a periodised Daubechies filter bank.
type orthogonal struct {
	h []float64
	g []float64
}

func newOrthogonal(h []float64) orthogonal {
	n := len(h)
	g := make([]float64, n)
	for k := range h {
		g[k] = h[n-1-k]
		if k%2 == 1 {
			g[k] = -g[k]
		}
	}
	return orthogonal{h: h, g: g}
}

func (o orthogonal) Forward(x, work []float64) {
	n := len(x)
	half := n / 2
	for i := 0; i < half; i++ {
		s, d := 0.0, 0.0
		for k := range o.h {
			v := x[(2*i+k)%n]
			s += o.h[k] * v
			d += o.g[k] * v
		}
		work[i] = s / math.Sqrt2
		work[half+i] = d / math.Sqrt2
	}
	copy(x, work[:n])
}

func (o orthogonal) Inverse(x, work []float64) {
	n := len(x)
	half := n / 2
	for i := range work[:n] {
		work[i] = 0
	}
	for i := 0; i < half; i++ {
		s := x[i] * math.Sqrt2
		d := x[half+i] * math.Sqrt2
		for k := range o.h {
			work[(2*i+k)%n] += o.h[k]*s + o.g[k]*d
		}
	}
	copy(x, work[:n])
}

const (
	cdfA = -1.586134342059924
	cdfB = -0.052980118572961
	cdfC = 0.882911075530934
	cdfD = 0.443506852043971
	cdfK = 1.149604398860241
)

var (
	cdfLowScale  = 1.0 / (1.0 + 2.0*cdfB + 4.0*cdfA*cdfB)
	cdfHighScale = 1.0 / (cdfK * math.Sqrt2)
)

// cdf97 is the lifting form of the CDF 9/7 biorthogonal wavelet with either
// symmetric or periodic boundaries.
type cdf97 struct {
	periodic bool
}

func (c cdf97) left(x []float64, i int) float64 {
	if i > 0 {
		return x[i-1]
	}
	if c.periodic {
		return x[len(x)-1]
	}
	return x[1]
}

func (c cdf97) right(x []float64, i int) float64 {
	if i < len(x)-1 {
		return x[i+1]
	}
	if c.periodic {
		return x[0]
	}
	return x[len(x)-2]
}

func (c cdf97) lift(x []float64, parity int, coeff float64) {
	for i := parity; i < len(x); i += 2 {
		x[i] += coeff * (c.left(x, i) + c.right(x, i))
	}
}

func (c cdf97) Forward(x, work []float64) {
	n := len(x)
	c.lift(x, 1, cdfA)
	c.lift(x, 0, cdfB)
	c.lift(x, 1, cdfC)
	c.lift(x, 0, cdfD)
	half := n / 2
	for i := 0; i < half; i++ {
		work[i] = x[2*i] * cdfLowScale
		work[half+i] = x[2*i+1] * cdfHighScale
	}
	copy(x, work[:n])
}

func (c cdf97) Inverse(x, work []float64) {
	n := len(x)
	half := n / 2
	for i := 0; i < half; i++ {
		work[2*i] = x[i] / cdfLowScale
		work[2*i+1] = x[half+i] / cdfHighScale
	}
	copy(x, work[:n])
	c.lift(x, 0, -cdfD)
	c.lift(x, 1, -cdfC)
	c.lift(x, 0, -cdfB)
	c.lift(x, 1, -cdfA)
}
