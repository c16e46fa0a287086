package noise

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"aeminvert/internal/rng"
)

type Kind string

const (
	KindIndependent Kind = "independent"
	KindHyperbolic  Kind = "hyperbolic"
	KindBrodie      Kind = "brodie"
	KindCovariance  Kind = "covariance"
)

// Model turns residuals into a negative log-likelihood for a given noise
// scale lambda. The set of models is closed.
type Model interface {
	Kind() Kind
	// NLL fills normed with the whitened residuals and returns the
	// negative log-likelihood and the log normalisation term.
	NLL(observed, times, residuals []float64, lambda float64, normed []float64) (float64, float64, error)
	// Draw samples a noise realisation for the given observations.
	Draw(s *rng.Stream, observed, times []float64, lambda float64, out []float64) error
	sealed()
}

var ErrSizeMismatch = errors.New("noise model input sizes differ")

// Spec is the YAML form of every model.
type Spec struct {
	Kind     Kind        `yaml:"kind"`
	Sigma    float64     `yaml:"sigma,omitempty"`
	A        float64     `yaml:"a,omitempty"`
	B        float64     `yaml:"b,omitempty"`
	C        float64     `yaml:"c,omitempty"`
	Times    []float64   `yaml:"times,omitempty"`
	Additive []float64   `yaml:"additive,omitempty"`
	Relative float64     `yaml:"relative,omitempty"`
	Matrix   [][]float64 `yaml:"matrix,omitempty"`
}

func Load(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("read noise model %s: %w", path, err)
	}
	m, err := New(spec)
	if err != nil {
		return nil, fmt.Errorf("noise model %s: %w", path, err)
	}
	return m, nil
}

func New(spec Spec) (Model, error) {
	switch spec.Kind {
	case KindIndependent:
		return NewIndependent(spec.Sigma)
	case KindHyperbolic:
		return NewHyperbolic(spec.A, spec.B, spec.C)
	case KindBrodie:
		return NewBrodie(spec.Times, spec.Additive, spec.Relative)
	case KindCovariance:
		return NewCovariance(spec.Matrix)
	default:
		return nil, fmt.Errorf("unknown noise model kind %q", spec.Kind)
	}
}

// diagonal models have a per-sample standard deviation at unit scale.
type diagonal interface {
	sigma(observed, time float64) float64
}

func diagonalNLL(m diagonal, observed, times, residuals []float64, lambda float64, normed []float64) (float64, float64, error) {
	n := len(residuals)
	if len(observed) != n || len(times) != n || len(normed) != n {
		return 0, 0, fmt.Errorf("%w: observed %d, times %d, residuals %d, normed %d", ErrSizeMismatch, len(observed), len(times), n, len(normed))
	}
	nll, logNorm := 0.0, 0.0
	for i, r := range residuals {
		sigma := lambda * m.sigma(observed[i], times[i])
		z := r / sigma
		normed[i] = z
		nll += 0.5 * z * z
		logNorm += math.Log(sigma)
	}
	return nll, logNorm, nil
}

func diagonalDraw(m diagonal, s *rng.Stream, observed, times []float64, lambda float64, out []float64) error {
	if len(observed) != len(times) || len(out) != len(observed) {
		return ErrSizeMismatch
	}
	for i := range out {
		out[i] = s.Normal(0, lambda*m.sigma(observed[i], times[i]))
	}
	return nil
}

type Independent struct {
	Sigma float64
}

func NewIndependent(sigma float64) (*Independent, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("independent noise needs sigma > 0, got %g", sigma)
	}
	return &Independent{Sigma: sigma}, nil
}

func (m *Independent) Kind() Kind { return KindIndependent }
func (m *Independent) sealed() {}
func (m *Independent) sigma(_ float64, _ float64) float64 { return m.Sigma }

func (m *Independent) NLL(observed, times, residuals []float64, lambda float64, normed []float64) (float64, float64, error) {
	return diagonalNLL(m, observed, times, residuals, lambda, normed)
}

func (m *Independent) Draw(s *rng.Stream, observed, times []float64, lambda float64, out []float64) error {
	return diagonalDraw(m, s, observed, times, lambda, out)
}

// Hyperbolic noise decays with window time: sigma = A + B*t^-C.
type Hyperbolic struct {
	A, B, C float64
}

func NewHyperbolic(a, b, c float64) (*Hyperbolic, error) {
	if a < 0 || b < 0 || a+b <= 0 {
		return nil, fmt.Errorf("hyperbolic noise needs a, b >= 0 and a+b > 0")
	}
	return &Hyperbolic{A: a, B: b, C: c}, nil
}

func (m *Hyperbolic) Kind() Kind { return KindHyperbolic }
func (m *Hyperbolic) sealed() {}

func (m *Hyperbolic) sigma(_ float64, t float64) float64 {
	return m.A + m.B*math.Pow(t, -m.C)
}

func (m *Hyperbolic) NLL(observed, times, residuals []float64, lambda float64, normed []float64) (float64, float64, error) {
	return diagonalNLL(m, observed, times, residuals, lambda, normed)
}

func (m *Hyperbolic) Draw(s *rng.Stream, observed, times []float64, lambda float64, out []float64) error {
	return diagonalDraw(m, s, observed, times, lambda, out)
}

// Brodie combines a time-dependent additive floor with a relative term.
type Brodie struct {
	Times    []float64
	Additive []float64
	Relative float64
}

func NewBrodie(times, additive []float64, relative float64) (*Brodie, error) {
	if len(times) == 0 || len(times) != len(additive) {
		return nil, fmt.Errorf("brodie noise needs matching times and additive tables, got %d and %d", len(times), len(additive))
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, errors.New("brodie noise times must increase")
		}
	}
	if relative < 0 {
		return nil, fmt.Errorf("brodie relative noise must be >= 0, got %g", relative)
	}
	// A zero floor gives sigma = 0 wherever the response is zero.
	for i, a := range additive {
		if a <= 0 {
			return nil, fmt.Errorf("brodie additive noise must be > 0, got %g at time %g", a, times[i])
		}
	}
	return &Brodie{Times: times, Additive: additive, Relative: relative}, nil
}

func (m *Brodie) Kind() Kind { return KindBrodie }
func (m *Brodie) sealed() {}

func (m *Brodie) additive(t float64) float64 {
	n := len(m.Times)
	if t <= m.Times[0] {
		return m.Additive[0]
	}
	if t >= m.Times[n-1] {
		return m.Additive[n-1]
	}
	for i := 1; i < n; i++ {
		if t <= m.Times[i] {
			f := (t - m.Times[i-1]) / (m.Times[i] - m.Times[i-1])
			return m.Additive[i-1] + f*(m.Additive[i]-m.Additive[i-1])
		}
	}
	return m.Additive[n-1]
}

func (m *Brodie) sigma(observed, t float64) float64 {
	a := m.additive(t)
	r := m.Relative * observed
	return math.Sqrt(a*a + r*r)
}

func (m *Brodie) NLL(observed, times, residuals []float64, lambda float64, normed []float64) (float64, float64, error) {
	return diagonalNLL(m, observed, times, residuals, lambda, normed)
}

func (m *Brodie) Draw(s *rng.Stream, observed, times []float64, lambda float64, out []float64) error {
	return diagonalDraw(m, s, observed, times, lambda, out)
}
