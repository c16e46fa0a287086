package forward

import (
	"errors"
	"fmt"
	"math"

	"aeminvert/internal/aem"
)

const mu0 = 4e-7 * math.Pi

// Kernel is a linearised layered-sensitivity system. Each gate samples the
// earth with an exponential depth kernel whose scale is the diffusion depth
// at the gate centre time, attenuated by the transmitter height.
type Kernel struct {
	name      string
	times     []float64
	diffusion []float64
	gain      float64
}

func NewKernel(name string, windows [][2]float64, gain, reference float64) (*Kernel, error) {
	if len(windows) == 0 {
		return nil, errors.New("kernel system needs at least one window")
	}
	if gain == 0 {
		gain = 1
	}
	if reference == 0 {
		reference = 0.1
	}
	if reference < 0 {
		return nil, fmt.Errorf("reference conductivity must be positive, got %g", reference)
	}
	if name == "" {
		name = "kernel"
	}
	k := &Kernel{
		name:      name,
		times:     make([]float64, len(windows)),
		diffusion: make([]float64, len(windows)),
		gain:      gain,
	}
	for i, w := range windows {
		if w[0] <= 0 || w[1] < w[0] {
			return nil, fmt.Errorf("window %d [%g, %g] is invalid", i, w[0], w[1])
		}
		t := math.Sqrt(w[0] * w[1])
		k.times[i] = t
		k.diffusion[i] = math.Sqrt(2 * t / (mu0 * reference))
	}
	return k, nil
}

func (s *Kernel) Name() string { return s.name }

func (s *Kernel) WindowTimes() []float64 { return s.times }

func (s *Kernel) Forward(g aem.Geometry, e Earth1D, out *Response) error {
	if err := e.Validate(); err != nil {
		return err
	}
	depths := make([]float64, len(e.Conductivity))
	z := 0.0
	for j := range e.Conductivity {
		depths[j] = z
		if j < len(e.Thickness) {
			z += e.Thickness[j]
		}
	}

	out.resize(len(s.times))
	lateral := g.TxRxDX / math.Sqrt(g.TxRxDX*g.TxRxDX+g.TxRxDZ*g.TxRxDZ+1)
	for i, delta := range s.diffusion {
		sum := 0.0
		for j, sigma := range e.Conductivity {
			w := math.Exp(-depths[j] / delta)
			if j+1 < len(e.Conductivity) {
				w -= math.Exp(-depths[j+1] / delta)
			}
			sum += sigma * w
		}
		z := s.gain * math.Exp(-g.TxHeight/delta) * sum
		out.Z[i] = z
		out.X[i] = z * lateral
		out.Y[i] = 0
	}
	return nil
}
