package forward

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"aeminvert/internal/aem"
)

// Earth1D is one column of the section: conductivity per layer and the
// thickness of every layer but the last.
type Earth1D struct {
	Conductivity []float64
	Thickness    []float64
}

func (e Earth1D) Validate() error {
	if len(e.Conductivity) == 0 {
		return errors.New("earth model has no layers")
	}
	if len(e.Thickness) != len(e.Conductivity)-1 {
		return fmt.Errorf("earth model has %d thicknesses for %d layers", len(e.Thickness), len(e.Conductivity))
	}
	return nil
}

// Response holds the predicted field per direction.
type Response struct {
	X, Y, Z []float64
}

func (r *Response) Component(d aem.Direction) ([]float64, error) {
	switch d {
	case aem.DirectionX:
		return r.X, nil
	case aem.DirectionY:
		return r.Y, nil
	case aem.DirectionZ:
		return r.Z, nil
	default:
		return nil, fmt.Errorf("unknown direction %d", int(d))
	}
}

func (r *Response) resize(n int) {
	r.X = resize(r.X, n)
	r.Y = resize(r.Y, n)
	r.Z = resize(r.Z, n)
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

// System maps a flight geometry and a layered earth to a time-domain
// response. Forward must not retain out.
type System interface {
	Name() string
	WindowTimes() []float64
	Forward(g aem.Geometry, e Earth1D, out *Response) error
}

// Spec is the YAML description of a system.
type Spec struct {
	Kind                  string       `yaml:"kind"`
	Name                  string       `yaml:"name,omitempty"`
	Layers                int          `yaml:"layers,omitempty"`
	Windows               [][2]float64 `yaml:"windows,omitempty"`
	Gain                  float64      `yaml:"gain,omitempty"`
	ReferenceConductivity float64      `yaml:"reference_conductivity,omitempty"`
}

func Load(path string) (System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("read system %s: %w", path, err)
	}
	if spec.Name == "" {
		spec.Name = path
	}
	sys, err := New(spec)
	if err != nil {
		return nil, fmt.Errorf("system %s: %w", path, err)
	}
	return sys, nil
}

func New(spec Spec) (System, error) {
	switch spec.Kind {
	case "identity":
		if spec.Layers < 1 {
			return nil, errors.New("identity system needs layers >= 1")
		}
		return NewIdentity(spec.Name, spec.Layers), nil
	case "kernel":
		windows := spec.Windows
		if len(windows) == 0 {
			windows = DefaultWindows(20, 1e-5, 1e-2)
		}
		return NewKernel(spec.Name, windows, spec.Gain, spec.ReferenceConductivity)
	default:
		return nil, fmt.Errorf("unknown system kind %q", spec.Kind)
	}
}

// DefaultWindows returns n log-spaced gates between t0 and t1 seconds.
func DefaultWindows(n int, t0, t1 float64) [][2]float64 {
	out := make([][2]float64, n)
	step := math.Log(t1/t0) / float64(n)
	for i := range out {
		out[i] = [2]float64{t0 * math.Exp(step*float64(i)), t0 * math.Exp(step*float64(i+1))}
	}
	return out
}
