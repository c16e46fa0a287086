package forward

import (
	"fmt"

	"aeminvert/internal/aem"
)

// Identity returns the conductivity profile itself in every direction.
type Identity struct {
	name   string
	layers int
	times  []float64
}

func NewIdentity(name string, layers int) *Identity {
	if name == "" {
		name = "identity"
	}
	times := make([]float64, layers)
	for i := range times {
		times[i] = float64(i + 1)
	}
	return &Identity{name: name, layers: layers, times: times}
}

func (s *Identity) Name() string { return s.name }

func (s *Identity) WindowTimes() []float64 { return s.times }

func (s *Identity) Forward(_ aem.Geometry, e Earth1D, out *Response) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if len(e.Conductivity) != s.layers {
		return fmt.Errorf("identity system expects %d layers, got %d", s.layers, len(e.Conductivity))
	}
	out.resize(s.layers)
	copy(out.X, e.Conductivity)
	copy(out.Y, e.Conductivity)
	copy(out.Z, e.Conductivity)
	return nil
}
