package aeminvert

import (
	"context"
	"fmt"

	"aeminvert/internal/aem"
	"aeminvert/internal/forward"
	"aeminvert/internal/rng"
)

// SyntheticRequest turns a conductivity image into an observations file
// flown at one constant geometry.
type SyntheticRequest struct {
	Image    string       `validate:"required"`
	Systems  []string     `validate:"required,min=1,dive,required"`
	Geometry aem.Geometry `validate:"-"`
	// Direction is X, Y or Z; empty means Z.
	Direction string `validate:"omitempty,oneof=X Y Z x y z"`
	// Noise optionally names one noise model per system to draw from.
	Noise  []string `validate:"dive,required"`
	Lambda float64  `validate:"gt=0"`
	Seed   int
	Output string `validate:"required"`
}

func DefaultSyntheticRequest() SyntheticRequest {
	return SyntheticRequest{
		Geometry:  aem.Geometry{TxHeight: 30},
		Direction: "Z",
		Lambda:    1,
		Seed:      983,
	}
}

func (r *SyntheticRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if len(r.Noise) > 0 && len(r.Noise) != len(r.Systems) {
		return fmt.Errorf("invalid request: %d noise models for %d forward systems", len(r.Noise), len(r.Systems))
	}
	return nil
}

// Synthesize writes the response of every image column to req.Output and
// returns the observations written.
func (c *Client) Synthesize(_ context.Context, req SyntheticRequest) (*aem.Observations, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	dir, err := aem.ParseDirection(req.Direction)
	if err != nil {
		return nil, err
	}
	image, err := aem.LoadImage(req.Image)
	if err != nil {
		return nil, err
	}
	systems, err := loadSystems(req.Systems)
	if err != nil {
		return nil, err
	}
	noiseModels, err := loadNoise(req.Noise)
	if err != nil {
		return nil, err
	}

	stream := rng.New(uint64(req.Seed))
	earth := forward.Earth1D{
		Conductivity: make([]float64, image.Rows),
		Thickness:    image.Thickness,
	}
	var pred forward.Response
	obs := &aem.Observations{Points: make([]aem.Point, image.Columns)}
	for col := range obs.Points {
		image.Column(col, earth.Conductivity, nil)
		p := aem.Point{Geometry: req.Geometry}
		for k, sys := range systems {
			if err := sys.Forward(req.Geometry, earth, &pred); err != nil {
				return nil, fmt.Errorf("column %d system %s: %w", col, sys.Name(), err)
			}
			component, err := pred.Component(dir)
			if err != nil {
				return nil, err
			}
			values := append([]float64(nil), component...)
			if len(noiseModels) > 0 {
				draw := make([]float64, len(values))
				if err := noiseModels[k].Draw(stream, values, sys.WindowTimes(), req.Lambda, draw); err != nil {
					return nil, fmt.Errorf("column %d system %s noise: %w", col, sys.Name(), err)
				}
				for i := range values {
					values[i] += draw[i]
				}
			}
			p.Responses = append(p.Responses, aem.Response{Direction: dir, Values: values})
		}
		obs.Points[col] = p
	}

	if err := obs.Save(req.Output); err != nil {
		return nil, err
	}
	c.log.Info("synthetic observations written",
		"output", req.Output,
		"points", len(obs.Points),
		"systems", len(systems),
		"noisy", len(noiseModels) > 0)
	return obs, nil
}
