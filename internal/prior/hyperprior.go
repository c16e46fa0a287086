package prior

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Hyperprior is the density placed on a positive hyperparameter such as the
// noise scale or the prior width.
type Hyperprior struct {
	Kind  string  `yaml:"kind" json:"kind" validate:"omitempty,oneof=jeffreys lognormal uniform"`
	Mu    float64 `yaml:"mu,omitempty" json:"mu,omitempty"`
	Sigma float64 `yaml:"sigma,omitempty" json:"sigma,omitempty"`
	Min   float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max   float64 `yaml:"max,omitempty" json:"max,omitempty"`
}

func (h Hyperprior) Validate() error {
	switch h.Kind {
	case "", "jeffreys":
	case "lognormal":
		if h.Sigma <= 0 {
			return fmt.Errorf("lognormal hyperprior needs sigma > 0")
		}
	case "uniform":
		if h.Min < 0 || h.Max <= h.Min {
			return fmt.Errorf("uniform hyperprior needs 0 <= min < max")
		}
	default:
		return fmt.Errorf("unknown hyperprior kind %q", h.Kind)
	}
	return nil
}

func (h Hyperprior) LogDensity(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	switch h.Kind {
	case "lognormal":
		return distuv.LogNormal{Mu: h.Mu, Sigma: h.Sigma}.LogProb(x)
	case "uniform":
		return distuv.Uniform{Min: h.Min, Max: h.Max}.LogProb(x)
	default:
		return -math.Log(x)
	}
}
