package aeminvert

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"aeminvert/internal/aem"
	"aeminvert/internal/likelihood"
	"aeminvert/internal/stats"
	"aeminvert/internal/wavelet"
	"aeminvert/internal/wavetree"
)

// LikelihoodRequest scores one model against the observations. Exactly one
// of Model and Image is set.
type LikelihoodRequest struct {
	Input        string   `validate:"required"`
	Systems      []string `validate:"required,min=1,dive,required"`
	Hierarchical []string `validate:"dive,required"`
	// Model is a saved wavelet tree; Image a linear conductivity section.
	Model string
	Image string

	Depth             float64 `validate:"gte=0"`
	WaveletVertical   string  `validate:"required"`
	WaveletHorizontal string  `validate:"required"`
	Lambda            float64 `validate:"gt=0"`

	// Residuals, when set, receives the raw residual vector.
	Residuals string
}

func DefaultLikelihoodRequest() LikelihoodRequest {
	return LikelihoodRequest{
		Depth:             500,
		WaveletVertical:   wavelet.CDF97.String(),
		WaveletHorizontal: wavelet.CDF97.String(),
		Lambda:            1,
	}
}

type LikelihoodResult struct {
	NLL       float64
	LogNorm   float64
	Residuals string
}

func (r *LikelihoodRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if (r.Model == "") == (r.Image == "") {
		return errors.New("invalid request: exactly one of model and image is required")
	}
	if len(r.Hierarchical) != len(r.Systems) {
		return fmt.Errorf("invalid request: %d noise models for %d forward systems", len(r.Hierarchical), len(r.Systems))
	}
	return nil
}

// Likelihood evaluates a single model sequentially on the calling
// goroutine.
func (c *Client) Likelihood(_ context.Context, req LikelihoodRequest) (LikelihoodResult, error) {
	if err := req.Validate(); err != nil {
		return LikelihoodResult{}, err
	}
	vertical, err := wavelet.Parse(req.WaveletVertical)
	if err != nil {
		return LikelihoodResult{}, err
	}
	horizontal, err := wavelet.Parse(req.WaveletHorizontal)
	if err != nil {
		return LikelihoodResult{}, err
	}
	observations, err := aem.LoadObservations(req.Input)
	if err != nil {
		return LikelihoodResult{}, err
	}
	systems, err := loadSystems(req.Systems)
	if err != nil {
		return LikelihoodResult{}, err
	}
	noiseModels, err := loadNoise(req.Hierarchical)
	if err != nil {
		return LikelihoodResult{}, err
	}

	cfg := likelihood.Config{
		Observations: observations,
		Systems:      systems,
		Noise:        noiseModels,
		Depth:        req.Depth,
		Horizontal:   horizontal,
		Vertical:     vertical,
	}

	var (
		tree  *wavetree.Tree
		image *aem.Image
	)
	if req.Model != "" {
		if tree, err = wavetree.Load(req.Model); err != nil {
			return LikelihoodResult{}, err
		}
		cfg.DegreeX, cfg.DegreeY = tree.DegreeX(), tree.DegreeY()
	} else {
		if image, err = aem.LoadImage(req.Image); err != nil {
			return LikelihoodResult{}, err
		}
		if cfg.DegreeX, err = degree(image.Columns); err != nil {
			return LikelihoodResult{}, fmt.Errorf("image columns: %w", err)
		}
		if cfg.DegreeY, err = degree(image.Rows); err != nil {
			return LikelihoodResult{}, fmt.Errorf("image rows: %w", err)
		}
		cfg.Depth = image.Depth
	}

	engine, err := likelihood.New(cfg, nil)
	if err != nil {
		return LikelihoodResult{}, err
	}
	var res likelihood.Result
	if tree != nil {
		res, err = engine.Likelihood(tree, req.Lambda)
	} else {
		res, err = engine.ImageLikelihood(image, req.Lambda)
	}
	if err != nil {
		return LikelihoodResult{}, err
	}
	c.log.Info("likelihood evaluated", "nll", res.NLL, "log_norm", res.LogNorm)

	out := LikelihoodResult{NLL: res.NLL, LogNorm: res.LogNorm}
	if req.Residuals != "" {
		if err := stats.WriteValues(req.Residuals, engine.Current()); err != nil {
			return LikelihoodResult{}, fmt.Errorf("write residuals: %w", err)
		}
		out.Residuals = req.Residuals
	}
	return out, nil
}

func degree(n int) (int, error) {
	if n < 1 || n&(n-1) != 0 {
		return 0, fmt.Errorf("%d is not a power of two", n)
	}
	return bits.Len(uint(n)) - 1, nil
}
