package aeminvert

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"aeminvert/internal/prior"
	"aeminvert/internal/wavelet"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// InvertRequest is the full configuration of an inversion job. The yaml
// names are the keys accepted by a --config file.
type InvertRequest struct {
	Input        string   `yaml:"input" validate:"required"`
	Systems      []string `yaml:"stm" validate:"required,min=1,dive,required"`
	Hierarchical []string `yaml:"hierarchical" validate:"dive,required"`
	PriorFile    string   `yaml:"prior_file"`
	Initial      string   `yaml:"initial"`
	Output       string   `yaml:"output"`

	DegreeDepth   int     `yaml:"degree_depth" validate:"gte=1,lte=16"`
	DegreeLateral int     `yaml:"degree_lateral" validate:"gte=1,lte=16"`
	Depth         float64 `yaml:"depth" validate:"gt=0"`
	Total         int     `yaml:"total" validate:"gte=0"`

	Seed           int `yaml:"seed"`
	SeedMultiplier int `yaml:"seed_multiplier" validate:"gte=0"`

	Kmax             int     `yaml:"kmax" validate:"gte=1"`
	BirthProbability float64 `yaml:"birth_probability" validate:"gt=0,lte=0.45"`
	PosteriorK       bool    `yaml:"posteriork"`

	WaveletVertical   string `yaml:"wavelet_vertical" validate:"required"`
	WaveletHorizontal string `yaml:"wavelet_horizontal" validate:"required"`

	LambdaStd        float64          `yaml:"lambda_std" validate:"gte=0"`
	LambdaHyperprior prior.Hyperprior `yaml:"lambda_hyperprior"`
	PriorStd         float64          `yaml:"prior_std" validate:"gte=0"`
	PriorHyperprior  prior.Hyperprior `yaml:"prior_hyperprior"`

	Verbosity      int     `yaml:"verbosity" validate:"gte=0"`
	Processes      int     `yaml:"processes" validate:"gte=1"`
	Chains         int     `yaml:"chains" validate:"gte=1"`
	Temperatures   int     `yaml:"temperatures" validate:"gte=1"`
	MaxTemperature float64 `yaml:"max_temperature" validate:"gte=1"`
	ExchangeRate   int     `yaml:"exchange_rate" validate:"gte=0"`

	Resample            bool    `yaml:"resample"`
	ResampleTemperature float64 `yaml:"resample_temperature" validate:"gte=1"`
	ResampleRate        int     `yaml:"resample_rate" validate:"gte=0"`

	HistorySize int `yaml:"history_size" validate:"gte=0"`
}

// DefaultInvertRequest returns the defaults of every tunable.
func DefaultInvertRequest() InvertRequest {
	return InvertRequest{
		DegreeDepth:         5,
		DegreeLateral:       10,
		Depth:               500,
		Total:               10000,
		Seed:                983,
		SeedMultiplier:      101,
		Kmax:                100,
		BirthProbability:    0.05,
		WaveletVertical:     wavelet.CDF97.String(),
		WaveletHorizontal:   wavelet.CDF97.String(),
		Verbosity:           1000,
		Processes:           1,
		Chains:              1,
		Temperatures:        1,
		MaxTemperature:      1000,
		ExchangeRate:        10,
		ResampleTemperature: 1,
	}
}

// LoadInvertRequest overlays a YAML config file on base.
func LoadInvertRequest(path string, base InvertRequest) (InvertRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InvertRequest{}, err
	}
	req := base
	if err := yaml.Unmarshal(data, &req); err != nil {
		return InvertRequest{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return req, nil
}

// Validate checks field ranges and the relations between fields.
func (r *InvertRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if len(r.Hierarchical) != len(r.Systems) {
		return fmt.Errorf("invalid request: %d hierarchical models for %d forward systems", len(r.Hierarchical), len(r.Systems))
	}
	if _, err := wavelet.Parse(r.WaveletVertical); err != nil {
		return fmt.Errorf("invalid request: vertical wavelet: %w", err)
	}
	if _, err := wavelet.Parse(r.WaveletHorizontal); err != nil {
		return fmt.Errorf("invalid request: horizontal wavelet: %w", err)
	}
	if err := r.LambdaHyperprior.Validate(); err != nil {
		return fmt.Errorf("invalid request: lambda hyperprior: %w", err)
	}
	if err := r.PriorHyperprior.Validate(); err != nil {
		return fmt.Errorf("invalid request: prior hyperprior: %w", err)
	}
	if r.PosteriorK && (r.LambdaStd > 0 || r.PriorStd > 0) {
		return errors.New("invalid request: posterior k sampling ignores the data, so hierarchical steps cannot be enabled")
	}
	return nil
}
