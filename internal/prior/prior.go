package prior

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"

	"aeminvert/internal/rng"
)

const (
	ConductivityMin = 0.001
	ConductivityMax = 5.0

	defaultValueStd = 0.05
)

type Distribution struct {
	Kind  string  `yaml:"kind"`
	Min   float64 `yaml:"min,omitempty"`
	Max   float64 `yaml:"max,omitempty"`
	Std   float64 `yaml:"std,omitempty"`
	Width float64 `yaml:"width,omitempty"`
}

type BirthSpec struct {
	Kind         string  `yaml:"kind"`
	Std          float64 `yaml:"std,omitempty"`
	ParentWeight float64 `yaml:"parent_weight,omitempty"`
}

type ValueSpec struct {
	Std float64 `yaml:"std"`
}

type Entry struct {
	Depth *int          `yaml:"depth,omitempty"`
	Prior *Distribution `yaml:"prior,omitempty"`
	Birth *BirthSpec    `yaml:"birth,omitempty"`
	Value *ValueSpec    `yaml:"value,omitempty"`
}

// File is the on-disk prior/proposal description.
type File struct {
	Root    Entry   `yaml:"root"`
	Default Entry   `yaml:"default"`
	Depths  []Entry `yaml:"depths,omitempty"`
}

type level struct {
	prior Distribution
	birth BirthSpec
	value ValueSpec
}

// Prior resolves per-depth coefficient priors and proposal kernels. The
// width scale passed to its methods stretches every non-root prior; it is
// the parameter sampled by the hierarchical prior step.
type Prior struct {
	levels []level
}

func Default(maxDepth int) *Prior {
	p, _ := FromFile(File{}, max(maxDepth, 0))
	return p
}

func Load(path string, maxDepth int) (*Prior, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("read prior %s: %w", path, err)
	}
	return p, nil
}

func Parse(data []byte, maxDepth int) (*Prior, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return FromFile(f, maxDepth)
}

func FromFile(f File, maxDepth int) (*Prior, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("max depth %d is negative", maxDepth)
	}
	base := level{
		prior: Distribution{Kind: "uniform", Min: -1, Max: 1},
		birth: BirthSpec{Kind: "prior"},
		value: ValueSpec{Std: defaultValueStd},
	}
	base = merge(base, f.Default)

	levels := make([]level, maxDepth+1)
	for d := range levels {
		levels[d] = base
	}
	levels[0] = merge(level{
		prior: Distribution{Kind: "uniform", Min: math.Log(ConductivityMin), Max: math.Log(ConductivityMax)},
		birth: BirthSpec{Kind: "prior"},
		value: base.value,
	}, f.Root)
	for i, e := range f.Depths {
		if e.Depth == nil {
			return nil, fmt.Errorf("depths[%d]: depth is required", i)
		}
		d := *e.Depth
		if d < 1 || d > maxDepth {
			continue
		}
		levels[d] = merge(levels[d], e)
	}

	for d, l := range levels {
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("depth %d: %w", d, err)
		}
	}
	return &Prior{levels: levels}, nil
}

func merge(l level, e Entry) level {
	if e.Prior != nil {
		l.prior = *e.Prior
	}
	if e.Birth != nil {
		l.birth = *e.Birth
	}
	if e.Value != nil {
		l.value = *e.Value
	}
	return l
}

func (l level) validate() error {
	switch l.prior.Kind {
	case "uniform":
		if !(l.prior.Max > l.prior.Min) {
			return fmt.Errorf("uniform prior needs max > min, got [%g, %g]", l.prior.Min, l.prior.Max)
		}
	case "gaussian":
		if l.prior.Std <= 0 {
			return errors.New("gaussian prior needs std > 0")
		}
	case "laplace":
		if l.prior.Width <= 0 {
			return errors.New("laplace prior needs width > 0")
		}
	default:
		return fmt.Errorf("unknown prior kind %q", l.prior.Kind)
	}
	switch l.birth.Kind {
	case "prior":
	case "gaussian":
		if l.birth.Std <= 0 {
			return errors.New("gaussian birth proposal needs std > 0")
		}
	default:
		return fmt.Errorf("unknown birth proposal kind %q", l.birth.Kind)
	}
	if l.value.Std <= 0 {
		return errors.New("value proposal needs std > 0")
	}
	return nil
}

func (p *Prior) MaxDepth() int { return len(p.levels) - 1 }

func (p *Prior) level(depth int) level {
	if depth < 0 {
		depth = 0
	}
	if depth >= len(p.levels) {
		depth = len(p.levels) - 1
	}
	return p.levels[depth]
}

func effectiveScale(depth int, scale float64) float64 {
	if depth == 0 || scale <= 0 {
		return 1
	}
	return scale
}

// Range returns the support of the prior at a tree position. Unbounded
// priors return infinite limits.
func (p *Prior) Range(_, _, depth, maxDepth int, scale float64) (float64, float64) {
	if depth > maxDepth {
		return 0, 0
	}
	d := p.level(depth).prior
	s := effectiveScale(depth, scale)
	switch d.Kind {
	case "uniform":
		mid := (d.Min + d.Max) / 2
		half := s * (d.Max - d.Min) / 2
		return mid - half, mid + half
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

func (p *Prior) LogDensity(depth int, v, scale float64) float64 {
	d := p.level(depth).prior
	s := effectiveScale(depth, scale)
	switch d.Kind {
	case "uniform":
		lo, hi := p.Range(0, 0, depth, p.MaxDepth(), scale)
		return distuv.Uniform{Min: lo, Max: hi}.LogProb(v)
	case "gaussian":
		return distuv.Normal{Mu: 0, Sigma: d.Std * s}.LogProb(v)
	default:
		return distuv.Laplace{Mu: 0, Scale: d.Width * s}.LogProb(v)
	}
}

func (p *Prior) InSupport(depth int, v, scale float64) bool {
	return !math.IsInf(p.LogDensity(depth, v, scale), -1)
}

func (p *Prior) drawPrior(s *rng.Stream, depth int, scale float64) float64 {
	d := p.level(depth).prior
	sc := effectiveScale(depth, scale)
	switch d.Kind {
	case "uniform":
		lo, hi := p.Range(0, 0, depth, p.MaxDepth(), scale)
		return s.UniformRange(lo, hi)
	case "gaussian":
		return s.Normal(0, d.Std*sc)
	default:
		return s.Laplace(0, d.Width*sc)
	}
}

// DrawBirth proposes a value for a new coefficient given its parent's
// value. It returns the proposal log density and false when the draw falls
// outside the prior support.
func (p *Prior) DrawBirth(s *rng.Stream, depth int, parent, scale float64) (float64, float64, bool) {
	b := p.level(depth).birth
	var v float64
	if b.Kind == "gaussian" {
		v = s.Normal(b.ParentWeight*parent, b.Std)
	} else {
		v = p.drawPrior(s, depth, scale)
	}
	if !p.InSupport(depth, v, scale) {
		return v, math.Inf(-1), false
	}
	return v, p.BirthLogDensity(depth, parent, v, scale), true
}

func (p *Prior) BirthLogDensity(depth int, parent, v, scale float64) float64 {
	b := p.level(depth).birth
	if b.Kind == "gaussian" {
		return distuv.Normal{Mu: b.ParentWeight * parent, Sigma: b.Std}.LogProb(v)
	}
	return p.LogDensity(depth, v, scale)
}

// DrawValue proposes a symmetric random-walk step from current.
func (p *Prior) DrawValue(s *rng.Stream, depth int, current, scale float64) (float64, bool) {
	v := s.Normal(current, p.level(depth).value.Std)
	return v, p.InSupport(depth, v, scale)
}

func (p *Prior) ValueStd(depth int) float64 {
	return p.level(depth).value.Std
}
