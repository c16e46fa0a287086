package sampler

import (
	"context"

	"aeminvert/internal/likelihood"
	"aeminvert/internal/prior"
	"aeminvert/internal/wavetree"
)

// lambdaMove samples the noise scale with a Gaussian random walk, scoring
// the cached residuals instead of rerunning the forward model.
type lambdaMove struct {
	s     *MoveStats
	std   float64
	hyper prior.Hyperprior
}

func (m *lambdaMove) stats() *MoveStats { return m.s }

func (m *lambdaMove) choose(c *Chain) (proposal, error) {
	v := c.state.Lambda + c.rng.Normal(0, m.std)
	if v <= 0 {
		return proposal{depth: -1}, nil
	}
	return proposal{
		valid:    true,
		depth:    -1,
		value:    v,
		old:      c.state.Lambda,
		logExtra: m.hyper.LogDensity(v) - m.hyper.LogDensity(c.state.Lambda),
	}, nil
}

func (m *lambdaMove) apply(*Chain, *proposal) error { return nil }

func (m *lambdaMove) evaluate(ctx context.Context, c *Chain, p *proposal) (likelihood.Result, error) {
	return c.engine.HierarchicalLikelihood(ctx, c.state.Tree, c.state.Lambda, p.value)
}

func (m *lambdaMove) logAcceptance(c *Chain, p *proposal, proposed likelihood.Result) float64 {
	return c.tempered(proposed) + p.logExtra
}

func (m *lambdaMove) commit(c *Chain, p *proposal, proposed likelihood.Result) {
	c.state.Lambda = p.value
	c.state.Current = proposed
	c.engine.AcceptHierarchical()
}

func (m *lambdaMove) revert(*Chain, *proposal) error { return nil }
func (m *lambdaMove) reject(*Chain)                  {}

// priorScaleMove samples the width scale of the non-root coefficient
// priors. Only the prior changes, so no likelihood is evaluated.
type priorScaleMove struct {
	s     *MoveStats
	std   float64
	hyper prior.Hyperprior
}

func (m *priorScaleMove) stats() *MoveStats { return m.s }

func (m *priorScaleMove) choose(c *Chain) (proposal, error) {
	cur := c.state.PriorScale
	v := cur + c.rng.Normal(0, m.std)
	if v <= 0 {
		return proposal{depth: -1}, nil
	}
	tree := c.state.Tree
	ratio := m.hyper.LogDensity(v) - m.hyper.LogDensity(cur)
	for _, idx := range tree.Indices() {
		if idx == wavetree.Root {
			continue
		}
		d := tree.Depth(idx)
		coeff, _ := tree.Value(idx)
		ratio += c.prior.LogDensity(d, coeff, v) - c.prior.LogDensity(d, coeff, cur)
	}
	return proposal{valid: true, depth: -1, value: v, old: cur, logExtra: ratio}, nil
}

func (m *priorScaleMove) apply(*Chain, *proposal) error { return nil }

func (m *priorScaleMove) evaluate(_ context.Context, c *Chain, _ *proposal) (likelihood.Result, error) {
	return c.state.Current, nil
}

func (m *priorScaleMove) logAcceptance(_ *Chain, p *proposal, _ likelihood.Result) float64 {
	return p.logExtra
}

func (m *priorScaleMove) commit(c *Chain, p *proposal, _ likelihood.Result) {
	c.state.PriorScale = p.value
}

func (m *priorScaleMove) revert(*Chain, *proposal) error { return nil }
func (m *priorScaleMove) reject(*Chain)                  {}
