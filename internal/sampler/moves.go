package sampler

import (
	"context"
	"math"

	"aeminvert/internal/likelihood"
	"aeminvert/internal/wavetree"
)

// treeMove holds what birth, death and value moves share: they change
// the tree, need a full likelihood and keep the engine in step.
type treeMove struct {
	s *MoveStats
}

func (m *treeMove) stats() *MoveStats { return m.s }

func (m *treeMove) evaluate(ctx context.Context, c *Chain, _ *proposal) (likelihood.Result, error) {
	return c.engine.LikelihoodDistributed(ctx, c.state.Tree, c.state.Lambda)
}

func (m *treeMove) commit(c *Chain, _ *proposal, proposed likelihood.Result) {
	c.state.Tree.Commit()
	c.state.Current = proposed
	c.engine.Accept()
}

func (m *treeMove) revert(c *Chain, _ *proposal) error {
	if err := c.state.Tree.Undo(); err != nil {
		return err
	}
	c.engine.Reject()
	return nil
}

func (m *treeMove) reject(c *Chain) {
	c.state.Tree.ClearPerturbation()
	c.engine.Reject()
}

// tempered is the likelihood part of every tree move's acceptance.
func (c *Chain) tempered(proposed likelihood.Result) float64 {
	return (c.state.Current.Energy() - proposed.Energy()) / c.state.Temperature
}

// pick draws a depth uniformly among the non-empty ones, then a node at
// that depth. It returns the probability of the choice.
func (c *Chain) pick(cands wavetree.Candidates) (int, int, float64, bool) {
	depths := cands.Depths()
	if len(depths) == 0 {
		return 0, 0, 0, false
	}
	d := depths[c.rng.Intn(len(depths))]
	nodes := cands[d]
	idx := nodes[c.rng.Intn(len(nodes))]
	return idx, d, 1 / float64(len(depths)*len(nodes)), true
}

// choiceProb is the probability pick would select idx at depth d.
func choiceProb(cands wavetree.Candidates, d, idx int) float64 {
	if d < 0 || d >= len(cands) {
		return 0
	}
	found := false
	for _, n := range cands[d] {
		if n == idx {
			found = true
			break
		}
	}
	if !found {
		return 0
	}
	return 1 / float64(len(cands.Depths())*len(cands[d]))
}

type birthMove struct{ treeMove }

func (m *birthMove) choose(c *Chain) (proposal, error) {
	tree := c.state.Tree
	if tree.Count() >= c.counts.Kmax() {
		return proposal{}, nil
	}
	idx, d, prob, ok := c.pick(tree.BirthCandidates())
	if !ok {
		return proposal{}, nil
	}
	parentIdx, _ := tree.Parent(idx)
	parent, _ := tree.Value(parentIdx)
	v, logq, ok := c.prior.DrawBirth(c.rng, d, parent, c.state.PriorScale)
	if !ok {
		return proposal{depth: d}, nil
	}
	return proposal{
		valid:      true,
		index:      idx,
		depth:      d,
		value:      v,
		parent:     parent,
		chooseProb: prob,
		logExtra:   c.prior.LogDensity(d, v, c.state.PriorScale) + c.counts.LogBirthRatio(tree.Count()) - logq,
	}, nil
}

func (m *birthMove) apply(c *Chain, p *proposal) error {
	return c.state.Tree.ProposeBirth(p.index, p.value)
}

func (m *birthMove) logAcceptance(c *Chain, p *proposal, proposed likelihood.Result) float64 {
	// The tree already holds the birth, so the reverse death is scored on
	// the proposed state.
	reverse := choiceProb(c.state.Tree.DeathCandidates(), p.depth, p.index)
	return c.tempered(proposed) + p.logExtra + math.Log(reverse) - math.Log(p.chooseProb)
}

type deathMove struct{ treeMove }

func (m *deathMove) choose(c *Chain) (proposal, error) {
	tree := c.state.Tree
	idx, d, prob, ok := c.pick(tree.DeathCandidates())
	if !ok {
		return proposal{}, nil
	}
	v, _ := tree.Value(idx)
	parentIdx, _ := tree.Parent(idx)
	parent, _ := tree.Value(parentIdx)
	k := tree.Count()
	return proposal{
		valid:      true,
		index:      idx,
		depth:      d,
		value:      v,
		parent:     parent,
		chooseProb: prob,
		logExtra: -c.prior.LogDensity(d, v, c.state.PriorScale) +
			c.counts.LogDeathRatio(k) +
			c.prior.BirthLogDensity(d, parent, v, c.state.PriorScale),
	}, nil
}

func (m *deathMove) apply(c *Chain, p *proposal) error {
	_, err := c.state.Tree.ProposeDeath(p.index)
	return err
}

func (m *deathMove) logAcceptance(c *Chain, p *proposal, proposed likelihood.Result) float64 {
	reverse := choiceProb(c.state.Tree.BirthCandidates(), p.depth, p.index)
	return c.tempered(proposed) + p.logExtra + math.Log(reverse) - math.Log(p.chooseProb)
}

type valueMove struct{ treeMove }

// choose perturbs any active coefficient, the root included.
func (m *valueMove) choose(c *Chain) (proposal, error) {
	tree := c.state.Tree
	indices := tree.Indices()
	idx := indices[c.rng.Intn(len(indices))]
	d := tree.Depth(idx)
	old, _ := tree.Value(idx)
	v, ok := c.prior.DrawValue(c.rng, d, old, c.state.PriorScale)
	if !ok {
		return proposal{depth: d}, nil
	}
	return proposal{
		valid:    true,
		index:    idx,
		depth:    d,
		value:    v,
		old:      old,
		logExtra: c.prior.LogDensity(d, v, c.state.PriorScale) - c.prior.LogDensity(d, old, c.state.PriorScale),
	}, nil
}

func (m *valueMove) apply(c *Chain, p *proposal) error {
	old, err := c.state.Tree.ProposeValue(p.index, p.value)
	p.old = old
	return err
}

func (m *valueMove) logAcceptance(c *Chain, p *proposal, proposed likelihood.Result) float64 {
	return c.tempered(proposed) + p.logExtra
}
