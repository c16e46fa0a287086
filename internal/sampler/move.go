package sampler

import (
	"context"
	"fmt"
	"math"

	"aeminvert/internal/likelihood"
)

// proposal is the part of a move that rank 0 decides and broadcasts.
type proposal struct {
	valid bool
	index int
	depth int
	value float64

	// Known on rank 0 only.
	old        float64
	parent     float64
	chooseProb float64
	logExtra   float64
}

// move is one step of the synchronized proposal protocol. choose and
// logAcceptance run on chain rank 0; everything else runs on every rank.
type move interface {
	stats() *MoveStats
	choose(c *Chain) (proposal, error)
	apply(c *Chain, p *proposal) error
	evaluate(ctx context.Context, c *Chain, p *proposal) (likelihood.Result, error)
	logAcceptance(c *Chain, p *proposal, proposed likelihood.Result) float64
	commit(c *Chain, p *proposal, proposed likelihood.Result)
	revert(c *Chain, p *proposal) error
	// reject handles a proposal that was never applied.
	reject(c *Chain)
}

type outcome struct {
	proposal
	accepted bool
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// runProposal drives m through choose, broadcast, apply, evaluate and the
// acceptance decision so that every rank of the chain ends in the same
// state.
func (c *Chain) runProposal(ctx context.Context, m move) (outcome, error) {
	var p proposal
	if c.primary() {
		var err error
		if p, err = m.choose(c); err != nil {
			return outcome{}, err
		}
	}

	msg := c.msg[:4]
	msg[0], msg[1], msg[2], msg[3] = boolFloat(p.valid), float64(p.index), float64(p.depth), p.value
	if err := c.chain.Bcast(ctx, 0, msg); err != nil {
		return outcome{}, fmt.Errorf("%s: share proposal: %w", m.stats().Name, err)
	}
	p.valid, p.index, p.depth, p.value = msg[0] != 0, int(msg[1]), int(msg[2]), msg[3]

	if !p.valid {
		m.stats().record(-1, false)
		c.metrics.Proposal(m.stats().Name, false)
		m.reject(c)
		return outcome{proposal: p}, nil
	}

	if err := m.apply(c, &p); err != nil {
		return outcome{}, fmt.Errorf("%s: apply: %w", m.stats().Name, err)
	}
	proposed, err := m.evaluate(ctx, c, &p)
	if err != nil {
		return outcome{}, fmt.Errorf("%s: evaluate: %w", m.stats().Name, err)
	}

	msg = c.msg[:1]
	if c.primary() {
		alpha := m.logAcceptance(c, &p, proposed)
		msg[0] = boolFloat(math.Log(c.rng.Uniform()) < alpha)
	}
	if err := c.chain.Bcast(ctx, 0, msg); err != nil {
		return outcome{}, fmt.Errorf("%s: share decision: %w", m.stats().Name, err)
	}
	accepted := msg[0] != 0

	if accepted {
		m.commit(c, &p, proposed)
	} else if err := m.revert(c, &p); err != nil {
		return outcome{}, fmt.Errorf("%s: revert: %w", m.stats().Name, err)
	}
	m.stats().record(p.depth, accepted)
	c.metrics.Proposal(m.stats().Name, accepted)
	return outcome{proposal: p, accepted: accepted}, nil
}
