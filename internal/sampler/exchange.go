package sampler

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"aeminvert/internal/rng"
)

// ExchangeLogAcceptance is the log acceptance of swapping the states of
// chains at temperatures ti and tj holding energies ei and ej.
func ExchangeLogAcceptance(ti, ei, tj, ej float64) float64 {
	return (1/ti - 1/tj) * (ei - ej)
}

// adjacentPairs pairs chains that sit next to each other on the
// temperature ladder. Chains sharing a temperature are shuffled first, and
// when more than two chains take part a coin picks whether pairing starts
// at the coldest chain or the one after it. partner[i] is -1 for a chain
// left out of this round.
func adjacentPairs(temperatures []float64, s *rng.Stream) []int {
	n := len(temperatures)
	partner := make([]int, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
		partner[i] = -1
	}
	s.Shuffle(order)
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(temperatures[a], temperatures[b]) })
	first := 0
	if n > 2 && s.Uniform() < 0.5 {
		first = 1
	}
	for p := first; p+1 < n; p += 2 {
		a, b := order[p], order[p+1]
		partner[a], partner[b] = b, a
	}
	return partner
}

// gatherEnergies shares (energy, temperature) between chain representatives.
func (c *Chain) gatherEnergies(ctx context.Context) ([]float64, error) {
	n := c.temps.Size()
	counts := make([]int, n)
	offsets := make([]int, n)
	for i := range counts {
		counts[i] = 2
		offsets[i] = 2 * i
	}
	out := make([]float64, 2*n)
	send := []float64{c.state.Current.Energy(), c.state.Temperature}
	if err := c.temps.Allgatherv(ctx, send, out, counts, offsets); err != nil {
		return nil, err
	}
	return out, nil
}

// exchange runs one parallel tempering round. It reports whether this
// chain received a new state.
func (c *Chain) exchange(ctx context.Context) (bool, error) {
	var incoming []byte
	if c.temps != nil && c.temps.Size() > 1 {
		n, me := c.temps.Size(), c.temps.Rank()
		energies, err := c.gatherEnergies(ctx)
		if err != nil {
			return false, fmt.Errorf("exchange: gather energies: %w", err)
		}

		// table[i] is chain i's partner or -1; table[n+i] is 1 on a swap.
		table := make([]int, 2*n)
		if me == 0 {
			temperatures := make([]float64, n)
			for i := range temperatures {
				temperatures[i] = energies[2*i+1]
			}
			copy(table, adjacentPairs(temperatures, c.rng))
			for a := 0; a < n; a++ {
				b := table[a]
				if b < a {
					continue
				}
				alpha := ExchangeLogAcceptance(energies[2*a+1], energies[2*a], energies[2*b+1], energies[2*b])
				if math.Log(c.rng.Uniform()) < alpha {
					table[n+a], table[n+b] = 1, 1
				}
			}
		}
		if err := c.temps.BcastInts(ctx, 0, table); err != nil {
			return false, fmt.Errorf("exchange: share pairs: %w", err)
		}
		states, err := c.temps.AllgatherBytes(ctx, c.state.Encode())
		if err != nil {
			return false, fmt.Errorf("exchange: share states: %w", err)
		}
		if partner := table[me]; partner >= 0 {
			swapped := table[n+me] == 1
			c.exchangeStats.record(-1, swapped)
			if swapped {
				incoming = states[partner]
				c.metrics.Exchange()
			}
		}
	}
	return c.adopt(ctx, incoming)
}

// resample replaces chains with copies drawn in proportion to their
// tempered energies.
func (c *Chain) resample(ctx context.Context) (bool, error) {
	var incoming []byte
	if c.temps != nil && c.temps.Size() > 1 {
		n, me := c.temps.Size(), c.temps.Rank()
		energies, err := c.gatherEnergies(ctx)
		if err != nil {
			return false, fmt.Errorf("resample: gather energies: %w", err)
		}

		table := make([]int, n)
		if me == 0 {
			emin := math.Inf(1)
			for i := 0; i < n; i++ {
				emin = math.Min(emin, energies[2*i])
			}
			weights := make([]float64, n)
			for i := range weights {
				weights[i] = math.Exp(-(energies[2*i] - emin) / c.opts.ResampleTemperature)
			}
			for i := range table {
				if table[i], err = c.rng.Select(weights); err != nil {
					return false, fmt.Errorf("resample: %w", err)
				}
			}
		}
		if err := c.temps.BcastInts(ctx, 0, table); err != nil {
			return false, fmt.Errorf("resample: share sources: %w", err)
		}
		states, err := c.temps.AllgatherBytes(ctx, c.state.Encode())
		if err != nil {
			return false, fmt.Errorf("resample: share states: %w", err)
		}
		src := table[me]
		c.resampleStats.record(-1, src != me)
		if src != me {
			incoming = states[src]
		}
	}
	return c.adopt(ctx, incoming)
}

// adopt spreads a received state from chain rank 0 to the whole chain.
// Cached residuals belong to the old state, so they are invalidated and
// the chain history restarts from the new model.
func (c *Chain) adopt(ctx context.Context, incoming []byte) (bool, error) {
	data, err := c.chain.BcastBytes(ctx, 0, incoming)
	if err != nil {
		return false, fmt.Errorf("share new state: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := c.state.Decode(data); err != nil {
		return false, err
	}
	c.engine.Invalidate()
	if c.history != nil {
		if err := c.history.Initialize(c.state.Tree, c.state.Current.NLL, c.state.Temperature, c.state.Lambda); err != nil {
			return false, err
		}
	}
	return true, nil
}
