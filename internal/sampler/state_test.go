package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeminvert/internal/likelihood"
	"aeminvert/internal/rng"
	"aeminvert/internal/wavetree"
)

func TestStateEncodeKeepsTemperature(t *testing.T) {
	src, err := wavetree.New(2, 3, -1.5)
	require.NoError(t, err)
	children := src.Children(wavetree.Root)
	require.NotEmpty(t, children)
	require.NoError(t, src.ProposeBirth(children[0], 0.25))
	src.Commit()

	in := &State{
		Tree:        src,
		Current:     likelihood.Result{NLL: 12.5, LogNorm: -3.25},
		Lambda:      1.4,
		PriorScale:  0.7,
		Temperature: 8,
	}

	dst, err := wavetree.New(2, 3, 0)
	require.NoError(t, err)
	out := &State{Tree: dst, Temperature: 2}
	require.NoError(t, out.Decode(in.Encode()))

	assert.True(t, src.Equal(out.Tree))
	assert.Equal(t, in.Current, out.Current)
	assert.Equal(t, 1.4, out.Lambda)
	assert.Equal(t, 0.7, out.PriorScale)
	assert.Equal(t, 2.0, out.Temperature)

	assert.Error(t, out.Decode([]byte{1, 2, 3}))
}

func TestExchangeLogAcceptance(t *testing.T) {
	// A hotter chain holding the lower energy always swaps down.
	assert.Positive(t, ExchangeLogAcceptance(1, 100, 10, 50))
	assert.Negative(t, ExchangeLogAcceptance(1, 50, 10, 100))
	assert.InDelta(t, 0.9*50, ExchangeLogAcceptance(1, 100, 10, 50), 1e-12)
	assert.Zero(t, ExchangeLogAcceptance(4, 10, 4, 99))
	assert.InDelta(t, ExchangeLogAcceptance(1, 100, 10, 50), ExchangeLogAcceptance(10, 50, 1, 100), 1e-12)
}

func TestAdjacentPairsStayOnNeighbouringRungs(t *testing.T) {
	rung := map[float64]int{1: 0, 2: 1, 4: 2}
	temperatures := []float64{4, 1, 2, 1, 4, 2}
	s := rng.New(17)

	unpaired := map[int]int{}
	for round := 0; round < 200; round++ {
		partner := adjacentPairs(temperatures, s)
		left := 0
		for a, b := range partner {
			if b < 0 {
				left++
				continue
			}
			require.NotEqual(t, a, b)
			assert.Equal(t, a, partner[b], "round %d: pairing is not symmetric", round)
			d := rung[temperatures[a]] - rung[temperatures[b]]
			assert.LessOrEqual(t, d*d, 1, "round %d: %g paired with %g", round, temperatures[a], temperatures[b])
		}
		unpaired[left]++
	}
	assert.Positive(t, unpaired[0], "pairing from the coldest chain never happened")
	assert.Positive(t, unpaired[2], "pairing from the second chain never happened")
	assert.Len(t, unpaired, 2)

	for round := 0; round < 20; round++ {
		assert.Equal(t, []int{1, 0}, adjacentPairs([]float64{1, 1000}, s))
	}
}

func TestMoveStats(t *testing.T) {
	s := newMoveStats("birth", 3)
	s.record(1, true)
	s.record(1, false)
	s.record(3, false)
	s.record(-1, true)

	assert.Equal(t, 4, s.Proposed)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, []int{0, 2, 0, 1}, s.DepthProposed)
	assert.Equal(t, []int{0, 1, 0, 0}, s.DepthAccepted)
	assert.InDelta(t, 50, s.Rate(), 1e-12)
	assert.Equal(t, "birth: 2/4 50.00%", s.Short())
	assert.Equal(t, "birth: 2/4 50.00% [1] 1/2 50.00% [3] 0/1 0.00%", s.Long())

	assert.Zero(t, newMoveStats("idle", 0).Rate())
}

func TestChoiceProbability(t *testing.T) {
	tree, err := wavetree.New(2, 3, math.Log(0.1))
	require.NoError(t, err)
	cands := tree.BirthCandidates()
	depths := cands.Depths()
	require.NotEmpty(t, depths)
	d := depths[0]
	want := 1 / float64(len(depths)*len(cands[d]))
	assert.InDelta(t, want, choiceProb(cands, d, cands[d][0]), 1e-15)
	assert.Zero(t, choiceProb(cands, d, wavetree.Root))
	assert.Zero(t, choiceProb(cands, -1, cands[d][0]))
}
