package platform

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPlacement(t *testing.T) {
	l, err := NewLayout(16, 4, 2, 100, true)
	require.NoError(t, err)
	assert.Equal(t, 8, l.TotalChains())
	assert.Equal(t, 2, l.PerChain())

	cases := []Placement{
		{Rank: 0, ChainID: 0, ChainRank: 0, TemperatureID: 0, Temperature: 1},
		{Rank: 3, ChainID: 1, ChainRank: 1, TemperatureID: 0, Temperature: 1},
		{Rank: 8, ChainID: 4, ChainRank: 0, TemperatureID: 1, Temperature: 100},
		{Rank: 15, ChainID: 7, ChainRank: 1, TemperatureID: 1, Temperature: 100},
	}
	for _, want := range cases {
		got := l.Place(want.Rank)
		assert.Equal(t, want.ChainID, got.ChainID, "rank %d", want.Rank)
		assert.Equal(t, want.ChainRank, got.ChainRank, "rank %d", want.Rank)
		assert.Equal(t, want.TemperatureID, got.TemperatureID, "rank %d", want.Rank)
		assert.InDelta(t, want.Temperature, got.Temperature, 1e-9, "rank %d", want.Rank)
	}
}

func TestTemperatureLadder(t *testing.T) {
	l, err := NewLayout(4, 1, 4, 1000, true)
	require.NoError(t, err)
	for i, want := range []float64{1, 10, 100, 1000} {
		assert.InDelta(t, want, l.Temperature(i), 1e-9)
	}

	single, err := NewLayout(1, 1, 1, 1000, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, single.Temperature(0))
}

func TestLayoutRejections(t *testing.T) {
	cases := []struct {
		name                    string
		processes, chains, temp int
		maxT                    float64
		exchange                bool
	}{
		{"indivisible", 6, 4, 1, 10, false},
		{"odd with exchange", 3, 3, 1, 10, true},
		{"zero chains", 4, 0, 1, 10, false},
		{"no processes", 0, 1, 1, 10, false},
		{"cold max", 2, 2, 1, 0.5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLayout(tc.processes, tc.chains, tc.temp, tc.maxT, tc.exchange)
			assert.ErrorIs(t, err, ErrLayout)
		})
	}

	_, err := NewLayout(3, 3, 1, 10, false)
	assert.NoError(t, err, "odd chain count is fine without exchange")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "out/khistogram.txt-007", FileName("out/", "khistogram.txt", 7))
}

func TestLaunchSplitsCommunicators(t *testing.T) {
	l, err := NewLayout(6, 3, 1, 10, false)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[int]Rank{}
	err = Launch(context.Background(), l, func(ctx context.Context, r Rank) error {
		if err := r.World.Barrier(ctx); err != nil {
			return err
		}
		sum, err := r.Chain.ReduceSum(ctx, 0, float64(r.Rank))
		if err != nil {
			return err
		}
		if r.ChainRank == 0 {
			assert.Equal(t, float64(2*r.Rank+1), sum)
			if assert.NotNil(t, r.Temps) {
				assert.Equal(t, 3, r.Temps.Size())
				assert.Equal(t, r.ChainID, r.Temps.Rank())
			}
		} else {
			assert.Nil(t, r.Temps)
		}
		mu.Lock()
		seen[r.Rank] = r
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 6)
	for rank, r := range seen {
		assert.Equal(t, 2, r.Chain.Size(), "rank %d", rank)
		assert.Equal(t, rank%2, r.Chain.Rank(), "rank %d", rank)
	}
}

func TestLaunchPropagatesFirstError(t *testing.T) {
	l, err := NewLayout(4, 1, 1, 1, false)
	require.NoError(t, err)
	boom := errors.New("boom")
	err = Launch(context.Background(), l, func(ctx context.Context, r Rank) error {
		if r.Rank == 2 {
			return boom
		}
		// Everyone else blocks in a collective until the failure cancels it.
		return r.World.Barrier(ctx)
	})
	assert.ErrorIs(t, err, boom)
}
