package wavetree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counts(t *testing.T, table *CountTable) []float64 {
	t.Helper()
	out := make([]float64, table.Kmax()+1)
	for k := range out {
		out[k] = math.Round(math.Exp(table.LogCount(k)))
	}
	return out
}

func TestCountTableSmallTrees(t *testing.T) {
	square, err := New(1, 1, 0)
	require.NoError(t, err)
	table, err := NewCountTable(square, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, table.Kmax())
	assert.Equal(t, []float64{0, 1, 3, 3, 1}, counts(t, table))

	chain, err := New(2, 0, 0)
	require.NoError(t, err)
	table, err = NewCountTable(chain, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 2, 1}, counts(t, table))

	assert.InDelta(t, math.Log(1.0/2.0), table.LogBirthRatio(2), 1e-12)
	assert.InDelta(t, math.Log(2.0/1.0), table.LogDeathRatio(3), 1e-12)
	assert.True(t, math.IsInf(table.LogBirthRatio(4), 1))
}

func TestCountTableMatchesEnumeration(t *testing.T) {
	tree, err := New(2, 2, 0)
	require.NoError(t, err)
	table, err := NewCountTable(tree, 16)
	require.NoError(t, err)

	n := tree.Size()
	brute := make([]float64, n+1)
	for mask := 0; mask < 1<<n; mask++ {
		if mask&1 == 0 {
			continue
		}
		ok := true
		for idx := 1; idx < n && ok; idx++ {
			if mask&(1<<idx) == 0 {
				continue
			}
			p, _ := tree.Parent(idx)
			ok = mask&(1<<p) != 0
		}
		if ok {
			brute[popcount(mask)]++
		}
	}
	assert.Equal(t, brute, counts(t, table))
}

func TestCountTableRejectsBadKmax(t *testing.T) {
	tree, err := New(1, 1, 0)
	require.NoError(t, err)
	_, err = NewCountTable(tree, 0)
	assert.Error(t, err)
}

func popcount(v int) int {
	n := 0
	for v != 0 {
		n += v & 1
		v >>= 1
	}
	return n
}
