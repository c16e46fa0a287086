package wavetree

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// CountTable holds log N(k), the number of distinct rooted subtrees of the
// wavelet tree with exactly k active nodes. With a uniform prior on k, the
// prior probability of a particular tree with k nodes is 1/(kmax N(k)).
type CountTable struct {
	kmax int
	logN []float64
}

type shapeKey struct {
	rowLevel, colLevel int
}

func NewCountTable(t *Tree, kmax int) (*CountTable, error) {
	if kmax < 1 {
		return nil, fmt.Errorf("kmax must be >= 1, got %d", kmax)
	}
	kmax = min(kmax, t.Size())
	b := &countBuilder{tree: t, kmax: kmax, memo: make(map[shapeKey][]float64), scratch: make([]float64, kmax+1)}
	return &CountTable{kmax: kmax, logN: b.poly(Root)}, nil
}

func (c *CountTable) Kmax() int { return c.kmax }

func (c *CountTable) LogCount(k int) float64 {
	if k < 0 || k > c.kmax {
		return math.Inf(-1)
	}
	return c.logN[k]
}

// LogBirthRatio is log N(k) - log N(k+1).
func (c *CountTable) LogBirthRatio(k int) float64 {
	return c.LogCount(k) - c.LogCount(k+1)
}

// LogDeathRatio is log N(k) - log N(k-1).
func (c *CountTable) LogDeathRatio(k int) float64 {
	return c.LogCount(k) - c.LogCount(k-1)
}

type countBuilder struct {
	tree    *Tree
	kmax    int
	memo    map[shapeKey][]float64
	scratch []float64
}

// poly returns the log coefficients of the generating polynomial of the
// subtrees rooted at index: P(x) = x * prod over children of (1 + P_c(x)).
// Subtree shape only depends on the levels of the row and column.
func (b *countBuilder) poly(index int) []float64 {
	row, col := b.tree.ToGrid(index)
	key := shapeKey{rowLevel: level(row), colLevel: level(col)}
	if p, ok := b.memo[key]; ok {
		return p
	}

	acc := make([]float64, b.kmax+1)
	for i := range acc {
		acc[i] = math.Inf(-1)
	}
	acc[0] = 0
	for _, child := range b.tree.Children(index) {
		cp := b.poly(child)
		factor := append([]float64(nil), cp...)
		factor[0] = logAdd(factor[0], 0)
		acc = b.multiply(acc, factor)
	}

	out := make([]float64, b.kmax+1)
	out[0] = math.Inf(-1)
	copy(out[1:], acc[:b.kmax])
	b.memo[key] = out
	return out
}

func (b *countBuilder) multiply(x, y []float64) []float64 {
	out := make([]float64, b.kmax+1)
	for n := 0; n <= b.kmax; n++ {
		terms := b.scratch[:0]
		for i := 0; i <= n; i++ {
			if math.IsInf(x[i], -1) || math.IsInf(y[n-i], -1) {
				continue
			}
			terms = append(terms, x[i]+y[n-i])
		}
		if len(terms) == 0 {
			out[n] = math.Inf(-1)
			continue
		}
		out[n] = floats.LogSumExp(terms)
	}
	return out
}

func logAdd(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	return floats.LogSumExp([]float64{a, b})
}
