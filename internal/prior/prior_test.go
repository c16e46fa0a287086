package prior

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeminvert/internal/rng"
)

const sampleFile = `
root:
  prior: {kind: uniform, min: -6, max: 1}
  value: {std: 0.02}
default:
  prior: {kind: laplace, width: 0.5}
  birth: {kind: gaussian, std: 0.2, parent_weight: 0.5}
  value: {std: 0.05}
depths:
  - depth: 2
    prior: {kind: uniform, min: -1, max: 1}
    birth: {kind: prior}
`

func TestParseResolvesPerDepth(t *testing.T) {
	p, err := Parse([]byte(sampleFile), 3)
	require.NoError(t, err)

	lo, hi := p.Range(0, 0, 0, 3, 1)
	assert.Equal(t, -6.0, lo)
	assert.Equal(t, 1.0, hi)
	assert.Equal(t, 0.02, p.ValueStd(0))

	lo, hi = p.Range(1, 1, 1, 3, 1)
	assert.True(t, math.IsInf(lo, -1))
	assert.True(t, math.IsInf(hi, 1))

	lo, hi = p.Range(2, 3, 2, 3, 2)
	assert.Equal(t, -2.0, lo, "scale widens uniform support")
	assert.Equal(t, 2.0, hi)

	assert.InDelta(t, math.Log(0.5)-math.Log(1.0), p.LogDensity(2, 0.3, 1), 1e-12)
	assert.True(t, math.IsInf(p.LogDensity(2, 1.5, 1), -1))
}

func TestDefaultPrior(t *testing.T) {
	p := Default(4)
	lo, hi := p.Range(0, 0, 0, 4, 10)
	assert.InDelta(t, math.Log(ConductivityMin), lo, 1e-12)
	assert.InDelta(t, math.Log(ConductivityMax), hi, 1e-12)
	assert.True(t, p.InSupport(0, math.Log(0.25), 1))
	assert.False(t, p.InSupport(3, 1.5, 1))
}

func TestBirthDensityMatchesDraw(t *testing.T) {
	p, err := Parse([]byte(sampleFile), 3)
	require.NoError(t, err)
	s := rng.New(1)

	v, logq, ok := p.DrawBirth(s, 1, 0.4, 1)
	require.True(t, ok)
	assert.InDelta(t, p.BirthLogDensity(1, 0.4, v, 1), logq, 1e-12)

	v, logq, ok = p.DrawBirth(s, 2, 0.4, 1)
	require.True(t, ok)
	assert.InDelta(t, math.Log(0.5), logq, 1e-12)
	assert.LessOrEqual(t, math.Abs(v), 1.0)
}

func TestDrawValueReportsSupport(t *testing.T) {
	p := Default(2)
	s := rng.New(3)
	outside := 0
	for i := 0; i < 1000; i++ {
		v, ok := p.DrawValue(s, 1, 0.99, 1)
		if !ok {
			outside++
			assert.Greater(t, math.Abs(v), 1.0)
		}
	}
	assert.Positive(t, outside)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("default:\n  prior: {kind: cauchy}\n"), 0o644))
	_, err := Load(bad, 3)
	assert.ErrorContains(t, err, "cauchy")

	_, err = Load(filepath.Join(dir, "missing.yaml"), 3)
	assert.Error(t, err)

	_, err = Parse([]byte("depths:\n  - prior: {kind: uniform, min: 0, max: 1}\n"), 3)
	assert.ErrorContains(t, err, "depth is required")
}

func TestHyperprior(t *testing.T) {
	j := Hyperprior{}
	assert.InDelta(t, -math.Log(2), j.LogDensity(2), 1e-12)
	assert.True(t, math.IsInf(j.LogDensity(-1), -1))

	u := Hyperprior{Kind: "uniform", Min: 0.5, Max: 2}
	require.NoError(t, u.Validate())
	assert.True(t, math.IsInf(u.LogDensity(3), -1))

	assert.Error(t, Hyperprior{Kind: "lognormal"}.Validate())
	assert.Error(t, Hyperprior{Kind: "beta"}.Validate())
}
