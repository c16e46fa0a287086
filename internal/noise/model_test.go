package noise

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"aeminvert/internal/rng"
)

func TestIndependentNLL(t *testing.T) {
	m, err := NewIndependent(0.1)
	require.NoError(t, err)
	residuals := []float64{0.1, -0.2, 0.05}
	observed := []float64{1, 1, 1}
	times := []float64{1, 2, 3}
	normed := make([]float64, 3)

	nll, logNorm, err := m.NLL(observed, times, residuals, 2, normed)
	require.NoError(t, err)
	sigma := 0.2
	want := 0.0
	for _, r := range residuals {
		want += r * r / (2 * sigma * sigma)
	}
	assert.InDelta(t, want, nll, 1e-12)
	assert.InDelta(t, 3*math.Log(sigma), logNorm, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, -1, 0.25}, normed, 1e-12)

	_, _, err = m.NLL(observed, times, residuals, 1, make([]float64, 2))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestHyperbolicAndBrodieSigma(t *testing.T) {
	h, err := NewHyperbolic(0.01, 0.1, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.01+0.1/2, h.sigma(0, 4), 1e-12)

	b, err := NewBrodie([]float64{1, 3}, []float64{0.1, 0.3}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, b.additive(2), 1e-12)
	assert.InDelta(t, 0.1, b.additive(0.5), 1e-12)
	assert.InDelta(t, 0.3, b.additive(10), 1e-12)
	assert.InDelta(t, math.Sqrt(0.04+0.25), b.sigma(-1, 2), 1e-12)

	_, err = NewBrodie([]float64{1, 1}, []float64{0.1, 0.2}, 0)
	assert.Error(t, err)

	_, err = NewBrodie([]float64{1, 2}, []float64{0, 0}, 0.5)
	assert.ErrorContains(t, err, "additive noise must be > 0")
	_, err = New(Spec{Kind: KindBrodie, Times: []float64{1, 2}, Additive: []float64{0.1, -0.1}, Relative: 0.1})
	assert.Error(t, err)
}

func TestDiagonalCovarianceMatchesIndependent(t *testing.T) {
	ind, err := NewIndependent(0.3)
	require.NoError(t, err)
	cov, err := NewCovariance([][]float64{{0.09, 0, 0}, {0, 0.09, 0}, {0, 0, 0.09}})
	require.NoError(t, err)

	residuals := []float64{0.2, -0.1, 0.4}
	obs := []float64{1, 2, 3}
	times := []float64{1, 2, 3}
	n1 := make([]float64, 3)
	n2 := make([]float64, 3)
	a, la, err := ind.NLL(obs, times, residuals, 1.5, n1)
	require.NoError(t, err)
	b, lb, err := cov.NLL(obs, times, residuals, 1.5, n2)
	require.NoError(t, err)
	assert.InDelta(t, a, b, 1e-12)
	assert.InDelta(t, la, lb, 1e-12)
}

func TestFullCovarianceNLL(t *testing.T) {
	matrix := [][]float64{{2, 0.5}, {0.5, 1}}
	cov, err := NewCovariance(matrix)
	require.NoError(t, err)

	r := []float64{0.3, -0.7}
	lambda := 1.3
	nll, logNorm, err := cov.NLL([]float64{0, 0}, []float64{0, 0}, r, lambda, make([]float64, 2))
	require.NoError(t, err)

	sigma := mat.NewDense(2, 2, []float64{2, 0.5, 0.5, 1})
	var inv mat.Dense
	require.NoError(t, inv.Inverse(sigma))
	rv := mat.NewVecDense(2, r)
	quad := mat.Inner(rv, &inv, rv)
	assert.InDelta(t, 0.5*quad/(lambda*lambda), nll, 1e-10)
	assert.InDelta(t, 2*math.Log(lambda)+0.5*math.Log(mat.Det(sigma)), logNorm, 1e-10)

	_, err = NewCovariance([][]float64{{1, 2}, {2, 1}})
	assert.ErrorContains(t, err, "positive definite")
	_, err = NewCovariance([][]float64{{1, 0.2}, {0.1, 1}})
	assert.ErrorContains(t, err, "symmetric")
}

func TestDrawScalesWithLambda(t *testing.T) {
	m, err := NewIndependent(0.5)
	require.NoError(t, err)
	s := rng.New(9)
	const n = 20000
	obs := make([]float64, n)
	out := make([]float64, n)
	require.NoError(t, m.Draw(s, obs, obs, 2, out))
	sumSq := 0.0
	for _, v := range out {
		sumSq += v * v
	}
	assert.InDelta(t, 1.0, sumSq/n, 0.05)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noise.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: brodie\ntimes: [1, 2]\nadditive: [0.1, 0.05]\nrelative: 0.03\n"), 0o644))
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, KindBrodie, m.Kind())

	require.NoError(t, os.WriteFile(path, []byte("kind: student\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "student")
}
