package wavelet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allIDs = []ID{Haar, Daub4, Daub6, Daub8, CDF97, CDF97Periodic}

func TestStepRoundTrip(t *testing.T) {
	for _, id := range allIDs {
		t.Run(id.String(), func(t *testing.T) {
			step, err := Lookup(id)
			require.NoError(t, err)
			for _, n := range []int{2, 4, 8, 32} {
				x := make([]float64, n)
				for i := range x {
					x[i] = math.Sin(float64(i)*0.7) + 0.1*float64(i)
				}
				orig := append([]float64(nil), x...)
				work := make([]float64, n)
				step.Forward(x, work)
				step.Inverse(x, work)
				assert.InDeltaSlice(t, orig, x, 1e-9, "n=%d", n)
			}
		})
	}
}

func TestStepPreservesConstant(t *testing.T) {
	for _, id := range allIDs {
		step, err := Lookup(id)
		require.NoError(t, err)
		x := []float64{1.5, 1.5, 1.5, 1.5, 1.5, 1.5, 1.5, 1.5}
		step.Forward(x, make([]float64, len(x)))
		for i := 0; i < 4; i++ {
			assert.InDelta(t, 1.5, x[i], 1e-6, "%s low %d", id, i)
			assert.InDelta(t, 0.0, x[4+i], 1e-6, "%s high %d", id, i)
		}
	}
}

func TestTransform2DRoundTrip(t *testing.T) {
	sizes := [][2]int{{1, 1}, {4, 8}, {8, 4}, {16, 16}, {32, 2}, {1, 8}}
	for _, id := range allIDs {
		for _, size := range sizes {
			tr, err := NewTransform2D(size[0], size[1], id, id)
			require.NoError(t, err)
			data := make([]float64, size[0]*size[1])
			for i := range data {
				data[i] = math.Cos(float64(i) * 0.3)
			}
			orig := append([]float64(nil), data...)
			require.NoError(t, tr.Forward(data))
			require.NoError(t, tr.Inverse(data))
			assert.InDeltaSlice(t, orig, data, 1e-8, "%s %v", id, size)
		}
	}
}

func TestTransform2DRootIsMean(t *testing.T) {
	tr, err := NewTransform2D(4, 8, Haar, Haar)
	require.NoError(t, err)
	data := make([]float64, 32)
	sum := 0.0
	for i := range data {
		data[i] = float64(i % 5)
		sum += data[i]
	}
	require.NoError(t, tr.Forward(data))
	assert.InDelta(t, sum/32, data[0], 1e-12)

	coeffs := make([]float64, 32)
	coeffs[0] = -2.0
	require.NoError(t, tr.Inverse(coeffs))
	for _, v := range coeffs {
		assert.InDelta(t, -2.0, v, 1e-12)
	}
}

func TestTransform2DRejectsBadSizes(t *testing.T) {
	_, err := NewTransform2D(6, 4, Haar, Haar)
	assert.Error(t, err)
	_, err = NewTransform2D(4, 4, ID(42), Haar)
	assert.Error(t, err)

	tr, err := NewTransform2D(4, 4, Haar, Haar)
	require.NoError(t, err)
	assert.Error(t, tr.Inverse(make([]float64, 8)))
}

func TestParse(t *testing.T) {
	id, err := Parse("cdf97-periodic")
	require.NoError(t, err)
	assert.Equal(t, CDF97Periodic, id)
	id, err = Parse("2")
	require.NoError(t, err)
	assert.Equal(t, Daub6, id)
	_, err = Parse("mexican-hat")
	assert.Error(t, err)
}
