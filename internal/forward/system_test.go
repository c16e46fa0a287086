package forward

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeminvert/internal/aem"
)

func TestIdentityReturnsProfile(t *testing.T) {
	sys := NewIdentity("", 3)
	var out Response
	earth := Earth1D{Conductivity: []float64{0.1, 0.2, 0.3}, Thickness: []float64{5, 10}}
	require.NoError(t, sys.Forward(aem.Geometry{}, earth, &out))
	z, err := out.Component(aem.DirectionZ)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, z)
	assert.Equal(t, []float64{1, 2, 3}, sys.WindowTimes())

	bad := Earth1D{Conductivity: []float64{0.1, 0.2}, Thickness: []float64{5}}
	assert.Error(t, sys.Forward(aem.Geometry{}, bad, &out))
}

func TestKernelHalfSpaceIsLinear(t *testing.T) {
	sys, err := NewKernel("", DefaultWindows(5, 1e-5, 1e-3), 2, 0.1)
	require.NoError(t, err)
	thick := []float64{10, 20, 40}
	half := Earth1D{Conductivity: []float64{0.1, 0.1, 0.1, 0.1}, Thickness: thick}
	double := Earth1D{Conductivity: []float64{0.2, 0.2, 0.2, 0.2}, Thickness: thick}
	g := aem.Geometry{TxHeight: 0, TxRxDX: 3, TxRxDZ: 4}

	var a, b Response
	require.NoError(t, sys.Forward(g, half, &a))
	require.NoError(t, sys.Forward(g, double, &b))
	for i := range a.Z {
		// the kernel weights of a layered half-space sum to one
		assert.InDelta(t, 2*0.1, a.Z[i], 1e-12)
		assert.InDelta(t, 2*a.Z[i], b.Z[i], 1e-12)
		assert.InDelta(t, a.Z[i]*3/5.0990195135927845, a.X[i], 1e-12)
	}

	high := aem.Geometry{TxHeight: 100}
	var c Response
	require.NoError(t, sys.Forward(high, half, &c))
	assert.Less(t, c.Z[0], a.Z[0])
}

func TestLoadSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: identity\nlayers: 8\n"), 0o644))
	sys, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, sys.WindowTimes(), 8)

	require.NoError(t, os.WriteFile(path, []byte("kind: kernel\nwindows: [[1.0e-5, 2.0e-5], [2.0e-5, 4.0e-5]]\n"), 0o644))
	sys, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, sys.WindowTimes(), 2)

	require.NoError(t, os.WriteFile(path, []byte("kind: tempest\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "tempest")

	_, err = New(Spec{Kind: "kernel", Windows: [][2]float64{{0, 1}}})
	assert.Error(t, err)
}
