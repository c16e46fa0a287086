package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeminvert/internal/aem"
	"aeminvert/internal/platform"
	"aeminvert/internal/stats"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

type files struct {
	dir, system, noise, image, obs string
}

func writeInputs(t *testing.T) files {
	t.Helper()
	dir := t.TempDir()
	f := files{
		dir:    dir,
		system: filepath.Join(dir, "identity.yaml"),
		noise:  filepath.Join(dir, "noise.yaml"),
		image:  filepath.Join(dir, "image.txt"),
		obs:    filepath.Join(dir, "obs.txt"),
	}
	require.NoError(t, os.WriteFile(f.system, []byte("kind: identity\nlayers: 8\n"), 0o644))
	require.NoError(t, os.WriteFile(f.noise, []byte("kind: independent\nsigma: 0.001\n"), 0o644))
	im, err := aem.NewImage(8, 4, 200)
	require.NoError(t, err)
	im.Fill(0.1)
	require.NoError(t, im.Save(f.image))

	out, err := execute(t, "synthetic", "--image", f.image, "--stm", f.system, "--noise", f.noise, "--output", f.obs, "--seed", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 4 points")
	return f
}

func invertArgs(f files, prefix string) []string {
	return []string{
		"invert",
		"--input", f.obs,
		"--stm", f.system,
		"-H", f.noise,
		"--output", prefix,
		"-x", "2", "-y", "3", "-d", "200",
		"--wavelet-vertical", "haar",
		"--wavelet-horizontal", "haar",
		"-t", "30", "-k", "8", "-v", "0",
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "aeminvert version "+Version)
}

func TestLikelihoodCommand(t *testing.T) {
	f := writeInputs(t)
	out, err := execute(t, "likelihood", "--input", f.obs, "--stm", f.system, "-H", f.noise, "--image", f.image,
		"--residuals", filepath.Join(f.dir, "res.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "nll "))
	assert.True(t, strings.HasPrefix(lines[1], "lognorm "))
	assert.FileExists(t, filepath.Join(f.dir, "res.txt"))
}

func TestInvertStoresRunInBadger(t *testing.T) {
	f := writeInputs(t)
	prefix := filepath.Join(f.dir, "run-")
	db := filepath.Join(f.dir, "db")

	args := append(invertArgs(f, prefix), "--store", "badger", "--db-path", db)
	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "CHAIN")
	assert.FileExists(t, platform.FileName(prefix, "final_model.txt", 0))

	summary, ok, err := stats.ReadSummary(prefix)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, out, summary.ID)

	out, err = execute(t, "runs", "--store", "badger", "--db-path", db)
	require.NoError(t, err)
	assert.Contains(t, out, summary.ID)
	assert.Contains(t, out, f.obs)
}

func TestInvertFlagsOverrideConfig(t *testing.T) {
	f := writeInputs(t)
	config := filepath.Join(f.dir, "invert.yaml")
	require.NoError(t, os.WriteFile(config, []byte(strings.Join([]string{
		"input: " + f.obs,
		"stm: [" + f.system + "]",
		"hierarchical: [" + f.noise + "]",
		"degree_lateral: 2",
		"degree_depth: 3",
		"depth: 200",
		"wavelet_vertical: haar",
		"wavelet_horizontal: haar",
		"kmax: 9",
		"total: 1000",
		"verbosity: 0",
	}, "\n")), 0o644))

	prefix := filepath.Join(f.dir, "cfg-")
	_, err := execute(t, "invert", "--config", config, "--total", "12", "--output", prefix)
	require.NoError(t, err)

	summary, ok, err := stats.ReadSummary(prefix)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, summary.Request.Total)
	assert.Equal(t, 9, summary.Request.Kmax)
}

func TestInvertReportsInvalidRequest(t *testing.T) {
	_, err := execute(t, "invert", "--total", "10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request")

	_, err = execute(t, "runs")
	assert.ErrorContains(t, err, "no store configured")

	_, err = execute(t, "version", "--log-level", "loud")
	require.NoError(t, err)
	_, err = execute(t, "runs", "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestNewLoggerWritesJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug")
	require.NoError(t, err)
	logger.Debug("hello", "chain", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
	assert.EqualValues(t, 3, line["chain"])

	_, err = parseLevel("verbose")
	assert.Error(t, err)
}
