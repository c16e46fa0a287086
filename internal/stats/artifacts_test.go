package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aeminvert/internal/likelihood"
	"aeminvert/internal/model"
	"aeminvert/internal/sampler"
	"aeminvert/internal/wavetree"
)

func TestWriteChainArtifacts(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run_")
	tree, err := wavetree.New(2, 3, -2.3)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}

	residuals := likelihood.NewResidualStats(2, []int{2, 1})
	residuals.Mean[0] = 0.5
	residuals.Histogram[3] = 7
	residuals.CovMean[0][1] = 0.25
	residuals.CovMatrix[0][3] = 1.5

	birth := &sampler.MoveStats{Name: "birth", Proposed: 4, Accepted: 1, DepthProposed: []int{0, 4}, DepthAccepted: []int{0, 1}}
	paths, err := WriteChainArtifacts(ChainArtifacts{
		Prefix:     prefix,
		ChainID:    3,
		KHistogram: []int{5, 2, 0},
		Moves:      []*sampler.MoveStats{birth},
		Tree:       tree,
		Residuals:  residuals,
	})
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if len(paths) != 7 {
		t.Fatalf("expected 7 files, got %d: %v", len(paths), paths)
	}
	for _, name := range []string{"khistogram.txt", "acceptance.txt", "final_model.txt", "residuals.txt", "residuals_normed.txt", "residuals_hist.txt", "residuals_cov.txt"} {
		if _, err := os.Stat(prefix + name + "-003"); err != nil {
			t.Fatalf("expected file %s: %v", name, err)
		}
	}

	hist, err := ReadKHistogram(prefix + "khistogram.txt-003")
	if err != nil {
		t.Fatalf("read khistogram: %v", err)
	}
	if len(hist) != 3 || hist[0] != 5 || hist[1] != 2 || hist[2] != 0 {
		t.Fatalf("unexpected khistogram: %v", hist)
	}

	acceptance := readFile(t, prefix+"acceptance.txt-003")
	if acceptance != "birth: 1/4 25.00% [1] 1/4 25.00%\n" {
		t.Fatalf("unexpected acceptance: %q", acceptance)
	}

	loaded, err := wavetree.Load(prefix + "final_model.txt-003")
	if err != nil {
		t.Fatalf("load final model: %v", err)
	}
	if !loaded.Equal(tree) {
		t.Fatal("final model does not round trip")
	}

	lines := strings.Split(readFile(t, prefix+"residuals.txt-003"), "\n")
	if lines[0] != "0.5" || len(lines) != 7 {
		t.Fatalf("unexpected residuals: %q", lines)
	}

	histLines := strings.Split(strings.TrimSpace(readFile(t, prefix+"residuals_hist.txt-003")), "\n")
	if histLines[0] != "6 100 -5.000000 5.000000" {
		t.Fatalf("unexpected histogram header: %q", histLines[0])
	}
	if len(histLines) != 7 {
		t.Fatalf("expected 6 histogram rows, got %d", len(histLines)-1)
	}
	if fields := strings.Fields(histLines[1]); len(fields) != 100 || fields[3] != "7" {
		t.Fatalf("unexpected first histogram row: %v", fields)
	}

	cov := strings.Split(strings.TrimSpace(readFile(t, prefix+"residuals_cov.txt-003")), "\n")
	want := []string{"2", "2", "0 0.25", "0 0", "0 1.5", "1", "0", "0"}
	if len(cov) != len(want) {
		t.Fatalf("unexpected covariance file: %q", cov)
	}
	for i := range want {
		if cov[i] != want[i] {
			t.Fatalf("covariance line %d: got %q want %q", i, cov[i], want[i])
		}
	}
}

func TestWriteChainArtifactsWithoutResiduals(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "k_")
	paths, err := WriteChainArtifacts(ChainArtifacts{Prefix: prefix, KHistogram: []int{1}})
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected khistogram and acceptance only, got %v", paths)
	}
}

func TestReadKHistogramRejectsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.txt")
	if err := os.WriteFile(path, []byte("1 4\n3 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadKHistogram(path); err == nil {
		t.Fatal("expected error for skipped k")
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "out_")
	run := model.RunRecord{
		ID:        "run-1",
		CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Chains:    []model.ChainSummary{{Chain: 0, Temperature: 1, Coefficients: 9}},
	}
	path, err := WriteSummary(prefix, run)
	if err != nil {
		t.Fatalf("write summary: %v", err)
	}
	if path != prefix+"summary.json" {
		t.Fatalf("unexpected summary path: %s", path)
	}
	got, ok, err := ReadSummary(prefix)
	if err != nil || !ok {
		t.Fatalf("read summary: ok=%t err=%v", ok, err)
	}
	if got.ID != "run-1" || got.Chains[0].Coefficients != 9 {
		t.Fatalf("unexpected summary: %+v", got)
	}

	if _, ok, err := ReadSummary(filepath.Join(t.TempDir(), "none_")); err != nil || ok {
		t.Fatalf("expected missing summary, got ok=%t err=%v", ok, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
