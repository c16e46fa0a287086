package stats

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"aeminvert/internal/likelihood"
	"aeminvert/internal/model"
	"aeminvert/internal/platform"
	"aeminvert/internal/sampler"
	"aeminvert/internal/wavetree"
)

const summaryFile = "summary.json"

// ChainArtifacts is what chain rank 0 writes when its chain finishes.
type ChainArtifacts struct {
	Prefix     string
	ChainID    int
	KHistogram []int
	Moves      []*sampler.MoveStats
	Tree       *wavetree.Tree
	// Residuals is nil when residual tracking is off.
	Residuals *likelihood.ResidualStats
}

// WriteChainArtifacts writes every per-chain output file and returns
// their paths.
func WriteChainArtifacts(a ChainArtifacts) ([]string, error) {
	var written []string
	write := func(name string, fn func(path string) error) error {
		path := platform.FileName(a.Prefix, name, a.ChainID)
		if err := fn(path); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	if err := write("khistogram.txt", func(p string) error { return WriteKHistogram(p, a.KHistogram) }); err != nil {
		return written, err
	}
	if err := write("acceptance.txt", func(p string) error { return WriteAcceptance(p, a.Moves) }); err != nil {
		return written, err
	}
	if a.Tree != nil {
		if err := write("final_model.txt", a.Tree.Save); err != nil {
			return written, err
		}
	}
	if r := a.Residuals; r != nil {
		if err := write("residuals.txt", func(p string) error { return WriteValues(p, r.Mean) }); err != nil {
			return written, err
		}
		if err := write("residuals_normed.txt", func(p string) error { return WriteValues(p, r.MeanNormed) }); err != nil {
			return written, err
		}
		if err := write("residuals_hist.txt", func(p string) error { return WriteResidualHistogram(p, r) }); err != nil {
			return written, err
		}
		if err := write("residuals_cov.txt", func(p string) error { return WriteResidualCovariance(p, r) }); err != nil {
			return written, err
		}
	}
	return written, nil
}

func writeLines(path string, fn func(w *bufio.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := fn(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}

// WriteKHistogram writes one "k count" line per k from 1 to kmax.
func WriteKHistogram(path string, hist []int) error {
	return writeLines(path, func(w *bufio.Writer) error {
		for i, n := range hist {
			if _, err := fmt.Fprintf(w, "%d %d\n", i+1, n); err != nil {
				return err
			}
		}
		return nil
	})
}

func ReadKHistogram(path string) ([]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var hist []int
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("read khistogram %s: line %d: want 2 fields, got %d", path, line, len(fields))
		}
		k, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("read khistogram %s: line %d: %w", path, line, err)
		}
		if k != len(hist)+1 {
			return nil, fmt.Errorf("read khistogram %s: line %d: expected k=%d, got %d", path, line, len(hist)+1, k)
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("read khistogram %s: line %d: %w", path, line, err)
		}
		hist = append(hist, n)
	}
	return hist, scanner.Err()
}

// WriteAcceptance writes the per-depth statistics of each move, one move
// per line.
func WriteAcceptance(path string, moves []*sampler.MoveStats) error {
	return writeLines(path, func(w *bufio.Writer) error {
		for _, m := range moves {
			if _, err := fmt.Fprintln(w, m.Long()); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteValues writes one value per line.
func WriteValues(path string, values []float64) error {
	return writeLines(path, func(w *bufio.Writer) error {
		for _, v := range values {
			if _, err := fmt.Fprintf(w, "%.9g\n", v); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteResidualHistogram writes a "size bins min max" header followed by
// one row of bin counts per datapoint.
func WriteResidualHistogram(path string, r *likelihood.ResidualStats) error {
	size := len(r.Mean)
	return writeLines(path, func(w *bufio.Writer) error {
		if _, err := fmt.Fprintf(w, "%d %d %f %f\n", size, likelihood.HistogramBins, likelihood.HistogramMin, likelihood.HistogramMax); err != nil {
			return err
		}
		for i := 0; i < size; i++ {
			row := r.Histogram[i*likelihood.HistogramBins : (i+1)*likelihood.HistogramBins]
			for j, n := range row {
				if j > 0 {
					w.WriteByte(' ')
				}
				w.WriteString(strconv.Itoa(n))
			}
			w.WriteByte('\n')
		}
		return nil
	})
}

// WriteResidualCovariance writes the block count, then for each system
// block its size, mean row and covariance matrix. Write errors surface
// from the final flush.
func WriteResidualCovariance(path string, r *likelihood.ResidualStats) error {
	blocks := r.Blocks()
	return writeLines(path, func(w *bufio.Writer) error {
		fmt.Fprintf(w, "%d\n", len(blocks))
		for k, n := range blocks {
			fmt.Fprintf(w, "%d\n", n)
			writeRow(w, r.CovMean[k])
			for j := 0; j < n; j++ {
				writeRow(w, r.CovMatrix[k][j*n:(j+1)*n])
			}
		}
		return nil
	})
}

func writeRow(w *bufio.Writer, values []float64) {
	for j, v := range values {
		if j > 0 {
			w.WriteByte(' ')
		}
		w.WriteString(strconv.FormatFloat(v, 'g', 9, 64))
	}
	w.WriteByte('\n')
}

// WriteSummary writes "<prefix>summary.json".
func WriteSummary(prefix string, run model.RunRecord) (string, error) {
	path := prefix + summaryFile
	return path, writeJSON(path, run)
}

func ReadSummary(prefix string) (model.RunRecord, bool, error) {
	data, err := os.ReadFile(prefix + summaryFile)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
