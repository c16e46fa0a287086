package chainhistory

import (
	"fmt"
	"io"

	"aeminvert/internal/wavetree"
)

// FlushFunc receives every block written, numbered from zero.
type FlushFunc func(seq int, data []byte) error

// Writer buffers steps and writes a block each time the buffer fills.
type Writer struct {
	w        io.Writer
	capacity int
	block    Block
	ready    bool

	blocks  int
	written int64
	onFlush FlushFunc
}

func NewWriter(w io.Writer, capacity int) (*Writer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("chain history capacity must be >= 1, got %d", capacity)
	}
	return &Writer{w: w, capacity: capacity}, nil
}

// OnFlush registers a callback run after each block reaches the writer.
func (w *Writer) OnFlush(fn FlushFunc) { w.onFlush = fn }

func (w *Writer) Blocks() int         { return w.blocks }
func (w *Writer) BytesWritten() int64 { return w.written }
func (w *Writer) Pending() int        { return len(w.block.Steps) }

// Initialize starts a new block from tree, first writing any pending
// steps of the previous block.
func (w *Writer) Initialize(tree *wavetree.Tree, likelihood, temperature, lambda float64) error {
	if len(w.block.Steps) > 0 {
		if err := w.flush(); err != nil {
			return err
		}
	}
	w.block = Block{
		Baseline:    Snapshot(tree),
		Likelihood:  likelihood,
		Temperature: temperature,
		Lambda:      lambda,
		Steps:       make([]Step, 0, w.capacity),
	}
	w.ready = true
	return nil
}

// Add appends a step. tree must already reflect the step; when the
// buffer fills it becomes the next baseline.
func (w *Writer) Add(step Step, tree *wavetree.Tree) error {
	if !w.ready {
		return fmt.Errorf("chain history used before Initialize")
	}
	w.block.Steps = append(w.block.Steps, step)
	if len(w.block.Steps) < w.capacity {
		return nil
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.block.Baseline = Snapshot(tree)
	w.block.Likelihood = step.Likelihood
	w.block.Temperature = step.Temperature
	w.block.Lambda = step.Lambda
	w.block.Steps = w.block.Steps[:0]
	return nil
}

// Close writes the pending steps, if any.
func (w *Writer) Close() error {
	if len(w.block.Steps) == 0 {
		return nil
	}
	return w.flush()
}

func (w *Writer) flush() error {
	data, err := w.block.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write chain history block %d: %w", w.blocks, err)
	}
	if w.onFlush != nil {
		if err := w.onFlush(w.blocks, data); err != nil {
			return err
		}
	}
	w.blocks++
	w.written += int64(len(data))
	w.block.Steps = w.block.Steps[:0]
	return nil
}
