package likelihood

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"aeminvert/internal/aem"
	"aeminvert/internal/comm"
	"aeminvert/internal/forward"
	"aeminvert/internal/noise"
	"aeminvert/internal/wavelet"
	"aeminvert/internal/wavetree"
)

// Config holds the immutable inputs shared by every rank of a chain.
type Config struct {
	Observations *aem.Observations
	Systems      []forward.System
	Noise        []noise.Model
	DegreeX      int
	DegreeY      int
	Depth        float64
	Horizontal   wavelet.ID
	Vertical     wavelet.ID
	// PosteriorK skips every forward evaluation so the chain samples the
	// prior on the tree size.
	PosteriorK bool
}

// Result is the outcome of one likelihood evaluation.
type Result struct {
	NLL     float64
	LogNorm float64
}

// Energy is the quantity tempered by the chain temperature.
func (r Result) Energy() float64 { return r.NLL + r.LogNorm }

// Engine evaluates the likelihood of a wavelet tree against the
// observations. Every rank of a chain owns one; they must call the
// distributed methods in lock-step.
type Engine struct {
	cfg  Config
	comm comm.Communicator

	transform *wavelet.Transform2D
	thickness []float64
	rows      int
	columns   int

	blocks    []int
	blockOff  []int
	perColumn int

	partition Partition
	counts    []int
	offsets   []int

	observed []float64
	times    []float64

	dense  []float64
	earth  forward.Earth1D
	pred   forward.Response
	scalar []float64

	residual        []float64
	normed          []float64
	lastValid       []float64
	lastValidNormed []float64
	hierNormed      []float64
	valid           bool

	stats *ResidualStats
}

// New checks the configuration and allocates every buffer the engine will
// use. c may be nil for purely sequential use.
func New(cfg Config, c comm.Communicator) (*Engine, error) {
	if cfg.Observations == nil {
		return nil, errors.New("likelihood needs observations")
	}
	if len(cfg.Systems) == 0 {
		return nil, errors.New("likelihood needs at least one forward system")
	}
	if len(cfg.Noise) != len(cfg.Systems) {
		return nil, fmt.Errorf("%d noise models for %d systems", len(cfg.Noise), len(cfg.Systems))
	}

	tr, err := wavelet.NewTransform2D(1<<cfg.DegreeX, 1<<cfg.DegreeY, cfg.Horizontal, cfg.Vertical)
	if err != nil {
		return nil, err
	}
	rows, columns := tr.Height(), tr.Width()
	thick, err := aem.LayerThickness(rows, cfg.Depth)
	if err != nil {
		return nil, err
	}
	if len(cfg.Observations.Points) != columns {
		return nil, fmt.Errorf("%d observation points for an image %d columns wide", len(cfg.Observations.Points), columns)
	}
	sizes, err := cfg.Observations.ResponseSizes()
	if err != nil {
		return nil, err
	}
	if len(sizes) != len(cfg.Systems) {
		return nil, fmt.Errorf("observations carry %d responses per point for %d systems", len(sizes), len(cfg.Systems))
	}

	e := &Engine{
		cfg:       cfg,
		comm:      c,
		transform: tr,
		thickness: thick,
		rows:      rows,
		columns:   columns,
		blocks:    sizes,
		blockOff:  make([]int, len(sizes)),
	}
	for k, sys := range cfg.Systems {
		if n := len(sys.WindowTimes()); n != sizes[k] {
			return nil, fmt.Errorf("system %s has %d windows, observations have %d", sys.Name(), n, sizes[k])
		}
		e.blockOff[k] = e.perColumn
		e.perColumn += sizes[k]
	}

	ranks := 1
	if c != nil {
		ranks = c.Size()
	}
	if e.partition, err = NewPartition(columns, ranks); err != nil {
		return nil, err
	}
	e.counts, e.offsets = e.partition.Scaled(e.perColumn)

	total := columns * e.perColumn
	e.observed = make([]float64, total)
	e.times = make([]float64, total)
	for p, pt := range cfg.Observations.Points {
		for k, r := range pt.Responses {
			off := p*e.perColumn + e.blockOff[k]
			copy(e.observed[off:], r.Values)
			copy(e.times[off:], cfg.Systems[k].WindowTimes())
		}
	}

	e.dense = make([]float64, rows*columns)
	e.earth = forward.Earth1D{Conductivity: make([]float64, rows), Thickness: thick}
	e.scalar = make([]float64, 2)
	e.residual = make([]float64, total)
	e.normed = make([]float64, total)
	e.lastValid = make([]float64, total)
	e.lastValidNormed = make([]float64, total)
	e.hierNormed = make([]float64, total)
	if e.primary() {
		e.stats = NewResidualStats(columns, sizes)
	}
	return e, nil
}

func (e *Engine) primary() bool {
	return e.comm == nil || e.comm.Rank() == 0
}

func (e *Engine) Partition() Partition  { return e.partition }
func (e *Engine) Rows() int             { return e.rows }
func (e *Engine) Columns() int          { return e.columns }
func (e *Engine) Thickness() []float64  { return e.thickness }
func (e *Engine) ResidualSize() int     { return len(e.residual) }
func (e *Engine) Blocks() []int         { return e.blocks }
func (e *Engine) Valid() bool           { return e.valid }
func (e *Engine) Residuals() []float64  { return e.lastValid }
func (e *Engine) Normed() []float64     { return e.lastValidNormed }
func (e *Engine) Observed() []float64   { return e.observed }
func (e *Engine) Current() []float64    { return e.residual }
func (e *Engine) Stats() *ResidualStats { return e.stats }

// Reconstruct fills out with the log-conductivity image of tree.
func (e *Engine) Reconstruct(tree *wavetree.Tree, out []float64) error {
	if tree.Width() != e.columns || tree.Height() != e.rows {
		return fmt.Errorf("tree is %dx%d, engine image is %dx%d", tree.Height(), tree.Width(), e.rows, e.columns)
	}
	if err := tree.MapToArray(out); err != nil {
		return err
	}
	return e.transform.Inverse(out)
}

// Likelihood evaluates every column on the calling rank.
func (e *Engine) Likelihood(tree *wavetree.Tree, lambda float64) (Result, error) {
	if e.cfg.PosteriorK {
		return Result{NLL: 1}, nil
	}
	if err := e.Reconstruct(tree, e.dense); err != nil {
		return Result{}, err
	}
	return e.evaluate(0, e.columns, lambda)
}

// ImageLikelihood evaluates a conductivity section directly.
func (e *Engine) ImageLikelihood(im *aem.Image, lambda float64) (Result, error) {
	if im.Rows != e.rows || im.Columns != e.columns {
		return Result{}, fmt.Errorf("image is %dx%d, want %dx%d", im.Rows, im.Columns, e.rows, e.columns)
	}
	for i, v := range im.Values {
		if v <= 0 {
			return Result{}, fmt.Errorf("image value %d is not a positive conductivity: %g", i, v)
		}
		e.dense[i] = math.Log(v)
	}
	return e.evaluate(0, e.columns, lambda)
}

// LikelihoodDistributed evaluates this rank's columns, combines the totals
// on rank 0 and shares them and the full residual vectors with every rank.
func (e *Engine) LikelihoodDistributed(ctx context.Context, tree *wavetree.Tree, lambda float64) (Result, error) {
	if e.cfg.PosteriorK {
		return Result{NLL: 1}, nil
	}
	if e.comm == nil || e.comm.Size() == 1 {
		return e.Likelihood(tree, lambda)
	}
	if err := e.Reconstruct(tree, e.dense); err != nil {
		return Result{}, err
	}

	rank := e.comm.Rank()
	from := e.partition.Offsets[rank]
	local, err := e.evaluate(from, from+e.partition.Sizes[rank], lambda)
	if err != nil {
		return Result{}, err
	}

	nll, err := e.comm.ReduceSum(ctx, 0, local.NLL)
	if err != nil {
		return Result{}, err
	}
	logNorm, err := e.comm.ReduceSum(ctx, 0, local.LogNorm)
	if err != nil {
		return Result{}, err
	}
	e.scalar[0], e.scalar[1] = nll, logNorm
	if err := e.comm.Bcast(ctx, 0, e.scalar); err != nil {
		return Result{}, err
	}

	lo, hi := e.offsets[rank], e.offsets[rank]+e.counts[rank]
	if err := e.comm.Allgatherv(ctx, e.residual[lo:hi], e.residual, e.counts, e.offsets); err != nil {
		return Result{}, fmt.Errorf("gather residuals: %w", err)
	}
	if err := e.comm.Allgatherv(ctx, e.normed[lo:hi], e.normed, e.counts, e.offsets); err != nil {
		return Result{}, fmt.Errorf("gather normed residuals: %w", err)
	}
	return Result{NLL: e.scalar[0], LogNorm: e.scalar[1]}, nil
}

// evaluate runs the forward systems over columns [from, to) of the dense
// log-conductivity image.
func (e *Engine) evaluate(from, to int, lambda float64) (Result, error) {
	var out Result
	for col := from; col < to; col++ {
		for row := 0; row < e.rows; row++ {
			e.earth.Conductivity[row] = math.Exp(e.dense[row*e.columns+col])
		}
		pt := e.cfg.Observations.Points[col]
		for k, sys := range e.cfg.Systems {
			if err := sys.Forward(pt.Geometry, e.earth, &e.pred); err != nil {
				return Result{}, fmt.Errorf("column %d system %s: %w", col, sys.Name(), err)
			}
			obs := pt.Responses[k]
			predicted, err := e.pred.Component(obs.Direction)
			if err != nil {
				return Result{}, err
			}
			if len(predicted) != e.blocks[k] {
				return Result{}, fmt.Errorf("system %s predicted %d windows, want %d", sys.Name(), len(predicted), e.blocks[k])
			}
			lo := col*e.perColumn + e.blockOff[k]
			hi := lo + e.blocks[k]
			res := e.residual[lo:hi]
			floats.SubTo(res, obs.Values, predicted)
			nll, logNorm, err := e.cfg.Noise[k].NLL(e.observed[lo:hi], e.times[lo:hi], res, lambda, e.normed[lo:hi])
			if err != nil {
				return Result{}, fmt.Errorf("column %d system %s: %w", col, sys.Name(), err)
			}
			out.NLL += nll
			out.LogNorm += logNorm
		}
	}
	return out, nil
}

// HierarchicalLikelihood re-scores the last accepted residuals under a new
// noise scale. Stale residuals are first refreshed at curLambda.
func (e *Engine) HierarchicalLikelihood(ctx context.Context, tree *wavetree.Tree, curLambda, newLambda float64) (Result, error) {
	if e.cfg.PosteriorK {
		return Result{NLL: 1}, nil
	}
	if !e.valid {
		if _, err := e.LikelihoodDistributed(ctx, tree, curLambda); err != nil {
			return Result{}, fmt.Errorf("refresh residuals: %w", err)
		}
		e.Accept()
	}

	if e.primary() {
		var total Result
		for col := 0; col < e.columns; col++ {
			for k, model := range e.cfg.Noise {
				lo := col*e.perColumn + e.blockOff[k]
				hi := lo + e.blocks[k]
				nll, logNorm, err := model.NLL(e.observed[lo:hi], e.times[lo:hi], e.lastValid[lo:hi], newLambda, e.hierNormed[lo:hi])
				if err != nil {
					return Result{}, err
				}
				total.NLL += nll
				total.LogNorm += logNorm
			}
		}
		e.scalar[0], e.scalar[1] = total.NLL, total.LogNorm
	}
	if e.comm != nil {
		if err := e.comm.Bcast(ctx, 0, e.scalar); err != nil {
			return Result{}, err
		}
	}
	return Result{NLL: e.scalar[0], LogNorm: e.scalar[1]}, nil
}

// Accept promotes the working residuals to the last valid state.
func (e *Engine) Accept() {
	e.valid = true
	if e.cfg.PosteriorK {
		return
	}
	copy(e.lastValid, e.residual)
	copy(e.lastValidNormed, e.normed)
	if e.stats != nil {
		e.stats.updateMean(e.lastValid, e.lastValidNormed)
		e.stats.updateCovariance(e.lastValid)
	}
}

// AcceptHierarchical keeps the normed residuals of the accepted noise
// scale. Only rank 0 holds them.
func (e *Engine) AcceptHierarchical() {
	if e.cfg.PosteriorK || !e.primary() {
		return
	}
	copy(e.lastValidNormed, e.hierNormed)
}

// Reject folds the unchanged state into the running statistics. The
// working buffers are stale but the last valid copy is still trusted,
// unless the state was replaced since it was computed.
func (e *Engine) Reject() {
	if e.cfg.PosteriorK || e.stats == nil || !e.valid {
		return
	}
	e.stats.updateMean(e.lastValid, e.lastValidNormed)
}

// Invalidate marks the cached residuals as belonging to another state.
func (e *Engine) Invalidate() {
	e.valid = false
}

