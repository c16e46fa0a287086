package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"

	"aeminvert/internal/chainhistory"
	"aeminvert/internal/comm"
	"aeminvert/internal/likelihood"
	"aeminvert/internal/metrics"
	"aeminvert/internal/prior"
	"aeminvert/internal/rng"
	"aeminvert/internal/wavetree"
)

// Options are the sampling parameters shared by every chain of a job.
type Options struct {
	Total            int
	Kmax             int
	BirthProbability float64

	Lambda           float64
	SampleLambda     bool
	LambdaStd        float64
	LambdaHyperprior prior.Hyperprior

	PriorScale      float64
	PriorStd        float64
	PriorHyperprior prior.Hyperprior

	ExchangeRate        int
	ResampleRate        int
	ResampleTemperature float64
	InitialResample     bool

	Verbosity   int
	HistorySize int
	PosteriorK  bool
}

func (o Options) validate() error {
	switch {
	case o.Total < 0:
		return fmt.Errorf("total iterations must be >= 0, got %d", o.Total)
	case o.Kmax < 1:
		return fmt.Errorf("kmax must be >= 1, got %d", o.Kmax)
	case o.BirthProbability <= 0 || o.BirthProbability > 0.45:
		return fmt.Errorf("birth probability must be in (0, 0.45], got %g", o.BirthProbability)
	case o.Lambda <= 0:
		return fmt.Errorf("lambda must be > 0, got %g", o.Lambda)
	case o.SampleLambda && o.LambdaStd <= 0:
		return fmt.Errorf("lambda std must be > 0 when sampling lambda, got %g", o.LambdaStd)
	case o.PriorScale <= 0:
		return fmt.Errorf("prior scale must be > 0, got %g", o.PriorScale)
	case o.PriorStd < 0:
		return fmt.Errorf("prior std must be >= 0, got %g", o.PriorStd)
	case (o.ResampleRate > 0 || o.InitialResample) && o.ResampleTemperature < 1:
		return fmt.Errorf("resample temperature must be >= 1, got %g", o.ResampleTemperature)
	}
	return nil
}

// Config wires one rank's chain to its collaborators.
type Config struct {
	ID int

	World comm.Communicator
	Chain comm.Communicator
	// Temps links the rank 0 of every chain. It is nil on other ranks.
	Temps comm.Communicator

	Engine      *likelihood.Engine
	Prior       *prior.Prior
	Stream      *rng.Stream
	Tree        *wavetree.Tree
	Temperature float64
	Options     Options

	// History receives the chain history on chain rank 0; nil disables it.
	History io.Writer
	OnFlush chainhistory.FlushFunc
	Logger  *slog.Logger
	Metrics *metrics.Sampler
}

// Chain is one rank's view of a replica.
type Chain struct {
	id    int
	world comm.Communicator
	chain comm.Communicator
	temps comm.Communicator

	engine  *likelihood.Engine
	prior   *prior.Prior
	counts  *wavetree.CountTable
	rng     *rng.Stream
	state   *State
	opts    Options
	history *chainhistory.Writer
	log     *slog.Logger
	metrics *metrics.Sampler

	birth      *birthMove
	death      *deathMove
	value      *valueMove
	lambda     *lambdaMove
	priorScale *priorScaleMove

	exchangeStats *MoveStats
	resampleStats *MoveStats

	khistogram []int
	msg        []float64
}

func New(cfg Config) (*Chain, error) {
	if cfg.World == nil || cfg.Chain == nil {
		return nil, errors.New("chain needs world and chain communicators")
	}
	if cfg.Engine == nil || cfg.Prior == nil || cfg.Stream == nil || cfg.Tree == nil {
		return nil, errors.New("chain needs an engine, a prior, a random stream and a tree")
	}
	if cfg.Temperature < 1 {
		return nil, fmt.Errorf("chain temperature must be >= 1, got %g", cfg.Temperature)
	}
	if err := cfg.Options.validate(); err != nil {
		return nil, err
	}
	counts, err := wavetree.NewCountTable(cfg.Tree, cfg.Options.Kmax)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	maxDepth := cfg.Tree.MaxDepth()
	c := &Chain{
		id:      cfg.ID,
		world:   cfg.World,
		chain:   cfg.Chain,
		temps:   cfg.Temps,
		engine:  cfg.Engine,
		prior:   cfg.Prior,
		counts:  counts,
		rng:     cfg.Stream,
		opts:    cfg.Options,
		log:     logger,
		metrics: cfg.Metrics,
		state: &State{
			Tree:        cfg.Tree,
			Lambda:      cfg.Options.Lambda,
			PriorScale:  cfg.Options.PriorScale,
			Temperature: cfg.Temperature,
		},
		birth:         &birthMove{treeMove{newMoveStats("birth", maxDepth)}},
		death:         &deathMove{treeMove{newMoveStats("death", maxDepth)}},
		value:         &valueMove{treeMove{newMoveStats("value", maxDepth)}},
		exchangeStats: newMoveStats("exchange", 0),
		resampleStats: newMoveStats("resample", 0),
		msg:           make([]float64, 4),
	}
	if cfg.Options.SampleLambda {
		c.lambda = &lambdaMove{s: newMoveStats("lambda", 0), std: cfg.Options.LambdaStd, hyper: cfg.Options.LambdaHyperprior}
	}
	if cfg.Options.PriorStd > 0 {
		c.priorScale = &priorScaleMove{s: newMoveStats("prior-scale", 0), std: cfg.Options.PriorStd, hyper: cfg.Options.PriorHyperprior}
	}
	if c.primary() {
		c.khistogram = make([]int, counts.Kmax())
		if cfg.History != nil && !cfg.Options.PosteriorK {
			size := cfg.Options.HistorySize
			if size <= 0 {
				size = chainhistory.DefaultCapacity
			}
			if c.history, err = chainhistory.NewWriter(cfg.History, size); err != nil {
				return nil, err
			}
			if cfg.OnFlush != nil {
				c.history.OnFlush(cfg.OnFlush)
			}
		}
	}
	return c, nil
}

func (c *Chain) primary() bool { return c.chain.Rank() == 0 }

func (c *Chain) State() *State { return c.state }

// Moves returns the statistics of every enabled move in reporting order.
func (c *Chain) Moves() []*MoveStats {
	out := []*MoveStats{c.birth.s, c.death.s, c.value.s}
	if c.lambda != nil {
		out = append(out, c.lambda.s)
	}
	if c.priorScale != nil {
		out = append(out, c.priorScale.s)
	}
	return append(out, c.exchangeStats, c.resampleStats)
}

// Result is what a chain hands back when it finishes. Only chain rank 0
// fills KHistogram.
type Result struct {
	ChainID       int
	Primary       bool
	State         *State
	KHistogram    []int
	Moves         []*MoveStats
	HistoryBlocks int
	HistoryBytes  int64
}

// Run samples opts.Total iterations. Every rank of the world must call it.
func (c *Chain) Run(ctx context.Context) (*Result, error) {
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	for i := 0; i < c.opts.Total; i++ {
		if err := c.iterate(ctx, i); err != nil {
			return nil, fmt.Errorf("chain %d iteration %d: %w", c.id, i+1, err)
		}
	}
	return c.finish()
}

func (c *Chain) start(ctx context.Context) error {
	res, err := c.engine.LikelihoodDistributed(ctx, c.state.Tree, c.state.Lambda)
	if err != nil {
		return fmt.Errorf("chain %d initial likelihood: %w", c.id, err)
	}
	c.state.Current = res
	c.engine.Accept()

	if c.history != nil {
		if err := c.history.Initialize(c.state.Tree, res.NLL, c.state.Temperature, c.state.Lambda); err != nil {
			return err
		}
	}
	c.log.Info("chain started",
		"nll", res.NLL,
		"lognorm", res.LogNorm,
		"k", c.state.Tree.Count(),
		"temperature", c.state.Temperature)

	if c.opts.InitialResample {
		if _, err := c.resample(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) iterate(ctx context.Context, i int) error {
	if err := c.world.Barrier(ctx); err != nil {
		return err
	}

	msg := c.msg[:1]
	if c.primary() {
		msg[0] = c.rng.Uniform()
	}
	if err := c.chain.Bcast(ctx, 0, msg); err != nil {
		return err
	}
	var m move
	switch u := msg[0]; {
	case u < c.opts.BirthProbability:
		m = c.birth
	case u < 2*c.opts.BirthProbability:
		m = c.death
	default:
		m = c.value
	}
	if _, err := c.runProposal(ctx, m); err != nil {
		return err
	}

	k := c.state.Tree.Count()
	if c.primary() {
		if k >= 1 && k <= len(c.khistogram) {
			c.khistogram[k-1]++
		}
		if err := c.record(chainhistory.FromPerturbation(c.state.Tree.LastPerturbation())); err != nil {
			return err
		}
	}

	if c.lambda != nil {
		out, err := c.runProposal(ctx, c.lambda)
		if err != nil {
			return err
		}
		if err := c.recordScalar(chainhistory.KindLambda, out); err != nil {
			return err
		}
	}
	if c.priorScale != nil {
		out, err := c.runProposal(ctx, c.priorScale)
		if err != nil {
			return err
		}
		if err := c.recordScalar(chainhistory.KindPriorScale, out); err != nil {
			return err
		}
	}

	if c.opts.ExchangeRate > 0 && (i+1)%c.opts.ExchangeRate == 0 {
		if _, err := c.exchange(ctx); err != nil {
			return err
		}
	}
	if c.opts.ResampleRate > 0 && (i+1)%c.opts.ResampleRate == 0 {
		if _, err := c.resample(ctx); err != nil {
			return err
		}
	}

	if c.primary() {
		c.metrics.Chain(c.id, c.state.Current.NLL, k, c.state.Lambda)
		if c.opts.Verbosity > 0 && (i+1)%c.opts.Verbosity == 0 {
			c.report(i + 1)
		}
	}
	return nil
}

func (c *Chain) record(step chainhistory.Step) error {
	if c.history == nil {
		return nil
	}
	step.Likelihood = c.state.Current.NLL
	step.Temperature = c.state.Temperature
	step.Lambda = c.state.Lambda
	return c.history.Add(step, c.state.Tree)
}

func (c *Chain) recordScalar(kind chainhistory.Kind, out outcome) error {
	if !c.primary() || !out.valid {
		return nil
	}
	return c.record(chainhistory.Step{Kind: kind, Accepted: out.accepted, Before: out.old, After: out.value})
}

func (c *Chain) report(iteration int) {
	dc, _ := c.state.Tree.Value(wavetree.Root)
	c.log.Info("progress",
		"iteration", iteration,
		"nll", c.state.Current.NLL,
		"lognorm", c.state.Current.LogNorm,
		"k", c.state.Tree.Count(),
		"dc", dc,
		"lambda", c.state.Lambda,
		"prior_scale", c.state.PriorScale,
		"temperature", c.state.Temperature)
	if c.history != nil {
		c.log.Debug("chain history",
			"blocks", c.history.Blocks(),
			"pending", c.history.Pending(),
			"size", humanize.Bytes(uint64(c.history.BytesWritten())))
	}
	for _, s := range c.Moves() {
		c.log.Debug(s.Long())
	}
}

func (c *Chain) finish() (*Result, error) {
	res := &Result{
		ChainID: c.id,
		Primary: c.primary(),
		State:   c.state,
		Moves:   c.Moves(),
	}
	if !c.primary() {
		return res, nil
	}
	res.KHistogram = c.khistogram
	if c.history != nil {
		if err := c.history.Close(); err != nil {
			return nil, err
		}
		res.HistoryBlocks = c.history.Blocks()
		res.HistoryBytes = c.history.BytesWritten()
		c.log.Info("chain history written",
			"blocks", res.HistoryBlocks,
			"size", humanize.Bytes(uint64(res.HistoryBytes)))
	}
	return res, nil
}
