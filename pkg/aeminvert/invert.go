package aeminvert

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeminvert/internal/aem"
	"aeminvert/internal/likelihood"
	"aeminvert/internal/model"
	"aeminvert/internal/platform"
	"aeminvert/internal/prior"
	"aeminvert/internal/rng"
	"aeminvert/internal/sampler"
	"aeminvert/internal/stats"
	"aeminvert/internal/storage"
	"aeminvert/internal/wavelet"
	"aeminvert/internal/wavetree"
)

// InitialConductivity seeds the root coefficient when no initial model is
// given.
const InitialConductivity = 0.25

type InvertSummary struct {
	RunID     string
	Summary   string
	Artifacts []string
	Chains    []model.ChainSummary
}

// job holds what every rank shares read-only.
type job struct {
	runID        string
	req          InvertRequest
	observations *aem.Observations
	prior        *prior.Prior
	vertical     wavelet.ID
	horizontal   wavelet.ID
	maxDepth     int
}

// Invert runs a full inversion and writes every output file under
// req.Output. It returns once all ranks have finished.
func (c *Client) Invert(ctx context.Context, req InvertRequest) (InvertSummary, error) {
	if err := req.Validate(); err != nil {
		return InvertSummary{}, err
	}
	layout, err := platform.NewLayout(req.Processes, req.Chains, req.Temperatures, req.MaxTemperature, req.ExchangeRate > 0)
	if err != nil {
		return InvertSummary{}, err
	}
	j := &job{runID: uuid.NewString(), req: req}
	j.vertical, _ = wavelet.Parse(req.WaveletVertical)
	j.horizontal, _ = wavelet.Parse(req.WaveletHorizontal)

	if j.observations, err = aem.LoadObservations(req.Input); err != nil {
		return InvertSummary{}, err
	}
	shape, err := wavetree.New(req.DegreeLateral, req.DegreeDepth, 0)
	if err != nil {
		return InvertSummary{}, err
	}
	j.maxDepth = shape.MaxDepth()
	if req.PriorFile != "" {
		if j.prior, err = prior.Load(req.PriorFile, j.maxDepth); err != nil {
			return InvertSummary{}, err
		}
	} else {
		j.prior = prior.Default(j.maxDepth)
	}

	created := time.Now().UTC()
	c.log.Info("inversion starting",
		"run", j.runID,
		"processes", layout.Processes,
		"chains", layout.TotalChains(),
		"per_chain", layout.PerChain(),
		"total", req.Total)

	var (
		mu      sync.Mutex
		chains  []model.ChainSummary
		written []string
	)
	err = platform.Launch(ctx, layout, func(ctx context.Context, r platform.Rank) error {
		summary, files, err := c.runRank(ctx, j, r)
		if err != nil {
			return err
		}
		if r.ChainRank == 0 {
			mu.Lock()
			chains = append(chains, summary)
			written = append(written, files...)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return InvertSummary{}, err
	}
	slices.SortFunc(chains, func(a, b model.ChainSummary) int { return a.Chain - b.Chain })
	slices.Sort(written)

	run := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              j.runID,
		CreatedAt:       created,
		Request:         runRequest(req),
		Chains:          chains,
	}
	path, err := stats.WriteSummary(req.Output, run)
	if err != nil {
		return InvertSummary{}, fmt.Errorf("write summary: %w", err)
	}
	if c.store != nil {
		if err := c.store.SaveRun(ctx, run); err != nil {
			return InvertSummary{}, fmt.Errorf("save run %s: %w", j.runID, err)
		}
	}
	c.log.Info("inversion finished", "run", j.runID, "summary", path, "elapsed", time.Since(created).Round(time.Millisecond))
	return InvertSummary{RunID: j.runID, Summary: path, Artifacts: written, Chains: chains}, nil
}

func runRequest(req InvertRequest) model.RunRequest {
	return model.RunRequest{
		Input:          req.Input,
		Systems:        slices.Clone(req.Systems),
		DegreeLateral:  req.DegreeLateral,
		DegreeDepth:    req.DegreeDepth,
		Depth:          req.Depth,
		Total:          req.Total,
		Seed:           req.Seed,
		Kmax:           req.Kmax,
		Processes:      req.Processes,
		Chains:         req.Chains,
		Temperatures:   req.Temperatures,
		MaxTemperature: req.MaxTemperature,
		PosteriorK:     req.PosteriorK,
	}
}

// runRank builds and runs one rank's chain. Chain rank 0 also writes the
// chain's files and returns its summary.
func (c *Client) runRank(ctx context.Context, j *job, r platform.Rank) (model.ChainSummary, []string, error) {
	req := j.req
	primary := r.ChainRank == 0

	// Systems and noise models keep scratch space, so each rank loads its own.
	systems, err := loadSystems(req.Systems)
	if err != nil {
		return model.ChainSummary{}, nil, err
	}
	noiseModels, err := loadNoise(req.Hierarchical)
	if err != nil {
		return model.ChainSummary{}, nil, err
	}
	engine, err := likelihood.New(likelihood.Config{
		Observations: j.observations,
		Systems:      systems,
		Noise:        noiseModels,
		DegreeX:      req.DegreeLateral,
		DegreeY:      req.DegreeDepth,
		Depth:        req.Depth,
		Horizontal:   j.horizontal,
		Vertical:     j.vertical,
		PosteriorK:   req.PosteriorK,
	}, r.Chain)
	if err != nil {
		return model.ChainSummary{}, nil, fmt.Errorf("rank %d: %w", r.Rank, err)
	}

	var tree *wavetree.Tree
	if req.Initial != "" {
		tree, err = wavetree.LoadPromote(platform.FileName(req.Initial, "final_model.txt", r.ChainID), req.DegreeLateral, req.DegreeDepth)
	} else {
		tree, err = wavetree.New(req.DegreeLateral, req.DegreeDepth, math.Log(InitialConductivity))
	}
	if err != nil {
		return model.ChainSummary{}, nil, fmt.Errorf("rank %d initial model: %w", r.Rank, err)
	}

	cfg := sampler.Config{
		ID:          r.ChainID,
		World:       r.World,
		Chain:       r.Chain,
		Temps:       r.Temps,
		Engine:      engine,
		Prior:       j.prior,
		Stream:      rng.ForRank(req.Seed, req.SeedMultiplier, r.Rank),
		Tree:        tree,
		Temperature: r.Temperature,
		Options:     samplerOptions(req),
		Metrics:     c.metrics,
	}

	var files []string
	if primary {
		logFile, err := os.Create(platform.FileName(req.Output, "log.txt", r.ChainID))
		if err != nil {
			return model.ChainSummary{}, nil, err
		}
		defer logFile.Close()
		files = append(files, logFile.Name())
		cfg.Logger = slog.New(slog.NewTextHandler(logFile, nil)).With(
			"chain", r.ChainID,
			"rank", r.Rank,
			"temperature", r.Temperature)

		if !req.PosteriorK {
			history, err := os.Create(platform.FileName(req.Output, "ch.dat", r.ChainID))
			if err != nil {
				return model.ChainSummary{}, nil, err
			}
			defer history.Close()
			files = append(files, history.Name())
			cfg.History = history
			if c.store != nil {
				cfg.OnFlush = func(seq int, data []byte) error {
					return c.store.AppendHistoryBlock(ctx, model.HistoryBlockRecord{
						VersionedRecord: storage.Versioned(),
						RunID:           j.runID,
						Chain:           r.ChainID,
						Sequence:        seq,
						Data:            data,
					})
				}
			}
		}
	}

	chain, err := sampler.New(cfg)
	if err != nil {
		return model.ChainSummary{}, nil, fmt.Errorf("rank %d: %w", r.Rank, err)
	}
	if primary {
		c.log.Info("chain started", "chain", r.ChainID, "temperature", r.Temperature)
	}
	res, err := chain.Run(ctx)
	if err != nil {
		return model.ChainSummary{}, nil, err
	}
	if !primary {
		return model.ChainSummary{}, nil, nil
	}

	artifacts := stats.ChainArtifacts{
		Prefix:     req.Output,
		ChainID:    r.ChainID,
		KHistogram: res.KHistogram,
		Moves:      res.Moves,
		Tree:       res.State.Tree,
	}
	if !req.PosteriorK {
		artifacts.Residuals = engine.Stats()
	}
	paths, err := stats.WriteChainArtifacts(artifacts)
	if err != nil {
		return model.ChainSummary{}, nil, err
	}
	files = append(files, paths...)

	if c.store != nil {
		record := model.ModelRecord{
			VersionedRecord: storage.Versioned(),
			RunID:           j.runID,
			Chain:           r.ChainID,
			Tree:            res.State.Tree.Encode(),
		}
		if err := c.store.SaveModel(ctx, record); err != nil {
			return model.ChainSummary{}, nil, fmt.Errorf("save model of chain %d: %w", r.ChainID, err)
		}
	}

	summary := chainSummary(res)
	c.log.Info("chain finished",
		"chain", r.ChainID,
		"nll", summary.Likelihood,
		"k", summary.Coefficients,
		"mean_k", summary.MeanK)
	return summary, files, nil
}

// samplerOptions maps a request onto the chain options. Resampling only
// runs with --resample: once at start-up when the chains were seeded from
// a previous run, and periodically when a rate is set.
func samplerOptions(req InvertRequest) sampler.Options {
	opts := sampler.Options{
		Total:               req.Total,
		Kmax:                req.Kmax,
		BirthProbability:    req.BirthProbability,
		Lambda:              1,
		SampleLambda:        req.LambdaStd > 0,
		LambdaStd:           req.LambdaStd,
		LambdaHyperprior:    req.LambdaHyperprior,
		PriorScale:          1,
		PriorStd:            req.PriorStd,
		PriorHyperprior:     req.PriorHyperprior,
		ExchangeRate:        req.ExchangeRate,
		ResampleTemperature: req.ResampleTemperature,
		Verbosity:           req.Verbosity,
		HistorySize:         req.HistorySize,
		PosteriorK:          req.PosteriorK,
	}
	if req.Resample {
		opts.InitialResample = req.Initial != ""
		opts.ResampleRate = req.ResampleRate
	}
	return opts
}

func chainSummary(res *sampler.Result) model.ChainSummary {
	s := res.State
	out := model.ChainSummary{
		Chain:        res.ChainID,
		Temperature:  s.Temperature,
		Likelihood:   s.Current.NLL,
		LogNorm:      s.Current.LogNorm,
		Coefficients: s.Tree.Count(),
		Lambda:       s.Lambda,
		PriorScale:   s.PriorScale,
	}
	var n, sum float64
	for i, count := range res.KHistogram {
		n += float64(count)
		sum += float64((i + 1) * count)
	}
	if n > 0 {
		out.MeanK = sum / n
	}
	for _, m := range res.Moves {
		out.Moves = append(out.Moves, model.MoveSummary{
			Name:     m.Name,
			Proposed: m.Proposed,
			Accepted: m.Accepted,
			Rate:     m.Rate(),
		})
	}
	return out
}
