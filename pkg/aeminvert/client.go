package aeminvert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"aeminvert/internal/forward"
	"aeminvert/internal/metrics"
	"aeminvert/internal/model"
	"aeminvert/internal/noise"
	"aeminvert/internal/storage"
)

type Options struct {
	// StoreKind is memory, badger or sqlite. Empty disables persistence.
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
	// Registerer receives the sampler metrics; nil disables them.
	Registerer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	log     *slog.Logger
	metrics *metrics.Sampler
}

func New(opts Options) (*Client, error) {
	c := &Client{log: opts.Logger}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	if opts.StoreKind != "" {
		store, err := storage.NewStore(opts.StoreKind, opts.DBPath)
		if err != nil {
			return nil, err
		}
		c.store = store
	}
	if opts.Registerer != nil {
		m, err := metrics.NewSampler(opts.Registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		c.metrics = m
	}
	return c, nil
}

func (c *Client) Init(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	if c.store == nil {
		return nil
	}
	return storage.CloseIfSupported(c.store)
}

// Runs lists stored runs, newest first, up to limit (0 means all).
func (c *Client) Runs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if c.store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Model fetches the stored final model of one chain.
func (c *Client) Model(ctx context.Context, runID string, chain int) (model.ModelRecord, bool, error) {
	if c.store == nil {
		return model.ModelRecord{}, false, fmt.Errorf("no store configured")
	}
	return c.store.GetModel(ctx, runID, chain)
}

// History fetches the stored chain-history blocks of one chain in order.
func (c *Client) History(ctx context.Context, runID string, chain int) ([]model.HistoryBlockRecord, error) {
	if c.store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	return c.store.GetHistoryBlocks(ctx, runID, chain)
}

func loadSystems(paths []string) ([]forward.System, error) {
	out := make([]forward.System, 0, len(paths))
	for _, p := range paths {
		sys, err := forward.Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, sys)
	}
	return out, nil
}

func loadNoise(paths []string) ([]noise.Model, error) {
	out := make([]noise.Model, 0, len(paths))
	for _, p := range paths {
		m, err := noise.Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
