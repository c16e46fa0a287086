package platform

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"aeminvert/internal/comm"
)

// Rank is what a launched rank receives: its placement and the three
// communicators it takes part in. Temps is nil unless ChainRank is 0.
type Rank struct {
	Placement
	World comm.Communicator
	Chain comm.Communicator
	Temps comm.Communicator
}

// Launch starts one goroutine per world rank and runs fn on each once the
// communicators are split. The first error cancels every other rank.
func Launch(ctx context.Context, l Layout, fn func(ctx context.Context, r Rank) error) error {
	world, err := comm.NewWorld(l.Processes)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range world {
		w := w
		g.Go(func() error {
			p := l.Place(w.Rank())
			chain, err := w.Split(ctx, p.ChainID, p.Rank)
			if err != nil {
				return fmt.Errorf("rank %d: chain split: %w", p.Rank, err)
			}
			color := -1
			if p.ChainRank == 0 {
				color = 0
			}
			temps, err := w.Split(ctx, color, p.Rank)
			if err != nil {
				return fmt.Errorf("rank %d: temperature split: %w", p.Rank, err)
			}
			return fn(ctx, Rank{Placement: p, World: w, Chain: chain, Temps: temps})
		})
	}
	return g.Wait()
}
