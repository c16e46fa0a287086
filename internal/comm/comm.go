package comm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrSizeMismatch = errors.New("collective buffer size mismatch")
	ErrInvalidRoot  = errors.New("collective root out of range")
)

// Communicator is a group of ranks that call collectives in the same
// order. Every call blocks until all ranks of the group have reached it or
// the context is cancelled.
type Communicator interface {
	Rank() int
	Size() int
	Barrier(ctx context.Context) error
	Bcast(ctx context.Context, root int, buf []float64) error
	BcastInts(ctx context.Context, root int, buf []int) error
	BcastBytes(ctx context.Context, root int, data []byte) ([]byte, error)
	// ReduceSum returns the sum on root and zero elsewhere.
	ReduceSum(ctx context.Context, root int, v float64) (float64, error)
	// Allgatherv gathers every rank's send slice into recv at offsets.
	Allgatherv(ctx context.Context, send []float64, recv []float64, counts, offsets []int) error
	AllgatherBytes(ctx context.Context, data []byte) ([][]byte, error)
	// Split partitions the group by color, ordering ranks by key. A negative
	// color yields a nil communicator.
	Split(ctx context.Context, color, key int) (Communicator, error)
}

type round struct {
	slots   []any
	arrived int
	done    chan struct{}
}

type group struct {
	size int
	mu   sync.Mutex
	cur  *round
}

func newGroup(size int) *group {
	return &group{size: size, cur: newRound(size)}
}

func newRound(size int) *round {
	return &round{slots: make([]any, size), done: make(chan struct{})}
}

// gather deposits v and returns every rank's deposit once all have arrived.
// A rank cannot enter the next round before the current one completes, so
// each round's slots are immutable once done is closed.
func (g *group) gather(ctx context.Context, rank int, v any) ([]any, error) {
	g.mu.Lock()
	r := g.cur
	r.slots[rank] = v
	r.arrived++
	if r.arrived == g.size {
		g.cur = newRound(g.size)
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		return r.slots, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type local struct {
	rank  int
	group *group
}

// NewWorld returns one communicator per rank, all sharing one group.
func NewWorld(size int) ([]Communicator, error) {
	if size < 1 {
		return nil, fmt.Errorf("world size must be >= 1, got %d", size)
	}
	g := newGroup(size)
	out := make([]Communicator, size)
	for r := range out {
		out[r] = &local{rank: r, group: g}
	}
	return out, nil
}

func (c *local) Rank() int { return c.rank }
func (c *local) Size() int { return c.group.size }

func (c *local) checkRoot(root int) error {
	if root < 0 || root >= c.group.size {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRoot, root, c.group.size)
	}
	return nil
}

func (c *local) Barrier(ctx context.Context) error {
	_, err := c.group.gather(ctx, c.rank, nil)
	return err
}

func (c *local) Bcast(ctx context.Context, root int, buf []float64) error {
	if err := c.checkRoot(root); err != nil {
		return err
	}
	var v any
	if c.rank == root {
		v = slices.Clone(buf)
	}
	slots, err := c.group.gather(ctx, c.rank, v)
	if err != nil {
		return err
	}
	src := slots[root].([]float64)
	if len(src) != len(buf) {
		return fmt.Errorf("%w: bcast of %d values into %d", ErrSizeMismatch, len(src), len(buf))
	}
	copy(buf, src)
	return nil
}

func (c *local) BcastInts(ctx context.Context, root int, buf []int) error {
	if err := c.checkRoot(root); err != nil {
		return err
	}
	var v any
	if c.rank == root {
		v = slices.Clone(buf)
	}
	slots, err := c.group.gather(ctx, c.rank, v)
	if err != nil {
		return err
	}
	src := slots[root].([]int)
	if len(src) != len(buf) {
		return fmt.Errorf("%w: bcast of %d ints into %d", ErrSizeMismatch, len(src), len(buf))
	}
	copy(buf, src)
	return nil
}

func (c *local) BcastBytes(ctx context.Context, root int, data []byte) ([]byte, error) {
	if err := c.checkRoot(root); err != nil {
		return nil, err
	}
	var v any
	if c.rank == root {
		v = slices.Clone(data)
	}
	slots, err := c.group.gather(ctx, c.rank, v)
	if err != nil {
		return nil, err
	}
	src, _ := slots[root].([]byte)
	return slices.Clone(src), nil
}

func (c *local) ReduceSum(ctx context.Context, root int, v float64) (float64, error) {
	if err := c.checkRoot(root); err != nil {
		return 0, err
	}
	slots, err := c.group.gather(ctx, c.rank, v)
	if err != nil {
		return 0, err
	}
	if c.rank != root {
		return 0, nil
	}
	sum := 0.0
	for _, s := range slots {
		sum += s.(float64)
	}
	return sum, nil
}

func (c *local) Allgatherv(ctx context.Context, send []float64, recv []float64, counts, offsets []int) error {
	size := c.group.size
	if len(counts) != size || len(offsets) != size {
		return fmt.Errorf("%w: %d counts and %d offsets for %d ranks", ErrSizeMismatch, len(counts), len(offsets), size)
	}
	if len(send) != counts[c.rank] {
		return fmt.Errorf("%w: rank %d sends %d values, count is %d", ErrSizeMismatch, c.rank, len(send), counts[c.rank])
	}
	slots, err := c.group.gather(ctx, c.rank, slices.Clone(send))
	if err != nil {
		return err
	}
	for r, s := range slots {
		part := s.([]float64)
		if len(part) != counts[r] || offsets[r]+counts[r] > len(recv) {
			return fmt.Errorf("%w: rank %d part of %d at offset %d into %d", ErrSizeMismatch, r, len(part), offsets[r], len(recv))
		}
		copy(recv[offsets[r]:], part)
	}
	return nil
}

func (c *local) AllgatherBytes(ctx context.Context, data []byte) ([][]byte, error) {
	slots, err := c.group.gather(ctx, c.rank, slices.Clone(data))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(slots))
	for r, s := range slots {
		b, _ := s.([]byte)
		out[r] = slices.Clone(b)
	}
	return out, nil
}

type splitRequest struct {
	color, key, rank int
}

func (c *local) Split(ctx context.Context, color, key int) (Communicator, error) {
	slots, err := c.group.gather(ctx, c.rank, splitRequest{color: color, key: key, rank: c.rank})
	if err != nil {
		return nil, err
	}

	var members []splitRequest
	for _, s := range slots {
		req := s.(splitRequest)
		if color >= 0 && req.color == color {
			members = append(members, req)
		}
	}
	slices.SortFunc(members, func(a, b splitRequest) int {
		if a.key != b.key {
			return a.key - b.key
		}
		return a.rank - b.rank
	})

	newRank := -1
	for i, m := range members {
		if m.rank == c.rank {
			newRank = i
		}
	}

	// The lowest member of each color creates the group; everyone picks
	// up their leader's group in a second round.
	var created *group
	if newRank == 0 {
		created = newGroup(len(members))
	}
	groups, err := c.group.gather(ctx, c.rank, created)
	if err != nil {
		return nil, err
	}
	if color < 0 {
		return nil, nil
	}
	g, ok := groups[members[0].rank].(*group)
	if !ok || g == nil {
		return nil, fmt.Errorf("split: no group for color %d", color)
	}
	return &local{rank: newRank, group: g}, nil
}
