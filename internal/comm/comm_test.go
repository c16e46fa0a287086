package comm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func runWorld(t *testing.T, size int, fn func(ctx context.Context, c Communicator) error) {
	t.Helper()
	world, err := NewWorld(size)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range world {
		g.Go(func() error { return fn(gctx, c) })
	}
	require.NoError(t, g.Wait())
}

func TestBcastAndReduce(t *testing.T) {
	runWorld(t, 4, func(ctx context.Context, c Communicator) error {
		buf := []float64{0, 0}
		if c.Rank() == 2 {
			buf = []float64{1.5, -3}
		}
		if err := c.Bcast(ctx, 2, buf); err != nil {
			return err
		}
		assert.Equal(t, []float64{1.5, -3}, buf)

		sum, err := c.ReduceSum(ctx, 0, float64(c.Rank()+1))
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			assert.Equal(t, 10.0, sum)
		} else {
			assert.Zero(t, sum)
		}

		ints := []int{c.Rank()}
		if err := c.BcastInts(ctx, 3, ints); err != nil {
			return err
		}
		assert.Equal(t, []int{3}, ints)
		return nil
	})
}

func TestRepeatedCollectivesStayOrdered(t *testing.T) {
	runWorld(t, 3, func(ctx context.Context, c Communicator) error {
		for i := 0; i < 200; i++ {
			buf := []float64{float64(i * c.Rank())}
			if err := c.Bcast(ctx, i%3, buf); err != nil {
				return err
			}
			assert.Equal(t, float64(i*(i%3)), buf[0])
		}
		return c.Barrier(ctx)
	})
}

func TestAllgatherv(t *testing.T) {
	counts := []int{2, 1, 3}
	offsets := []int{0, 2, 3}
	runWorld(t, 3, func(ctx context.Context, c Communicator) error {
		send := make([]float64, counts[c.Rank()])
		for i := range send {
			send[i] = float64(10*c.Rank() + i)
		}
		recv := make([]float64, 6)
		if err := c.Allgatherv(ctx, send, recv, counts, offsets); err != nil {
			return err
		}
		assert.Equal(t, []float64{0, 1, 10, 20, 21, 22}, recv)

		parts, err := c.AllgatherBytes(ctx, []byte{byte(c.Rank())})
		if err != nil {
			return err
		}
		assert.Equal(t, [][]byte{{0}, {1}, {2}}, parts)

		data, err := c.BcastBytes(ctx, 1, []byte{byte(c.Rank()), 7})
		if err != nil {
			return err
		}
		assert.Equal(t, []byte{1, 7}, data)
		return nil
	})
}

func TestAllgathervRejectsWrongCount(t *testing.T) {
	world, err := NewWorld(1)
	require.NoError(t, err)
	err = world[0].Allgatherv(context.Background(), []float64{1, 2}, make([]float64, 2), []int{1}, []int{0})
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestSplit(t *testing.T) {
	runWorld(t, 6, func(ctx context.Context, c Communicator) error {
		// Two groups by parity, ordered by descending world rank.
		sub, err := c.Split(ctx, c.Rank()%2, -c.Rank())
		if err != nil {
			return err
		}
		if !assert.NotNil(t, sub) {
			return nil
		}
		assert.Equal(t, 3, sub.Size())
		assert.Equal(t, (5-c.Rank())/2, sub.Rank())

		sum, err := sub.ReduceSum(ctx, 0, float64(c.Rank()))
		if err != nil {
			return err
		}
		if sub.Rank() == 0 {
			if c.Rank()%2 == 0 {
				assert.Equal(t, 6.0, sum)
			} else {
				assert.Equal(t, 9.0, sum)
			}
		}

		color := 0
		if c.Rank() >= 2 {
			color = -1
		}
		only, err := c.Split(ctx, color, c.Rank())
		if err != nil {
			return err
		}
		if c.Rank() < 2 {
			if !assert.NotNil(t, only) {
				return nil
			}
			assert.Equal(t, 2, only.Size())
			return only.Barrier(ctx)
		}
		assert.Nil(t, only)
		return nil
	})
}

func TestCancelledCollective(t *testing.T) {
	world, err := NewWorld(2)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, world[0].Barrier(ctx), context.Canceled)
	assert.ErrorIs(t, world[0].Bcast(ctx, 5, nil), ErrInvalidRoot)

	_, err = NewWorld(0)
	assert.Error(t, err)
}
