package chainhistory

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeminvert/internal/rng"
	"aeminvert/internal/wavetree"
)

// walk performs random tree moves, recording each into w.
func walk(t *testing.T, w *Writer, tree *wavetree.Tree, steps int) {
	t.Helper()
	s := rng.New(11)
	for i := 0; i < steps; i++ {
		var err error
		switch u := s.Uniform(); {
		case u < 0.4:
			c := tree.BirthCandidates()
			d := c.Depths()
			if len(d) == 0 {
				tree.ClearPerturbation()
				break
			}
			dd := d[s.Intn(len(d))]
			err = tree.ProposeBirth(c[dd][s.Intn(len(c[dd]))], s.Normal(0, 1))
		case u < 0.7:
			c := tree.DeathCandidates()
			d := c.Depths()
			if len(d) == 0 {
				tree.ClearPerturbation()
				break
			}
			dd := d[s.Intn(len(d))]
			_, err = tree.ProposeDeath(c[dd][s.Intn(len(c[dd]))])
		default:
			idx := tree.Indices()
			_, err = tree.ProposeValue(idx[s.Intn(len(idx))], s.Normal(0, 1))
		}
		require.NoError(t, err)
		if tree.LastPerturbation().Kind != wavetree.PerturbNone {
			if s.Uniform() < 0.6 {
				tree.Commit()
			} else {
				require.NoError(t, tree.Undo())
			}
		}
		step := FromPerturbation(tree.LastPerturbation())
		step.Likelihood = float64(i)
		step.Temperature = 1
		step.Lambda = 1
		require.NoError(t, w.Add(step, tree))
		if i%7 == 0 {
			require.NoError(t, w.Add(Step{Kind: KindLambda, Accepted: true, Before: 1, After: 1.1, Lambda: 1.1}, tree))
		}
	}
}

func TestReplayReproducesFinalTree(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 16)
	require.NoError(t, err)
	var seqs []int
	w.OnFlush(func(seq int, data []byte) error {
		seqs = append(seqs, seq)
		assert.Equal(t, Magic, string(data[:4]))
		return nil
	})

	tree, err := wavetree.New(3, 2, -1.2)
	require.NoError(t, err)
	require.NoError(t, w.Initialize(tree, 0, 1, 1))
	walk(t, w, tree, 250)

	// Simulate an exchange that replaces the model wholesale.
	other, err := wavetree.New(3, 2, 0.4)
	require.NoError(t, err)
	require.NoError(t, other.ProposeBirth(1, 0.2))
	other.Commit()
	require.NoError(t, w.Initialize(other, 5, 1, 2))
	assert.Zero(t, w.Pending())
	walk(t, w, other, 40)
	// 40 moves and 6 lambda steps leave 46 % 16 buffered.
	assert.Equal(t, 14, w.Pending())
	require.NoError(t, w.Close())
	assert.Zero(t, w.Pending())
	assert.Equal(t, w.Blocks(), len(seqs))
	assert.Equal(t, int64(buf.Len()), w.BytesWritten())

	steps := 0
	last, err := Replay(bytes.NewReader(buf.Bytes()), 3, 2, func(st State) error {
		steps++
		return nil
	})
	require.NoError(t, err)
	assert.True(t, other.Equal(last))
	assert.Greater(t, steps, 290)
}

func TestReadBlockErrors(t *testing.T) {
	b := Block{Baseline: []Coefficient{{Index: 0, Value: 1}}, Steps: []Step{{Kind: KindValue, Accepted: true}}}
	data, err := b.MarshalBinary()
	require.NoError(t, err)

	got, err := ReadBlock(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, b.Baseline, got.Baseline)
	assert.Equal(t, b.Steps, got.Steps)

	_, err = ReadBlock(bytes.NewReader(data[:len(data)-3]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	bad := append([]byte("XXXX"), data[4:]...)
	_, err = ReadBlock(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = ReadBlock(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)

	_, err = Replay(bytes.NewReader(nil), 1, 1, nil)
	assert.Error(t, err)
}

func TestWriterNeedsInitialize(t *testing.T) {
	w, err := NewWriter(io.Discard, 2)
	require.NoError(t, err)
	tree, err := wavetree.New(1, 1, 0)
	require.NoError(t, err)
	assert.Error(t, w.Add(Step{}, tree))

	_, err = NewWriter(io.Discard, 0)
	assert.Error(t, err)
}
