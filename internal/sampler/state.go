package sampler

import (
	"encoding/binary"
	"errors"
	"math"

	"aeminvert/internal/likelihood"
	"aeminvert/internal/wavetree"
)

// State is the part of a chain that moves between chains on exchange or
// resampling. Temperature stays with the chain.
type State struct {
	Tree        *wavetree.Tree
	Current     likelihood.Result
	Lambda      float64
	PriorScale  float64
	Temperature float64
}

const stateHeader = 4 * 8

// Encode packs the exchangeable fields.
func (s *State) Encode() []byte {
	tree := s.Tree.Encode()
	out := make([]byte, stateHeader, stateHeader+len(tree))
	for i, v := range []float64{s.Lambda, s.PriorScale, s.Current.NLL, s.Current.LogNorm} {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return append(out, tree...)
}

// Decode replaces the exchangeable fields, keeping the temperature.
func (s *State) Decode(data []byte) error {
	if len(data) < stateHeader {
		return errors.New("encoded chain state is truncated")
	}
	var f [4]float64
	for i := range f {
		f[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	if err := s.Tree.Decode(data[stateHeader:]); err != nil {
		return err
	}
	s.Lambda, s.PriorScale = f[0], f[1]
	s.Current = likelihood.Result{NLL: f[2], LogNorm: f[3]}
	return nil
}
