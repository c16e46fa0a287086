package chainhistory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"aeminvert/internal/wavetree"
)

const (
	Magic   = "AEMH"
	Version = 1

	DefaultCapacity = 1000
)

var (
	ErrBadMagic   = errors.New("chain history block has bad magic")
	ErrBadVersion = errors.New("unsupported chain history version")
)

// Kind identifies what a step changed. The tree kinds share values with
// wavetree.PerturbationKind.
type Kind uint8

const (
	KindNone       = Kind(wavetree.PerturbNone)
	KindBirth      = Kind(wavetree.PerturbBirth)
	KindDeath      = Kind(wavetree.PerturbDeath)
	KindValue      = Kind(wavetree.PerturbValue)
	KindLambda     Kind = 4
	KindPriorScale Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindLambda:
		return "lambda"
	case KindPriorScale:
		return "prior-scale"
	default:
		return wavetree.PerturbationKind(k).String()
	}
}

// Step is one recorded iteration sub-step.
type Step struct {
	Kind        Kind
	Accepted    bool
	Index       int
	Depth       int
	Before      float64
	After       float64
	Likelihood  float64
	Temperature float64
	Lambda      float64
}

// FromPerturbation records the last change made to a tree.
func FromPerturbation(p wavetree.Perturbation) Step {
	return Step{
		Kind:     Kind(p.Kind),
		Accepted: p.Accepted,
		Index:    p.Index,
		Depth:    p.Depth,
		Before:   p.Old,
		After:    p.New,
	}
}

type Coefficient struct {
	Index int
	Value float64
}

// Block is a baseline model followed by the steps taken from it.
type Block struct {
	Baseline    []Coefficient
	Likelihood  float64
	Temperature float64
	Lambda      float64
	Steps       []Step
}

// Snapshot copies the coefficients of tree into a baseline.
func Snapshot(tree *wavetree.Tree) []Coefficient {
	idx := tree.Indices()
	out := make([]Coefficient, len(idx))
	for i, k := range idx {
		v, _ := tree.Value(k)
		out[i] = Coefficient{Index: k, Value: v}
	}
	return out
}

type header struct {
	Magic       [4]byte
	Version     uint16
	NBaseline   uint32
	NSteps      uint32
	Likelihood  float64
	Temperature float64
	Lambda      float64
}

type coefficientRecord struct {
	Index int32
	Value float64
}

type stepRecord struct {
	Kind        uint8
	Accepted    uint8
	Index       int32
	Depth       int32
	Before      float64
	After       float64
	Likelihood  float64
	Temperature float64
	Lambda      float64
}

func (b *Block) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	h := header{
		Version:     Version,
		NBaseline:   uint32(len(b.Baseline)),
		NSteps:      uint32(len(b.Steps)),
		Likelihood:  b.Likelihood,
		Temperature: b.Temperature,
		Lambda:      b.Lambda,
	}
	copy(h.Magic[:], Magic)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	for _, c := range b.Baseline {
		if err := binary.Write(&buf, binary.LittleEndian, coefficientRecord{Index: int32(c.Index), Value: c.Value}); err != nil {
			return nil, err
		}
	}
	for _, s := range b.Steps {
		rec := stepRecord{
			Kind:        uint8(s.Kind),
			Index:       int32(s.Index),
			Depth:       int32(s.Depth),
			Before:      s.Before,
			After:       s.After,
			Likelihood:  s.Likelihood,
			Temperature: s.Temperature,
			Lambda:      s.Lambda,
		}
		if s.Accepted {
			rec.Accepted = 1
		}
		if err := binary.Write(&buf, binary.LittleEndian, rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// ReadBlock decodes the next block. It returns io.EOF only at a clean
// block boundary.
func ReadBlock(r io.Reader) (Block, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Block{}, err
	}
	if string(h.Magic[:]) != Magic {
		return Block{}, ErrBadMagic
	}
	if h.Version != Version {
		return Block{}, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	b := Block{
		Baseline:    make([]Coefficient, h.NBaseline),
		Likelihood:  h.Likelihood,
		Temperature: h.Temperature,
		Lambda:      h.Lambda,
		Steps:       make([]Step, h.NSteps),
	}
	for i := range b.Baseline {
		var c coefficientRecord
		if err := binary.Read(r, binary.LittleEndian, &c); err != nil {
			return Block{}, truncated(err)
		}
		b.Baseline[i] = Coefficient{Index: int(c.Index), Value: c.Value}
	}
	for i := range b.Steps {
		var s stepRecord
		if err := binary.Read(r, binary.LittleEndian, &s); err != nil {
			return Block{}, truncated(err)
		}
		b.Steps[i] = Step{
			Kind:        Kind(s.Kind),
			Accepted:    s.Accepted != 0,
			Index:       int(s.Index),
			Depth:       int(s.Depth),
			Before:      s.Before,
			After:       s.After,
			Likelihood:  s.Likelihood,
			Temperature: s.Temperature,
			Lambda:      s.Lambda,
		}
	}
	return b, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
