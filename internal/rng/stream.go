package rng

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

var ErrEmptyWeights = errors.New("no positive weights to select from")

// Stream is a per-rank deterministic generator. It is not safe for
// concurrent use; every rank owns one.
type Stream struct {
	src *rand.PCG
	r   *rand.Rand
}

func New(seed uint64) *Stream {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Stream{src: src, r: rand.New(src)}
}

// ForRank derives the stream seed the same way for every job launcher.
func ForRank(seed, seedMult, rank int) *Stream {
	return New(uint64(seed + rank*seedMult))
}

func (s *Stream) Uniform() float64 {
	return s.r.Float64()
}

// Intn returns a value in [0, n).
func (s *Stream) Intn(n int) int {
	return s.r.IntN(n)
}

func (s *Stream) Normal(mean, std float64) float64 {
	return distuv.Normal{Mu: mean, Sigma: std, Src: s.src}.Rand()
}

func (s *Stream) UniformRange(lo, hi float64) float64 {
	return lo + (hi-lo)*s.r.Float64()
}

func (s *Stream) Laplace(mean, scale float64) float64 {
	return distuv.Laplace{Mu: mean, Scale: scale, Src: s.src}.Rand()
}

// Gamma draws with shape a and scale b.
func (s *Stream) Gamma(a, b float64) float64 {
	return distuv.Gamma{Alpha: a, Beta: 1.0 / b, Src: s.src}.Rand()
}

// Select draws an index with probability proportional to weights.
func (s *Stream) Select(weights []float64) (int, error) {
	total := 0.0
	for _, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			total += w
		}
	}
	if total <= 0 {
		return 0, ErrEmptyWeights
	}
	u := s.r.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 || math.IsInf(w, 0) {
			continue
		}
		last = i
		if u < w {
			return i, nil
		}
		u -= w
	}
	return last, nil
}

func (s *Stream) Shuffle(items []int) {
	s.r.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
