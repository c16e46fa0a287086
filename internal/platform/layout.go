package platform

import (
	"errors"
	"fmt"
	"math"
)

var ErrLayout = errors.New("invalid job layout")

// Layout factors the world into Temperatures x Chains replicas of
// PerChain ranks each. Ranks of one replica are contiguous and replicas
// are grouped by temperature:
//
//	rank  chain  chain rank  temperature
//	   0      0           0            0
//	   1      0           1            0
//	   2      1           0            0
//	   3      1           1            0
//	   4      2           0            1
//	 ...
type Layout struct {
	Processes      int
	Chains         int
	Temperatures   int
	MaxTemperature float64
}

// Placement is where one world rank sits in the layout.
type Placement struct {
	Rank          int
	ChainID       int
	ChainRank     int
	TemperatureID int
	Temperature   float64
}

// NewLayout checks that the replicas tile the world. Exchange pairs
// chains, so it needs an even number of them.
func NewLayout(processes, chains, temperatures int, maxTemperature float64, exchange bool) (Layout, error) {
	l := Layout{Processes: processes, Chains: chains, Temperatures: temperatures, MaxTemperature: maxTemperature}
	total := chains * temperatures
	switch {
	case processes < 1:
		return Layout{}, fmt.Errorf("%w: need at least one process, got %d", ErrLayout, processes)
	case chains < 1 || temperatures < 1:
		return Layout{}, fmt.Errorf("%w: chains and temperatures must be >= 1, got %d x %d", ErrLayout, chains, temperatures)
	case processes%total != 0:
		return Layout{}, fmt.Errorf("%w: no. temperatures and no. chains incompatible with process count: %d x %d = %d : %d",
			ErrLayout, temperatures, chains, total, processes)
	case exchange && total > 1 && total%2 != 0:
		return Layout{}, fmt.Errorf("%w: no. total chains (no. temperatures * no. chains) must be even, got %d", ErrLayout, total)
	case maxTemperature < 1:
		return Layout{}, fmt.Errorf("%w: max temperature must be >= 1, got %g", ErrLayout, maxTemperature)
	}
	return l, nil
}

func (l Layout) TotalChains() int { return l.Chains * l.Temperatures }

func (l Layout) PerChain() int { return l.Processes / l.TotalChains() }

// Temperature returns the ladder rung of a temperature id, spaced
// logarithmically from 1 to MaxTemperature.
func (l Layout) Temperature(id int) float64 {
	if l.Temperatures <= 1 {
		return 1
	}
	return math.Pow(10, math.Log10(l.MaxTemperature)*float64(id)/float64(l.Temperatures-1))
}

func (l Layout) Place(rank int) Placement {
	per := l.PerChain()
	chainID := rank / per
	tid := chainID / l.Chains
	return Placement{
		Rank:          rank,
		ChainID:       chainID,
		ChainRank:     rank % per,
		TemperatureID: tid,
		Temperature:   l.Temperature(tid),
	}
}

// FileName builds the per-chain output name "<prefix><name>-%03d".
func FileName(prefix, name string, chainID int) string {
	return fmt.Sprintf("%s%s-%03d", prefix, name, chainID)
}
