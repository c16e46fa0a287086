package sampler

import (
	"fmt"
	"strings"
)

// MoveStats counts proposals and acceptances of one move, overall and per
// tree depth.
type MoveStats struct {
	Name          string
	Proposed      int
	Accepted      int
	DepthProposed []int
	DepthAccepted []int
}

func newMoveStats(name string, maxDepth int) *MoveStats {
	return &MoveStats{
		Name:          name,
		DepthProposed: make([]int, maxDepth+1),
		DepthAccepted: make([]int, maxDepth+1),
	}
}

// record counts one proposal. depth < 0 marks moves that do not touch the
// tree.
func (s *MoveStats) record(depth int, accepted bool) {
	s.Proposed++
	if accepted {
		s.Accepted++
	}
	if depth < 0 || depth >= len(s.DepthProposed) {
		return
	}
	s.DepthProposed[depth]++
	if accepted {
		s.DepthAccepted[depth]++
	}
}

func rate(accepted, proposed int) float64 {
	if proposed == 0 {
		return 0
	}
	return 100 * float64(accepted) / float64(proposed)
}

// Rate is the acceptance percentage.
func (s *MoveStats) Rate() float64 { return rate(s.Accepted, s.Proposed) }

// Short formats the overall acceptance.
func (s *MoveStats) Short() string {
	return fmt.Sprintf("%s: %d/%d %.2f%%", s.Name, s.Accepted, s.Proposed, s.Rate())
}

// Long adds one column per depth that saw proposals.
func (s *MoveStats) Long() string {
	var b strings.Builder
	b.WriteString(s.Short())
	for d, n := range s.DepthProposed {
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, " [%d] %d/%d %.2f%%", d, s.DepthAccepted[d], n, rate(s.DepthAccepted[d], n))
	}
	return b.String()
}
