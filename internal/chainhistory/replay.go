package chainhistory

import (
	"errors"
	"fmt"
	"io"

	"aeminvert/internal/wavetree"
)

// State is what a replay callback sees after each step.
type State struct {
	Block      int
	Step       int
	Tree       *wavetree.Tree
	Last       Step
	Likelihood float64
	Lambda     float64
}

// Replay rebuilds the chain one step at a time on a degreeX x degreeY tree
// and calls fn after every step. Each block restarts from its baseline.
func Replay(r io.Reader, degreeX, degreeY int, fn func(State) error) (*wavetree.Tree, error) {
	var tree *wavetree.Tree
	for nblock := 0; ; nblock++ {
		b, err := ReadBlock(r)
		if errors.Is(err, io.EOF) {
			if tree == nil {
				return nil, errors.New("chain history is empty")
			}
			return tree, nil
		}
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", nblock, err)
		}
		if tree, err = baseline(b, degreeX, degreeY); err != nil {
			return nil, fmt.Errorf("block %d baseline: %w", nblock, err)
		}

		state := State{Block: nblock, Tree: tree, Likelihood: b.Likelihood, Lambda: b.Lambda}
		for i, s := range b.Steps {
			if s.Accepted {
				switch s.Kind {
				case KindBirth, KindDeath, KindValue:
					p := wavetree.Perturbation{Kind: wavetree.PerturbationKind(s.Kind), Index: s.Index, Old: s.Before, New: s.After}
					if err := tree.Apply(p); err != nil {
						return nil, fmt.Errorf("block %d step %d: %w", nblock, i, err)
					}
				}
			}
			state.Step = i
			state.Last = s
			state.Likelihood = s.Likelihood
			state.Lambda = s.Lambda
			if fn != nil {
				if err := fn(state); err != nil {
					return nil, err
				}
			}
		}
	}
}

func baseline(b Block, degreeX, degreeY int) (*wavetree.Tree, error) {
	var root float64
	found := false
	for _, c := range b.Baseline {
		if c.Index == wavetree.Root {
			root, found = c.Value, true
		}
	}
	if !found {
		return nil, errors.New("baseline has no root coefficient")
	}
	tree, err := wavetree.New(degreeX, degreeY, root)
	if err != nil {
		return nil, err
	}
	for _, c := range b.Baseline {
		if c.Index == wavetree.Root {
			continue
		}
		if err := tree.Apply(wavetree.Perturbation{Kind: wavetree.PerturbBirth, Index: c.Index, New: c.Value}); err != nil {
			return nil, err
		}
	}
	return tree, nil
}
