package wavetree

import "fmt"

type PerturbationKind uint8

const (
	PerturbNone PerturbationKind = iota
	PerturbBirth
	PerturbDeath
	PerturbValue
)

func (k PerturbationKind) String() string {
	switch k {
	case PerturbBirth:
		return "birth"
	case PerturbDeath:
		return "death"
	case PerturbValue:
		return "value"
	default:
		return "none"
	}
}

// Perturbation describes the most recent attempted change.
type Perturbation struct {
	Kind     PerturbationKind
	Index    int
	Depth    int
	Old      float64
	New      float64
	Accepted bool
}

func (t *Tree) LastPerturbation() Perturbation {
	return t.last
}

// ClearPerturbation records that the latest step changed nothing.
func (t *Tree) ClearPerturbation() {
	t.last = Perturbation{}
	t.undo = false
}

func (t *Tree) ProposeBirth(index int, value float64) error {
	if !t.valid(index) || t.Active(index) {
		return fmt.Errorf("birth at %d: %w", index, ErrInvalidIndex)
	}
	parent, ok := t.Parent(index)
	if !ok || !t.Active(parent) {
		return fmt.Errorf("birth at %d without active parent: %w", index, ErrInvalidIndex)
	}
	t.coeffs[index] = value
	t.last = Perturbation{Kind: PerturbBirth, Index: index, Depth: t.Depth(index), New: value}
	t.undo = true
	return nil
}

// ProposeDeath removes an active leaf and returns its value.
func (t *Tree) ProposeDeath(index int) (float64, error) {
	if index == Root {
		return 0, fmt.Errorf("death of root: %w", ErrInvalidIndex)
	}
	value, ok := t.coeffs[index]
	if !ok || t.hasActiveChild(index) {
		return 0, fmt.Errorf("death at %d: %w", index, ErrInvalidIndex)
	}
	delete(t.coeffs, index)
	t.last = Perturbation{Kind: PerturbDeath, Index: index, Depth: t.Depth(index), Old: value}
	t.undo = true
	return value, nil
}

// ProposeValue replaces an active coefficient and returns the old value.
func (t *Tree) ProposeValue(index int, value float64) (float64, error) {
	old, ok := t.coeffs[index]
	if !ok {
		return 0, fmt.Errorf("value at %d: %w", index, ErrInvalidIndex)
	}
	t.coeffs[index] = value
	t.last = Perturbation{Kind: PerturbValue, Index: index, Depth: t.Depth(index), Old: old, New: value}
	t.undo = true
	return old, nil
}

// Undo reverts the single most recent proposal.
func (t *Tree) Undo() error {
	if !t.undo {
		return ErrNoUndo
	}
	switch t.last.Kind {
	case PerturbBirth:
		delete(t.coeffs, t.last.Index)
	case PerturbDeath, PerturbValue:
		t.coeffs[t.last.Index] = t.last.Old
	}
	t.last.Accepted = false
	t.undo = false
	return nil
}

// Commit marks the most recent proposal as accepted.
func (t *Tree) Commit() {
	t.last.Accepted = true
	t.undo = false
}

// Apply replays a recorded accepted change without touching the undo
// state.
func (t *Tree) Apply(p Perturbation) error {
	switch p.Kind {
	case PerturbBirth, PerturbValue:
		if !t.valid(p.Index) {
			return fmt.Errorf("apply %s at %d: %w", p.Kind, p.Index, ErrInvalidIndex)
		}
		t.coeffs[p.Index] = p.New
	case PerturbDeath:
		if p.Index == Root {
			return fmt.Errorf("apply death of root: %w", ErrInvalidIndex)
		}
		delete(t.coeffs, p.Index)
	}
	return nil
}
