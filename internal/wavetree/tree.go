package wavetree

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
)

var (
	ErrInvalidIndex = errors.New("invalid tree index")
	ErrNoUndo       = errors.New("no proposal to undo")
)

const Root = 0

// Tree is the sparse set of active wavelet coefficients on a
// 2^degreeY x 2^degreeX grid. Index = row*width + col.
type Tree struct {
	degreeX, degreeY int
	width, height    int
	maxDepth         int

	coeffs map[int]float64
	last   Perturbation
	undo   bool
}

// New returns a tree holding only the root coefficient.
func New(degreeX, degreeY int, root float64) (*Tree, error) {
	if degreeX < 0 || degreeY < 0 || degreeX > 16 || degreeY > 16 {
		return nil, fmt.Errorf("degrees %d,%d out of range", degreeX, degreeY)
	}
	t := &Tree{
		degreeX:  degreeX,
		degreeY:  degreeY,
		width:    1 << degreeX,
		height:   1 << degreeY,
		maxDepth: max(degreeX, degreeY),
		coeffs:   map[int]float64{Root: root},
	}
	return t, nil
}

func (t *Tree) DegreeX() int  { return t.degreeX }
func (t *Tree) DegreeY() int  { return t.degreeY }
func (t *Tree) Width() int    { return t.width }
func (t *Tree) Height() int   { return t.height }
func (t *Tree) MaxDepth() int { return t.maxDepth }
func (t *Tree) Size() int     { return t.width * t.height }
func (t *Tree) Count() int    { return len(t.coeffs) }

func (t *Tree) ToGrid(index int) (row, col int) {
	return index / t.width, index % t.width
}

func (t *Tree) FromGrid(row, col int) int {
	return row*t.width + col
}

func (t *Tree) valid(index int) bool {
	return index >= 0 && index < t.Size()
}

func level(v int) int {
	return bits.Len(uint(v))
}

func (t *Tree) Depth(index int) int {
	row, col := t.ToGrid(index)
	return max(level(row), level(col))
}

// Parent returns the next-coarser node. The root has no parent.
func (t *Tree) Parent(index int) (int, bool) {
	if index == Root || !t.valid(index) {
		return 0, false
	}
	row, col := t.ToGrid(index)
	d := max(level(row), level(col))
	square := min(t.degreeX, t.degreeY)
	switch {
	case d <= square:
		return t.FromGrid(row>>1, col>>1), true
	case t.degreeX > t.degreeY:
		return t.FromGrid(row, col>>1), true
	default:
		return t.FromGrid(row>>1, col), true
	}
}

func (t *Tree) Children(index int) []int {
	if !t.valid(index) {
		return nil
	}
	row, col := t.ToGrid(index)
	var out []int
	for _, rc := range [][2]int{{2 * row, 2 * col}, {2 * row, 2*col + 1}, {2*row + 1, 2 * col}, {2*row + 1, 2*col + 1}, {row, 2 * col}, {row, 2*col + 1}, {2 * row, col}, {2*row + 1, col}} {
		r, c := rc[0], rc[1]
		if r >= t.height || c >= t.width {
			continue
		}
		child := t.FromGrid(r, c)
		if child == index || slices.Contains(out, child) {
			continue
		}
		if p, ok := t.Parent(child); ok && p == index {
			out = append(out, child)
		}
	}
	slices.Sort(out)
	return out
}

func (t *Tree) Active(index int) bool {
	_, ok := t.coeffs[index]
	return ok
}

func (t *Tree) Value(index int) (float64, bool) {
	v, ok := t.coeffs[index]
	return v, ok
}

// Indices returns the active indices in ascending order.
func (t *Tree) Indices() []int {
	out := make([]int, 0, len(t.coeffs))
	for idx := range t.coeffs {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// MapToArray zero fills out and scatters the active coefficients into it.
func (t *Tree) MapToArray(out []float64) error {
	if len(out) != t.Size() {
		return fmt.Errorf("dense array has %d values, want %d", len(out), t.Size())
	}
	clear(out)
	for idx, v := range t.coeffs {
		out[idx] = v
	}
	return nil
}

// Candidates groups node indices by depth.
type Candidates [][]int

func (c Candidates) Total() int {
	n := 0
	for _, d := range c {
		n += len(d)
	}
	return n
}

// Depths returns the depths that have at least one candidate.
func (c Candidates) Depths() []int {
	var out []int
	for d, list := range c {
		if len(list) > 0 {
			out = append(out, d)
		}
	}
	return out
}

// BirthCandidates lists inactive nodes whose parent is active.
func (t *Tree) BirthCandidates() Candidates {
	out := make(Candidates, t.maxDepth+1)
	for _, idx := range t.Indices() {
		for _, child := range t.Children(idx) {
			if !t.Active(child) {
				d := t.Depth(child)
				out[d] = append(out[d], child)
			}
		}
	}
	for _, list := range out {
		slices.Sort(list)
	}
	return out
}

// DeathCandidates lists active non-root nodes with no active children.
func (t *Tree) DeathCandidates() Candidates {
	out := make(Candidates, t.maxDepth+1)
	for _, idx := range t.Indices() {
		if idx == Root || t.hasActiveChild(idx) {
			continue
		}
		d := t.Depth(idx)
		out[d] = append(out[d], idx)
	}
	return out
}

func (t *Tree) hasActiveChild(index int) bool {
	for _, child := range t.Children(index) {
		if t.Active(child) {
			return true
		}
	}
	return false
}

func (t *Tree) Clone() *Tree {
	c := *t
	c.coeffs = make(map[int]float64, len(t.coeffs))
	for k, v := range t.coeffs {
		c.coeffs[k] = v
	}
	return &c
}

// Equal reports whether both trees hold the same coefficients.
func (t *Tree) Equal(o *Tree) bool {
	if t.degreeX != o.degreeX || t.degreeY != o.degreeY || len(t.coeffs) != len(o.coeffs) {
		return false
	}
	for k, v := range t.coeffs {
		if ov, ok := o.coeffs[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
