package likelihood

import "fmt"

// Partition assigns contiguous image columns to the ranks of a chain.
type Partition struct {
	Sizes   []int
	Offsets []int
}

// NewPartition splits columns over ranks, giving the remainder to the
// lowest ranks.
func NewPartition(columns, ranks int) (Partition, error) {
	if columns < 1 || ranks < 1 {
		return Partition{}, fmt.Errorf("cannot partition %d columns over %d ranks", columns, ranks)
	}
	p := Partition{Sizes: make([]int, ranks), Offsets: make([]int, ranks)}
	base, extra := columns/ranks, columns%ranks
	offset := 0
	for r := range p.Sizes {
		p.Sizes[r] = base
		if r < extra {
			p.Sizes[r]++
		}
		p.Offsets[r] = offset
		offset += p.Sizes[r]
	}
	if offset != columns {
		return Partition{}, fmt.Errorf("partition covers %d of %d columns", offset, columns)
	}
	return p, nil
}

// Scaled returns counts and offsets with every column expanded to n values.
func (p Partition) Scaled(n int) ([]int, []int) {
	counts := make([]int, len(p.Sizes))
	offsets := make([]int, len(p.Sizes))
	for r := range p.Sizes {
		counts[r] = p.Sizes[r] * n
		offsets[r] = p.Offsets[r] * n
	}
	return counts, offsets
}
