package wavelet

import (
	"fmt"
	"math/bits"
)

// Transform2D applies separable steps to a row-major image of width 2^dx
// and height 2^dy. Rows use the horizontal step and columns the vertical
// step. When the image is not square the longer dimension is first reduced
// on its own until the remaining low-pass block is square; that matches the
// parent/child layout of the wavelet tree.
type Transform2D struct {
	width, height int
	horizontal    Step
	vertical      Step
	column        []float64
	work          []float64
}

func NewTransform2D(width, height int, horizontal, vertical ID) (*Transform2D, error) {
	if width < 1 || height < 1 || bits.OnesCount(uint(width)) != 1 || bits.OnesCount(uint(height)) != 1 {
		return nil, fmt.Errorf("image size %dx%d is not a power of two", width, height)
	}
	h, err := Lookup(horizontal)
	if err != nil {
		return nil, fmt.Errorf("horizontal: %w", err)
	}
	v, err := Lookup(vertical)
	if err != nil {
		return nil, fmt.Errorf("vertical: %w", err)
	}
	n := max(width, height)
	return &Transform2D{
		width:      width,
		height:     height,
		horizontal: h,
		vertical:   v,
		column:     make([]float64, n),
		work:       make([]float64, n),
	}, nil
}

func (t *Transform2D) Width() int  { return t.width }
func (t *Transform2D) Height() int { return t.height }

func (t *Transform2D) checkSize(data []float64) error {
	if len(data) != t.width*t.height {
		return fmt.Errorf("image buffer has %d values, want %d", len(data), t.width*t.height)
	}
	return nil
}

func (t *Transform2D) rows(data []float64, nrows, length int, forward bool) {
	for r := 0; r < nrows; r++ {
		row := data[r*t.width : r*t.width+length]
		if forward {
			t.horizontal.Forward(row, t.work)
		} else {
			t.horizontal.Inverse(row, t.work)
		}
	}
}

func (t *Transform2D) columns(data []float64, ncols, length int, forward bool) {
	col := t.column[:length]
	for c := 0; c < ncols; c++ {
		for r := 0; r < length; r++ {
			col[r] = data[r*t.width+c]
		}
		if forward {
			t.vertical.Forward(col, t.work)
		} else {
			t.vertical.Inverse(col, t.work)
		}
		for r := 0; r < length; r++ {
			data[r*t.width+c] = col[r]
		}
	}
}

// Forward maps an image to coefficients in place.
func (t *Transform2D) Forward(data []float64) error {
	if err := t.checkSize(data); err != nil {
		return err
	}
	w, h := t.width, t.height
	for w > h {
		t.rows(data, h, w, true)
		w /= 2
	}
	for h > w {
		t.columns(data, w, h, true)
		h /= 2
	}
	for w > 1 {
		t.rows(data, h, w, true)
		t.columns(data, w, h, true)
		w /= 2
		h /= 2
	}
	return nil
}

// Inverse maps coefficients back to an image in place.
func (t *Transform2D) Inverse(data []float64) error {
	if err := t.checkSize(data); err != nil {
		return err
	}
	square := min(t.width, t.height)
	w, h := 1, 1
	for w < square {
		w *= 2
		h *= 2
		t.columns(data, w, h, false)
		t.rows(data, h, w, false)
	}
	for h < t.height {
		h *= 2
		t.columns(data, w, h, false)
	}
	for w < t.width {
		w *= 2
		t.rows(data, h, w, false)
	}
	return nil
}
