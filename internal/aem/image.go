package aem

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultConductivity = 0.25
	ThicknessTolerance  = 1e-3
)

var ErrThickness = errors.New("layer thickness does not sum to depth")

// LayerThickness returns the rows-1 logarithmically spaced layer
// thicknesses of an earth of the given total depth. The last row is the
// half-space below.
func LayerThickness(rows int, depth float64) ([]float64, error) {
	if rows < 2 {
		return nil, fmt.Errorf("need at least 2 rows for a layered earth, got %d", rows)
	}
	if depth <= 0 {
		return nil, fmt.Errorf("depth must be positive, got %g", depth)
	}
	n := rows - 1
	thick := make([]float64, n)
	prev := 0.0
	for i := 1; i <= n; i++ {
		z := math.Exp(math.Log(depth+1)*float64(i)/float64(n)) - 1
		thick[i-1] = z - prev
		prev = z
	}
	if err := CheckThickness(thick, depth); err != nil {
		return nil, err
	}
	return thick, nil
}

func CheckThickness(thick []float64, depth float64) error {
	sum := 0.0
	for _, t := range thick {
		sum += t
	}
	if math.Abs(sum-depth) > ThicknessTolerance {
		return fmt.Errorf("%w: %g vs %g", ErrThickness, sum, depth)
	}
	return nil
}

// Image is a rows x columns conductivity section, row-major with row 0 at
// the surface.
type Image struct {
	Rows, Columns int
	Depth         float64
	Values        []float64
	Thickness     []float64
}

func NewImage(rows, columns int, depth float64) (*Image, error) {
	if columns < 1 {
		return nil, fmt.Errorf("need at least 1 column, got %d", columns)
	}
	thick, err := LayerThickness(rows, depth)
	if err != nil {
		return nil, err
	}
	return &Image{
		Rows:      rows,
		Columns:   columns,
		Depth:     depth,
		Values:    make([]float64, rows*columns),
		Thickness: thick,
	}, nil
}

func (im *Image) At(row, col int) float64 {
	return im.Values[row*im.Columns+col]
}

func (im *Image) Set(row, col int, v float64) {
	im.Values[row*im.Columns+col] = v
}

// Column copies one column into out, applying f when it is non-nil.
func (im *Image) Column(col int, out []float64, f func(float64) float64) {
	for r := 0; r < im.Rows; r++ {
		v := im.Values[r*im.Columns+col]
		if f != nil {
			v = f(v)
		}
		out[r] = v
	}
}

func (im *Image) Fill(v float64) {
	for i := range im.Values {
		im.Values[i] = v
	}
}

func (im *Image) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %s\n", im.Rows, im.Columns, strconv.FormatFloat(im.Depth, 'g', -1, 64))
	for r := 0; r < im.Rows; r++ {
		for c := 0; c < im.Columns; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(im.At(r, c), 'g', 10, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func (im *Image) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := im.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write image %s: %w", path, err)
	}
	return f.Close()
}

func ReadImage(r io.Reader) (*Image, error) {
	sc := newTokenScanner(r)
	rows, err := sc.int()
	if err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	cols, err := sc.int()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	depth, err := sc.float()
	if err != nil {
		return nil, fmt.Errorf("depth: %w", err)
	}
	im, err := NewImage(rows, cols, depth)
	if err != nil {
		return nil, err
	}
	for i := range im.Values {
		if im.Values[i], err = sc.float(); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return im, nil
}

func LoadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	im, err := ReadImage(f)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	return im, nil
}

// tokenScanner reads whitespace separated numbers and tracks the line for
// error messages.
type tokenScanner struct {
	sc     *bufio.Scanner
	line   int
	fields []string
}

func newTokenScanner(r io.Reader) *tokenScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &tokenScanner{sc: sc}
}

func (t *tokenScanner) next() (string, error) {
	for len(t.fields) == 0 {
		if !t.sc.Scan() {
			if err := t.sc.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		t.line++
		t.fields = strings.Fields(t.sc.Text())
	}
	tok := t.fields[0]
	t.fields = t.fields[1:]
	return tok, nil
}

// atLineEnd reports whether the current line has been consumed.
func (t *tokenScanner) atLineEnd() bool {
	return len(t.fields) == 0
}

func (t *tokenScanner) float() (float64, error) {
	tok, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", t.line, err)
	}
	return v, nil
}

func (t *tokenScanner) int() (int, error) {
	tok, err := t.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", t.line, err)
	}
	return v, nil
}
