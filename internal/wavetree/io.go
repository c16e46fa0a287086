package wavetree

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Write stores the tree as "degreeX degreeY k" followed by k lines of
// "index value".
func (t *Tree) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n", t.degreeX, t.degreeY, len(t.coeffs))
	for _, idx := range t.Indices() {
		fmt.Fprintf(bw, "%d %s\n", idx, strconv.FormatFloat(t.coeffs[idx], 'g', -1, 64))
	}
	return bw.Flush()
}

func (t *Tree) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write model %s: %w", path, err)
	}
	return f.Close()
}

type savedTree struct {
	degreeX, degreeY int
	coeffs           map[int]float64
}

func read(r io.Reader) (savedTree, error) {
	sc := bufio.NewScanner(r)
	line := 0
	next := func() ([]string, error) {
		for sc.Scan() {
			line++
			fields := strings.Fields(sc.Text())
			if len(fields) > 0 {
				return fields, nil
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}

	header, err := next()
	if err != nil {
		return savedTree{}, fmt.Errorf("header: %w", err)
	}
	if len(header) != 3 {
		return savedTree{}, fmt.Errorf("line %d: header needs 3 fields, got %d", line, len(header))
	}
	var vals [3]int
	for i, f := range header {
		if vals[i], err = strconv.Atoi(f); err != nil {
			return savedTree{}, fmt.Errorf("line %d: %w", line, err)
		}
	}
	out := savedTree{degreeX: vals[0], degreeY: vals[1], coeffs: make(map[int]float64, vals[2])}
	for i := 0; i < vals[2]; i++ {
		fields, err := next()
		if err != nil {
			return savedTree{}, fmt.Errorf("coefficient %d: %w", i, err)
		}
		if len(fields) != 2 {
			return savedTree{}, fmt.Errorf("line %d: expected index and value", line)
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			return savedTree{}, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return savedTree{}, fmt.Errorf("line %d: %w", line, err)
		}
		out.coeffs[idx] = v
	}
	return out, nil
}

// Read parses a tree written by Write.
func Read(r io.Reader) (*Tree, error) {
	saved, err := read(r)
	if err != nil {
		return nil, err
	}
	t, err := New(saved.degreeX, saved.degreeY, 0)
	if err != nil {
		return nil, err
	}
	if err := t.fill(saved.coeffs); err != nil {
		return nil, err
	}
	return t, nil
}

func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	return t, nil
}

// LoadPromote loads a model saved with degrees no larger than the target
// and places each coefficient at the same grid position in a tree of the
// target degrees. The parent rule depends on the degrees, so a moved
// coefficient can land under an ancestor the saved model never held;
// such ancestors are added with a zero value, which leaves the image
// unchanged but can raise k.
func LoadPromote(path string, degreeX, degreeY int) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	saved, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	if saved.degreeX > degreeX || saved.degreeY > degreeY {
		return nil, fmt.Errorf("cannot promote %dx%d model to degrees %d,%d", saved.degreeX, saved.degreeY, degreeX, degreeY)
	}
	t, err := New(degreeX, degreeY, 0)
	if err != nil {
		return nil, err
	}
	width, height := 1<<saved.degreeX, 1<<saved.degreeY
	coeffs := make(map[int]float64, len(saved.coeffs))
	for idx, v := range saved.coeffs {
		if idx < 0 || idx >= width*height {
			return nil, fmt.Errorf("promote %s: coefficient %d: %w", path, idx, ErrInvalidIndex)
		}
		coeffs[t.FromGrid(idx/width, idx%width)] = v
	}
	for idx := range saved.coeffs {
		p, ok := t.Parent(t.FromGrid(idx/width, idx%width))
		for ok {
			if _, have := coeffs[p]; !have {
				coeffs[p] = 0
			}
			p, ok = t.Parent(p)
		}
	}
	if err := t.fill(coeffs); err != nil {
		return nil, fmt.Errorf("promote %s: %w", path, err)
	}
	return t, nil
}

// fill installs coefficients and checks the tree is connected.
func (t *Tree) fill(coeffs map[int]float64) error {
	clear(t.coeffs)
	for idx, v := range coeffs {
		if !t.valid(idx) {
			return fmt.Errorf("coefficient %d: %w", idx, ErrInvalidIndex)
		}
		t.coeffs[idx] = v
	}
	if _, ok := t.coeffs[Root]; !ok {
		return fmt.Errorf("model has no root coefficient: %w", ErrInvalidIndex)
	}
	for idx := range t.coeffs {
		if p, ok := t.Parent(idx); ok && !t.Active(p) {
			return fmt.Errorf("coefficient %d has no active parent %d: %w", idx, p, ErrInvalidIndex)
		}
	}
	t.last = Perturbation{}
	t.undo = false
	return nil
}

const encodingVersion = 1

// Encode produces the compact binary form used to move a model between
// ranks.
func (t *Tree) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(8 + 12*len(t.coeffs))
	buf.WriteByte(encodingVersion)
	buf.WriteByte(byte(t.degreeX))
	buf.WriteByte(byte(t.degreeY))
	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(t.coeffs)))
	buf.Write(scratch[:4])
	for _, idx := range t.Indices() {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(idx))
		buf.Write(scratch[:4])
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(t.coeffs[idx]))
		buf.Write(scratch[:])
	}
	return buf.Bytes()
}

// Decode replaces the tree contents with an encoded model of the same
// degrees.
func (t *Tree) Decode(data []byte) error {
	if len(data) < 7 {
		return fmt.Errorf("encoded model too short: %d bytes", len(data))
	}
	if data[0] != encodingVersion {
		return fmt.Errorf("encoded model version %d unsupported", data[0])
	}
	if int(data[1]) != t.degreeX || int(data[2]) != t.degreeY {
		return fmt.Errorf("encoded model degrees %d,%d do not match %d,%d", data[1], data[2], t.degreeX, t.degreeY)
	}
	k := int(binary.LittleEndian.Uint32(data[3:7]))
	body := data[7:]
	if len(body) != 12*k {
		return fmt.Errorf("encoded model holds %d bytes for %d coefficients", len(body), k)
	}
	coeffs := make(map[int]float64, k)
	for i := 0; i < k; i++ {
		rec := body[12*i:]
		idx := int(binary.LittleEndian.Uint32(rec[:4]))
		coeffs[idx] = math.Float64frombits(binary.LittleEndian.Uint64(rec[4:12]))
	}
	return t.fill(coeffs)
}
