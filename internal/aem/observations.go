package aem

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type Direction int

const (
	DirectionX Direction = iota
	DirectionY
	DirectionZ
)

func (d Direction) String() string {
	switch d {
	case DirectionX:
		return "X"
	case DirectionY:
		return "Y"
	case DirectionZ:
		return "Z"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "X":
		return DirectionX, nil
	case "Y":
		return DirectionY, nil
	case "Z", "":
		return DirectionZ, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Geometry is the transmitter/receiver configuration of one survey point.
type Geometry struct {
	TxHeight float64
	TxRoll   float64
	TxPitch  float64
	TxYaw    float64
	TxRxDX   float64
	TxRxDY   float64
	TxRxDZ   float64
	RxRoll   float64
	RxPitch  float64
	RxYaw    float64
}

func (g *Geometry) fields() []*float64 {
	return []*float64{&g.TxHeight, &g.TxRoll, &g.TxPitch, &g.TxYaw, &g.TxRxDX, &g.TxRxDY, &g.TxRxDZ, &g.RxRoll, &g.RxPitch, &g.RxYaw}
}

type Response struct {
	Direction Direction
	Values    []float64
}

// Point is one survey station with one response per forward system.
type Point struct {
	Geometry  Geometry
	Responses []Response
}

type Observations struct {
	Points []Point
}

// ResponseSizes returns the window count of each system, checking that all
// points share the same layout.
func (o *Observations) ResponseSizes() ([]int, error) {
	if len(o.Points) == 0 {
		return nil, errors.New("no observation points")
	}
	sizes := make([]int, len(o.Points[0].Responses))
	for k, r := range o.Points[0].Responses {
		sizes[k] = len(r.Values)
	}
	for i, p := range o.Points[1:] {
		if len(p.Responses) != len(sizes) {
			return nil, fmt.Errorf("point %d has %d responses, want %d", i+1, len(p.Responses), len(sizes))
		}
		for k, r := range p.Responses {
			if len(r.Values) != sizes[k] {
				return nil, fmt.Errorf("point %d response %d has %d values, want %d", i+1, k, len(r.Values), sizes[k])
			}
		}
	}
	return sizes, nil
}

// TotalDatapoints is the length of the flattened residual vector.
func (o *Observations) TotalDatapoints() int {
	n := 0
	for _, p := range o.Points {
		for _, r := range p.Responses {
			n += len(r.Values)
		}
	}
	return n
}

func (o *Observations) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, p := range o.Points {
		for _, f := range p.Geometry.fields() {
			fmt.Fprintf(bw, "%15.9f ", *f)
		}
		fmt.Fprintf(bw, "%d ", len(p.Responses))
		for _, r := range p.Responses {
			fmt.Fprintf(bw, "%d %d ", int(r.Direction), len(r.Values))
			for _, v := range r.Values {
				bw.WriteString(strconv.FormatFloat(v, 'g', 9, 64))
				bw.WriteByte(' ')
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func (o *Observations) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := o.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write observations %s: %w", path, err)
	}
	return f.Close()
}

func ReadObservations(r io.Reader) (*Observations, error) {
	sc := newTokenScanner(r)
	obs := &Observations{}
	for {
		var p Point
		first := true
		for _, f := range p.Geometry.fields() {
			v, err := sc.float()
			if first && errors.Is(err, io.ErrUnexpectedEOF) {
				return obs, nil
			}
			if err != nil {
				return nil, fmt.Errorf("point %d geometry: %w", len(obs.Points), err)
			}
			*f = v
			first = false
		}
		n, err := sc.int()
		if err != nil {
			return nil, fmt.Errorf("point %d response count: %w", len(obs.Points), err)
		}
		for k := 0; k < n; k++ {
			dir, err := sc.int()
			if err != nil {
				return nil, fmt.Errorf("point %d response %d: %w", len(obs.Points), k, err)
			}
			if dir < int(DirectionX) || dir > int(DirectionZ) {
				return nil, fmt.Errorf("point %d response %d: invalid direction %d", len(obs.Points), k, dir)
			}
			count, err := sc.int()
			if err != nil {
				return nil, fmt.Errorf("point %d response %d: %w", len(obs.Points), k, err)
			}
			resp := Response{Direction: Direction(dir), Values: make([]float64, count)}
			for i := range resp.Values {
				if resp.Values[i], err = sc.float(); err != nil {
					return nil, fmt.Errorf("point %d response %d value %d: %w", len(obs.Points), k, i, err)
				}
			}
			p.Responses = append(p.Responses, resp)
		}
		if !sc.atLineEnd() {
			return nil, fmt.Errorf("line %d: trailing values after point %d", sc.line, len(obs.Points))
		}
		obs.Points = append(obs.Points, p)
	}
}

func LoadObservations(path string) (*Observations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	obs, err := ReadObservations(f)
	if err != nil {
		return nil, fmt.Errorf("read observations %s: %w", path, err)
	}
	if len(obs.Points) == 0 {
		return nil, fmt.Errorf("read observations %s: no points", path)
	}
	return obs, nil
}
