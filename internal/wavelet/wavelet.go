package wavelet

import (
	"fmt"
	"strings"
)

// ID selects one of the supported 1D steps.
type ID int

const (
	Haar ID = iota
	Daub4
	Daub6
	Daub8
	CDF97
	CDF97Periodic
)

var names = map[ID]string{
	Haar:          "haar",
	Daub4:         "daub4",
	Daub6:         "daub6",
	Daub8:         "daub8",
	CDF97:         "cdf97",
	CDF97Periodic: "cdf97-periodic",
}

func (id ID) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("wavelet(%d)", int(id))
}

// Parse accepts either the numeric id or the name.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for id, name := range names {
		if name == s || fmt.Sprint(int(id)) == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown wavelet %q", s)
}

// Step is one level of a 1D transform. Forward leaves the low-pass half in
// x[:n/2] and the high-pass half in x[n/2:]; Inverse undoes it. work must
// hold at least len(x) values. len(x) must be even.
type Step interface {
	Forward(x, work []float64)
	Inverse(x, work []float64)
}

func Lookup(id ID) (Step, error) {
	switch id {
	case Haar:
		return haar{}, nil
	case Daub4:
		return newOrthogonal(daub4), nil
	case Daub6:
		return newOrthogonal(daub6), nil
	case Daub8:
		return newOrthogonal(daub8), nil
	case CDF97:
		return cdf97{periodic: false}, nil
	case CDF97Periodic:
		return cdf97{periodic: true}, nil
	default:
		return nil, fmt.Errorf("unknown wavelet id %d", int(id))
	}
}
