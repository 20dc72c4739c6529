package flow

import (
	"fmt"
	"math"
	"strings"
)

// WeeksPerYear is the number of weekly totals in one water year.
const WeeksPerYear = 52

// Tail selects which end of a sorted year is kept.
type Tail int

const (
	// Drought sorts ascending and keeps the lowest flows.
	Drought Tail = iota
	// Flood sorts descending and keeps the highest flows.
	Flood
)

func (t Tail) String() string {
	switch t {
	case Drought:
		return "drought"
	case Flood:
		return "flood"
	}
	return fmt.Sprintf("tail(%d)", int(t))
}

// ParseTail accepts "drought"/"low" and "flood"/"high".
func ParseTail(s string) (Tail, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drought", "low":
		return Drought, nil
	case "flood", "high":
		return Flood, nil
	}
	return Drought, fmt.Errorf("unknown tail %q (want drought or flood)", s)
}

// Space is the value space an analysis runs in.
type Space string

const (
	Real Space = "real"
	Log  Space = "log"
)

func (s Space) String() string { return string(s) }

// Transform maps a value into the space. Log of non-positive flows yields
// -Inf or NaN, which downstream statistics propagate.
func (s Space) Transform(v float64) float64 {
	if s == Log {
		return math.Log(v)
	}
	return v
}

// ParseSpace accepts "real" and "log".
func ParseSpace(s string) (Space, error) {
	switch Space(strings.ToLower(strings.TrimSpace(s))) {
	case Real:
		return Real, nil
	case Log:
		return Log, nil
	}
	return Real, fmt.Errorf("unknown space %q (want real or log)", s)
}

// Spaces lists every space in the order figures are produced.
func Spaces() []Space {
	return []Space{Real, Log}
}
