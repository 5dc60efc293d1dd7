package grbl

import (
	"fmt"
	"strconv"
	"strings"
)

// Position holds per-axis coordinates. X, Y and Z are always reported; A, B and C only on
// machines built with extra axes.
type Position struct {
	X float64
	Y float64
	Z float64
	A *float64
	B *float64
	C *float64
}

// NewPositionFromStrValues parses 3 to 6 axis values, in X, Y, Z, A, B, C order.
func NewPositionFromStrValues(values []string) (*Position, error) {
	if len(values) < 3 || len(values) > 6 {
		return nil, fmt.Errorf("position field malformed: %#v", values)
	}

	parsed := make([]float64, len(values))
	for i, value := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("position %s invalid: %#v", axisNames[i], value)
		}
		parsed[i] = f
	}

	position := &Position{
		X: parsed[0],
		Y: parsed[1],
		Z: parsed[2],
	}
	extra := []**float64{&position.A, &position.B, &position.C}
	for i, f := range parsed[3:] {
		*extra[i] = &f
	}
	return position, nil
}

// NewPositionFromCSV parses "X,Y,Z[,A[,B[,C]]]".
func NewPositionFromCSV(s string) (*Position, error) {
	return NewPositionFromStrValues(strings.Split(s, ","))
}

var axisNames = []string{"X", "Y", "Z", "A", "B", "C"}

// GetAxis returns the value for the given axis letter, or nil if the axis is unknown or was not
// reported.
func (p *Position) GetAxis(axis rune) *float64 {
	switch axis {
	case 'X':
		return &p.X
	case 'Y':
		return &p.Y
	case 'Z':
		return &p.Z
	case 'A':
		return p.A
	case 'B':
		return p.B
	case 'C':
		return p.C
	}
	return nil
}

func combineOptional(a, b *float64, fn func(float64, float64) float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := fn(*a, *b)
	return &v
}

func (p Position) combine(o Position, fn func(float64, float64) float64) Position {
	return Position{
		X: fn(p.X, o.X),
		Y: fn(p.Y, o.Y),
		Z: fn(p.Z, o.Z),
		A: combineOptional(p.A, o.A, fn),
		B: combineOptional(p.B, o.B, fn),
		C: combineOptional(p.C, o.C, fn),
	}
}

// Sub returns p - o. Optional axes are only kept when present on both sides.
func (p Position) Sub(o Position) Position {
	return p.combine(o, func(a, b float64) float64 { return a - b })
}

// Add returns p + o. Optional axes are only kept when present on both sides.
func (p Position) Add(o Position) Position {
	return p.combine(o, func(a, b float64) float64 { return a + b })
}

func (p Position) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "X%.3f Y%.3f Z%.3f", p.X, p.Y, p.Z)
	for i, v := range []*float64{p.A, p.B, p.C} {
		if v != nil {
			fmt.Fprintf(&b, " %s%.3f", axisNames[3+i], *v)
		}
	}
	return b.String()
}
