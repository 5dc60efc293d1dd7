package grbl

import (
	"fmt"
	"strconv"
	"strings"
)

// Probe is the last probing cycle result, as reported by [PRB:...].
type Probe struct {
	Position   Position
	Successful bool
}

// NewProbe parses "[PRB:x,y,z:s]".
func NewProbe(line string) (*Probe, error) {
	if !strings.HasPrefix(line, "[PRB:") || !strings.HasSuffix(line, "]") {
		return nil, fmt.Errorf("probe message malformed: %#v", line)
	}
	content := line[len("[PRB:") : len(line)-1]

	positionStr, successStr, ok := cutLast(content, ":")
	if !ok {
		return nil, fmt.Errorf("probe message missing success flag: %#v", line)
	}
	if successStr != "0" && successStr != "1" {
		return nil, fmt.Errorf("probe message success flag invalid: %#v", line)
	}

	position, err := NewPositionFromCSV(positionStr)
	if err != nil {
		return nil, fmt.Errorf("probe message position invalid: %#v: %w", line, err)
	}

	return &Probe{
		Position:   *position,
		Successful: successStr == "1",
	}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	idx := strings.LastIndex(s, sep)
	if idx == -1 {
		return s, "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

// Parameter is a single line of the $# report. Exactly one of Position, ToolLengthOffset or Probe
// is set, depending on Name.
type Parameter struct {
	// G54..G59, G28, G30, G92, TLO or PRB.
	Name             string
	Position         *Position
	ToolLengthOffset *float64
	Probe            *Probe
}

// WorkCoordinateSystem returns 54..59 when the parameter is a work coordinate system offset.
func (p *Parameter) WorkCoordinateSystem() (int, bool) {
	if len(p.Name) != 3 || p.Name[0] != 'G' {
		return 0, false
	}
	n, err := strconv.Atoi(p.Name[1:])
	if err != nil || n < 54 || n > 59 {
		return 0, false
	}
	return n, true
}

// ParseParameter parses lines such as "[G54:0.000,0.000,0.000]", "[TLO:0.000]" or
// "[PRB:0.000,0.000,0.000:0]".
func ParseParameter(line string) (*Parameter, error) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return nil, fmt.Errorf("parameter message malformed: not surrounded by []: %#v", line)
	}
	name, value, ok := strings.Cut(line[1:len(line)-1], ":")
	if !ok {
		return nil, fmt.Errorf("parameter message malformed: missing colon: %#v", line)
	}

	parameter := &Parameter{Name: name}
	switch name {
	case "G54", "G55", "G56", "G57", "G58", "G59", "G28", "G30", "G92":
		position, err := NewPositionFromCSV(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %s invalid: %#v: %w", name, line, err)
		}
		parameter.Position = position
	case "TLO":
		offset, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter TLO invalid: %#v: %w", line, err)
		}
		parameter.ToolLengthOffset = &offset
	case "PRB":
		probe, err := NewProbe(line)
		if err != nil {
			return nil, fmt.Errorf("parameter PRB invalid: %w", err)
		}
		parameter.Probe = probe
	default:
		return nil, fmt.Errorf("parameter message unknown type: %#v", line)
	}
	return parameter, nil
}
