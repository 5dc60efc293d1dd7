package grbl

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrNotStatusReport = errors.New("not a status report")

// Machine state tokens, as reported on the first field of a status report.
const (
	StateIdle  = "Idle"
	StateRun   = "Run"
	StateHold  = "Hold"
	StateJog   = "Jog"
	StateAlarm = "Alarm"
	StateDoor  = "Door"
	StateCheck = "Check"
	StateHome  = "Home"
	StateSleep = "Sleep"
)

// BufferState is the Bf: field.
type BufferState struct {
	// Number of available blocks in the planner buffer
	AvailableBlocks int
	// Number of available bytes in the serial RX buffer
	AvailableBytes int
}

// OverrideValues is the Ov: field, in percent of programmed values.
type OverrideValues struct {
	Feed    int
	Rapids  int
	Spindle int
}

// FeedSpindle is the FS: (or F:) field.
type FeedSpindle struct {
	Feed  float64
	Speed *float64
}

// StatusReport is a parsed `<...>` line. Every field but Message is optional: Grbl only reports
// what its $10 mask and refresh counters select.
type StatusReport struct {
	Message string
	// Raw machine state token, including sub-state qualifiers (eg: "Hold:0"). Empty when absent.
	MachineState         string
	MachinePosition      *Position
	WorkPosition         *Position
	WorkCoordinateOffset *Position
	BufferState          *BufferState
	LineNumber           *int
	FeedSpindle          *FeedSpindle
	OverrideValues       *OverrideValues
	// Raw Pn: field, one letter per triggered pin.
	PinState *string
	// Raw A: field, one letter per enabled accessory.
	AccessoryState *string
	// Fields that were present but could not be parsed. They are skipped, the rest of the report
	// is still usable.
	FieldErrors []error
}

func parseInts(values []string, n int, name string) ([]int, error) {
	if len(values) != n {
		return nil, fmt.Errorf("%s field malformed: %#v", name, values)
	}
	ints := make([]int, n)
	for i, value := range values {
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%s value invalid: %#v", name, value)
		}
		ints[i] = v
	}
	return ints, nil
}

func parseFeedSpindle(values []string) (*FeedSpindle, error) {
	if len(values) < 1 || len(values) > 2 {
		return nil, fmt.Errorf("feed spindle field malformed: %#v", values)
	}
	feed, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return nil, fmt.Errorf("feed invalid: %#v", values[0])
	}
	feedSpindle := &FeedSpindle{Feed: feed}
	if len(values) == 2 {
		speed, err := strconv.ParseFloat(values[1], 64)
		if err != nil {
			return nil, fmt.Errorf("spindle speed invalid: %#v", values[1])
		}
		feedSpindle.Speed = &speed
	}
	return feedSpindle, nil
}

//gocyclo:ignore
func (r *StatusReport) parseDataField(dataField string) error {
	dataType, value, ok := strings.Cut(dataField, ":")
	if !ok {
		return fmt.Errorf("malformed data field: %#v", dataField)
	}
	dataValues := strings.Split(value, ",")

	var err error
	switch dataType {
	case "MPos":
		r.MachinePosition, err = NewPositionFromStrValues(dataValues)
	case "WPos":
		r.WorkPosition, err = NewPositionFromStrValues(dataValues)
	case "WCO":
		r.WorkCoordinateOffset, err = NewPositionFromStrValues(dataValues)
	case "Bf":
		var ints []int
		if ints, err = parseInts(dataValues, 2, "buffer state"); err == nil {
			r.BufferState = &BufferState{AvailableBlocks: ints[0], AvailableBytes: ints[1]}
		}
	case "Ln":
		var ints []int
		if ints, err = parseInts(dataValues, 1, "line number"); err == nil {
			r.LineNumber = &ints[0]
		}
	case "F", "FS":
		r.FeedSpindle, err = parseFeedSpindle(dataValues)
	case "Ov":
		var ints []int
		if ints, err = parseInts(dataValues, 3, "override values"); err == nil {
			r.OverrideValues = &OverrideValues{Feed: ints[0], Rapids: ints[1], Spindle: ints[2]}
		}
	case "Pn":
		r.PinState = &value
	case "A":
		r.AccessoryState = &value
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", dataType, err)
	}
	return nil
}

// Grbl 0.9 reports `<Idle,MPos:0.000,0.000,0.000,WPos:0.000,0.000,0.000>`.
var legacyStatusReportRx = regexp.MustCompile(
	`^(\w+(?::\d+)?),MPos:([^,]+,[^,]+,[^,]+),WPos:([^,]+,[^,]+,[^,>]+)`,
)

func (r *StatusReport) parseLegacy(content string) bool {
	parts := legacyStatusReportRx.FindStringSubmatch(content)
	if parts == nil {
		return false
	}
	r.MachineState = parts[1]
	if err := r.parseDataField("MPos:" + parts[2]); err != nil {
		r.FieldErrors = append(r.FieldErrors, err)
	}
	if err := r.parseDataField("WPos:" + parts[3]); err != nil {
		r.FieldErrors = append(r.FieldErrors, err)
	}
	return true
}

// ParseStatusReport parses a status report line. It only fails when the line is not a status
// report at all; malformed data fields are collected at StatusReport.FieldErrors.
func ParseStatusReport(line string) (*StatusReport, error) {
	if !strings.HasPrefix(line, "<") {
		return nil, fmt.Errorf("%w: does not start with '<': %#v", ErrNotStatusReport, line)
	}
	content := strings.TrimSuffix(line[1:], ">")

	report := &StatusReport{Message: line}

	if !strings.Contains(content, "|") && report.parseLegacy(content) {
		return report, nil
	}

	// the first field is always the machine state, possibly with a sub-state qualifier
	dataFields := strings.Split(content, "|")
	report.MachineState = dataFields[0]
	for _, dataField := range dataFields[1:] {
		if dataField == "" {
			continue
		}
		if err := report.parseDataField(dataField); err != nil {
			report.FieldErrors = append(report.FieldErrors, err)
		}
	}

	return report, nil
}
