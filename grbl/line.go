package grbl

import (
	"fmt"
	"strconv"
	"strings"
)

// LineKind classifies a line received from Grbl.
type LineKind int

const (
	// Anything not recognized: welcome banner, settings, feedback messages, etc.
	LineKindInfo LineKind = iota
	LineKindOk
	LineKindError
	LineKindAlarm
	LineKindStatusReport
	LineKindParameter
)

var lineKindNames = map[LineKind]string{
	LineKindInfo:         "Info",
	LineKindOk:           "Ok",
	LineKindError:        "Error",
	LineKindAlarm:        "Alarm",
	LineKindStatusReport: "Status Report",
	LineKindParameter:    "Parameter",
}

func (k LineKind) String() string {
	if name, ok := lineKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", int(k))
}

const (
	lineOk           = "ok"
	lineErrorPrefix  = "error:"
	lineAlarmPrefix  = "ALARM:"
	lineStatusPrefix = "<"
)

var parameterPrefixes = []string{
	"[G54:", "[G55:", "[G56:", "[G57:", "[G58:", "[G59:",
	"[G28:", "[G30:", "[G92:", "[TLO:", "[PRB:",
}

// ClassifyLine tells what a single received line is. The line must have its terminator removed.
// Acknowledgements (ok and error:) are what release character-counting budget.
func ClassifyLine(line string) LineKind {
	switch {
	case line == lineOk:
		return LineKindOk
	case strings.HasPrefix(line, lineErrorPrefix):
		return LineKindError
	case strings.HasPrefix(line, lineAlarmPrefix):
		return LineKindAlarm
	case strings.HasPrefix(line, lineStatusPrefix):
		return LineKindStatusReport
	}
	for _, prefix := range parameterPrefixes {
		if strings.HasPrefix(line, prefix) {
			return LineKindParameter
		}
	}
	return LineKindInfo
}

// IsAcknowledgement reports whether kind answers a previously sent line.
func (k LineKind) IsAcknowledgement() bool {
	return k == LineKindOk || k == LineKindError
}

// ParseAlarmCode returns n for "ALARM:n".
func ParseAlarmCode(line string) (int, error) {
	if !strings.HasPrefix(line, lineAlarmPrefix) {
		return 0, fmt.Errorf("not an alarm: %#v", line)
	}
	n, err := strconv.Atoi(line[len(lineAlarmPrefix):])
	if err != nil {
		return 0, fmt.Errorf("unable to parse alarm number (%s)", line)
	}
	return n, nil
}

// ParseErrorCode returns n for "error:n". Some firmwares report a text message instead of a number,
// in which case an error is returned and the caller should use the raw line.
func ParseErrorCode(line string) (int, error) {
	if !strings.HasPrefix(line, lineErrorPrefix) {
		return 0, fmt.Errorf("not an error: %#v", line)
	}
	n, err := strconv.Atoi(line[len(lineErrorPrefix):])
	if err != nil {
		return 0, fmt.Errorf("unable to parse error number (%s)", line)
	}
	return n, nil
}

var alarmDescriptions = map[int]string{
	1:  "Hard limit triggered. Machine position is likely lost due to sudden and immediate halt. Re-homing is highly recommended.",
	2:  "G-code motion target exceeds machine travel. Machine position safely retained. Alarm may be unlocked.",
	3:  "Reset while in motion. Grbl cannot guarantee position. Lost steps are likely. Re-homing is highly recommended.",
	4:  "Probe fail. The probe is not in the expected initial state before starting probe cycle, where G38.2 and G38.3 is not triggered and G38.4 and G38.5 is triggered.",
	5:  "Probe fail. Probe did not contact the workpiece within the programmed travel for G38.2 and G38.4.",
	6:  "Homing fail. Reset during active homing cycle.",
	7:  "Homing fail. Safety door was opened during active homing cycle.",
	8:  "Homing fail. Cycle failed to clear limit switch when pulling off. Try increasing pull-off setting or check wiring.",
	9:  "Homing fail. Could not find limit switch within search distance. Defined as 1.5 * max_travel on search and 5 * pulloff on locate phases.",
	10: "Homing fail. On dual axis machines, could not find the second limit switch for self-squaring.",
}

// AlarmDescription returns the vanilla Grbl text for an alarm code.
func AlarmDescription(code int) string {
	if description, ok := alarmDescriptions[code]; ok {
		return description
	}
	return fmt.Sprintf("Unknown alarm (%d)", code)
}

var errorDescriptions = map[int]string{
	1:  "G-code words consist of a letter and a value. Letter was not found",
	2:  "Numeric value format is not valid or missing an expected value",
	3:  "Grbl '$' system command was not recognized or supported",
	4:  "Negative value received for an expected positive value",
	5:  "Homing cycle is not enabled via settings",
	6:  "Minimum step pulse time must be greater than 3usec",
	7:  "EEPROM read failed. Reset and restored to default values",
	8:  "Grbl '$' command cannot be used unless Grbl is IDLE. Ensures smooth operation during a job",
	9:  "G-code locked out during alarm or jog state",
	10: "Soft limits cannot be enabled without homing also enabled",
	11: "Max characters per line exceeded. Line was not processed and executed",
	12: "(Compile Option) Grbl '$' setting value exceeds the maximum step rate supported",
	13: "Safety door detected as opened and door state initiated",
	14: "(Grbl-Mega Only) Build info or startup line exceeded EEPROM line length limit",
	15: "Jog target exceeds machine travel. Command ignored",
	16: "Jog command with no '=' or contains prohibited g-code",
	17: "Laser mode requires PWM output",
	20: "Unsupported or invalid g-code command found in block",
	21: "More than one g-code command from same modal group found in block",
	22: "Feed rate has not yet been set or is undefined",
	23: "G-code command in block requires an integer value",
	24: "Two G-code commands that both require the use of the XYZ axis words were detected in the block",
	25: "A G-code word was repeated in the block",
	26: "A G-code command implicitly or explicitly requires XYZ axis words in the block, but none were detected",
	27: "N line number value is not within the valid range of 1 - 9,999,999",
	28: "A G-code command was sent, but is missing some required P or L value words in the line",
	29: "Grbl supports six work coordinate systems G54-G59. G59.1, G59.2, and G59.3 are not supported",
	30: "The G53 G-code command requires either a G0 seek or G1 feed motion mode to be active. A different motion was active",
	31: "There are unused axis words in the block and G80 motion mode cancel is active",
	32: "A G2 or G3 arc was commanded but there are no XYZ axis words in the selected plane to trace the arc",
	33: "The motion command has an invalid target. G2, G3, and G38.2 generates this error, if the arc is impossible to generate or if the probe target is the current position",
	34: "A G2 or G3 arc, traced with the radius definition, had a mathematical error when computing the arc geometry",
	35: "A G2 or G3 arc, traced with the offset definition, is missing the IJK offset word in the selected plane to trace the arc",
	36: "There are unused, leftover G-code words that aren't used by any command in the block",
	37: "The G43.1 dynamic tool length offset command cannot apply an offset to an axis other than its configured axis",
	38: "Tool number greater than max supported value",
}

// ErrorDescription returns the vanilla Grbl text for an "error:" line, or the raw line when its code
// is not numeric or not known.
func ErrorDescription(line string) string {
	code, err := ParseErrorCode(line)
	if err != nil {
		return line
	}
	if description, ok := errorDescriptions[code]; ok {
		return description
	}
	return line
}
