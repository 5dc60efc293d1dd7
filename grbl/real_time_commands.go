package grbl

import (
	"errors"
	"fmt"
)

var ErrNotRealTimeCommand = errors.New("not a real time command")

// RealTimeCommand is a single byte Grbl acts upon immediately, without going through its serial
// RX buffer. Sending one never consumes character-counting budget.
type RealTimeCommand byte

const (
	RealTimeCommandSoftReset         RealTimeCommand = 0x18
	RealTimeCommandStatusReportQuery RealTimeCommand = '?'
	RealTimeCommandCycleStartResume  RealTimeCommand = '~'
	RealTimeCommandFeedHold          RealTimeCommand = '!'
	RealTimeCommandJogCancel         RealTimeCommand = 0x85
	RealTimeCommandFeedOverrideReset RealTimeCommand = 0x90
)

var realTimeCommandNames = map[RealTimeCommand]string{
	RealTimeCommandSoftReset:         "Soft-Reset",
	RealTimeCommandStatusReportQuery: "Status Report Query",
	RealTimeCommandCycleStartResume:  "Cycle Start / Resume",
	RealTimeCommandFeedHold:          "Feed Hold",
	RealTimeCommandJogCancel:         "Jog Cancel",
	RealTimeCommandFeedOverrideReset: "Feed Override: Set 100%",
}

// NewRealTimeCommand validates b is a known real time command.
func NewRealTimeCommand(b byte) (RealTimeCommand, error) {
	rtc := RealTimeCommand(b)
	if _, ok := realTimeCommandNames[rtc]; !ok {
		return 0, fmt.Errorf("%w: %#x", ErrNotRealTimeCommand, b)
	}
	return rtc, nil
}

func (c RealTimeCommand) Byte() byte {
	return byte(c)
}

func (c RealTimeCommand) String() string {
	if name, ok := realTimeCommandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%#x)", byte(c))
}
