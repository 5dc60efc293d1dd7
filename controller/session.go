package controller

import (
	"sync"
	"time"

	"github.com/fornellas/cncstream/grbl"
)

// OverrideState holds the override percentages set through the controller.
type OverrideState struct {
	// 0-200
	FeedOverride int
	// 25, 50 or 100
	RapidOverride int
	// 0-200
	SpindleOverride int
}

func DefaultOverrideState() OverrideState {
	return OverrideState{
		FeedOverride:    100,
		RapidOverride:   100,
		SpindleOverride: 100,
	}
}

// session is the state shared between the streaming loop and the public API.
type session struct {
	mu sync.RWMutex

	state           State
	status          Status
	overrides       OverrideState
	machinePosition grbl.Position
	workPosition    grbl.Position
	streaming       bool
	pollInterval    time.Duration

	// Last reported values: Grbl only sends some fields every few reports.
	workCoordinateOffset *grbl.Position
	reportedOverrides    *grbl.OverrideValues
	wcsOffsets           map[int]grbl.Position
	lastProbe            *grbl.Probe

	// Mirrors of the streaming loop queue.
	inFlightBytes int
	pendingLen    int
}

func newSession(pollInterval time.Duration) *session {
	s := &session{}
	s.reset(pollInterval)
	return s
}

func (s *session) reset(pollInterval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
	s.status = StatusIdle
	s.overrides = DefaultOverrideState()
	s.machinePosition = grbl.Position{}
	s.workPosition = grbl.Position{}
	s.streaming = false
	s.pollInterval = pollInterval
	s.workCoordinateOffset = nil
	s.reportedOverrides = nil
	s.wcsOffsets = map[int]grbl.Position{}
	s.lastProbe = nil
	s.inFlightBytes = 0
	s.pendingLen = 0
}

// applyStatusReport updates positions and, when the report carries a machine state token, the
// state and status. It returns whether a state token was present, and the error for unknown ones.
func (s *session) applyStatusReport(report *grbl.StatusReport) (State, Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.WorkCoordinateOffset != nil {
		wco := *report.WorkCoordinateOffset
		s.workCoordinateOffset = &wco
	}
	if report.MachinePosition != nil {
		s.machinePosition = *report.MachinePosition
		if report.WorkPosition == nil && s.workCoordinateOffset != nil {
			s.workPosition = report.MachinePosition.Sub(*s.workCoordinateOffset)
		}
	}
	if report.WorkPosition != nil {
		s.workPosition = *report.WorkPosition
		if report.MachinePosition == nil && s.workCoordinateOffset != nil {
			s.machinePosition = report.WorkPosition.Add(*s.workCoordinateOffset)
		}
	}
	if report.OverrideValues != nil {
		overrideValues := *report.OverrideValues
		s.reportedOverrides = &overrideValues
	}

	if report.MachineState == "" {
		return s.state, s.status, false, nil
	}
	state, err := ParseState(report.MachineState)
	s.state = state
	s.status = state.Status()
	return s.state, s.status, true, err
}

func (s *session) applyParameter(parameter *grbl.Parameter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wcs, ok := parameter.WorkCoordinateSystem(); ok && parameter.Position != nil {
		s.wcsOffsets[wcs] = *parameter.Position
	}
	if parameter.Probe != nil {
		probe := *parameter.Probe
		s.lastProbe = &probe
	}
}

// setState also sets the status, which is always the projection of the state.
func (s *session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.status = state.Status()
}

func (s *session) setStreaming(streaming bool, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = streaming
	s.state = state
	s.status = state.Status()
}

func (s *session) setQueues(inFlightBytes, pendingLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlightBytes = inFlightBytes
	s.pendingLen = pendingLen
}

func (s *session) getPollInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pollInterval
}
