package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/cncstream/broker"
	"github.com/fornellas/cncstream/grbl"
	iFmt "github.com/fornellas/cncstream/internal/fmt"
	"github.com/fornellas/cncstream/metrics"
	"github.com/fornellas/cncstream/transport"
	"github.com/fornellas/cncstream/worker"
)

var (
	ErrNotConnected        = errors.New("controller not connected")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrUnknownMachineState = errors.New("unknown machine state")
)

// Grbl commands sent by the controller.
const (
	CommandResetSettings = "$RST=*"
	CommandBuildInfo     = "$I"
	CommandSettings      = "$$"
	CommandParserState   = "$G"
	CommandHome          = "$H"
	CommandUnlock        = "$X"
	CommandSetWorkZero   = "G92X0Y0Z0"
	CommandGoToWorkZero  = "G00X0Y0Z0"
)

// ListenerHandle identifies a registered Listener.
type ListenerHandle = broker.Handle

// Controller streams commands to a Grbl device, using character-counting flow control so that the
// device serial receive buffer is never overrun, while tracking the machine state.
//
// A single goroutine, the streaming loop, talks to the device. Commands given to the controller
// are queued to it, while real time commands are sent directly to the transport.
type Controller struct {
	name      string
	options   Options
	transport transport.Transport
	listeners *broker.Broker[Listener]
	session   *session

	// serializes Connect, Disconnect and Reset
	lifecycleMu sync.Mutex

	mu           sync.Mutex
	loopCtx      context.Context
	rxBufferSize int
	inbound      chan string
	loop         *streamLoop
	worker       *worker.Worker
}

// New creates a disconnected controller.
func New(name string, t transport.Transport, options Options) *Controller {
	return &Controller{
		name:      name,
		options:   options,
		transport: t,
		listeners: broker.NewBroker[Listener](),
		session:   newSession(options.PollInterval),
	}
}

func (c *Controller) Name() string {
	return c.name
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// startLoop must be called with lifecycleMu held.
func (c *Controller) startLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = make(chan string, c.options.InboundCapacity)
	c.loop = newStreamLoop(c.transport, c.session, c.listeners, c.inbound, c.options.TickInterval)
	ctx, _ := log.MustWithAttrs(c.loopCtx, "controller", c.name)
	c.worker = worker.Start(ctx, "Streaming Loop", c.loop.run)
}

// stopLoop must be called with lifecycleMu held. It returns the commands that were submitted
// but never sent. If the loop does not stop within StopTimeout it is abandoned, and its commands
// are not returned.
func (c *Controller) stopLoop(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	inbound, loop, w := c.inbound, c.loop, c.worker
	c.inbound, c.loop, c.worker = nil, nil, nil
	c.mu.Unlock()

	if w == nil {
		return nil, nil
	}

	if err := w.Stop(c.options.StopTimeout); err != nil {
		if errors.Is(err, worker.ErrStopTimeout) {
			log.MustLogger(ctx).Error("Streaming loop did not stop, abandoning it", "err", err)
			return nil, nil
		}
		log.MustLogger(ctx).Warn("Streaming loop failed", "err", err)
	}

	dropped := loop.queue.drop()
	for {
		select {
		case line := <-inbound:
			dropped = append(dropped, line)
		default:
			return dropped, nil
		}
	}
}

// Connect connects the transport, starts the streaming loop and queues the initialization
// commands. The state is set to Idle without waiting for the device to reply to them.
func (c *Controller) Connect(ctx context.Context, params transport.ConnectionParameters) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	loopCtx := context.WithoutCancel(ctx)
	ctx, logger := log.MustWithGroupAttrs(ctx, "Connect", "controller", c.name)

	if _, err := c.stopLoop(ctx); err != nil {
		return err
	}

	params.ReadTimeout = c.options.ReadTimeout
	if err := c.transport.Connect(ctx, params); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.session.reset(c.options.PollInterval)

	rxBufferSize := params.RxBufferSize
	if rxBufferSize <= 0 {
		rxBufferSize = transport.DefaultRxBufferSize
	}
	c.mu.Lock()
	c.loopCtx = loopCtx
	c.rxBufferSize = rxBufferSize
	c.mu.Unlock()
	c.startLoop()

	if c.options.ResetCommand != "" {
		if err := c.SendCommand(ctx, c.options.ResetCommand); err != nil {
			return err
		}
	}
	if err := sleep(ctx, c.options.ResetDelay); err != nil {
		return err
	}
	for _, query := range c.options.InitQueries {
		if err := c.SendCommand(ctx, query); err != nil {
			return err
		}
	}

	c.session.setState(StateIdle)
	logger.Info("Connected")
	return nil
}

// Disconnect stops the streaming loop and disconnects the transport. It can be called when
// already disconnected.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	_, err := c.stopLoop(ctx)
	if disconnectErr := c.transport.Disconnect(); disconnectErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to disconnect: %w", disconnectErr))
	}
	c.session.setState(StateDisconnected)
	return err
}

// Reset soft-resets the device, clears the transport and restarts the streaming loop. Commands
// queued or in flight are discarded; the ones that were never sent are returned.
func (c *Controller) Reset(ctx context.Context) ([]string, error) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	if err := c.sendRealTimeCommand(grbl.RealTimeCommandSoftReset); err != nil {
		return nil, err
	}
	if err := sleep(ctx, c.options.ResetDelay); err != nil {
		return nil, err
	}

	dropped, err := c.stopLoop(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.transport.Clear(); err != nil {
		return dropped, fmt.Errorf("failed to clear transport: %w", err)
	}
	c.session.setQueues(0, 0)
	c.startLoop()

	if len(dropped) > 0 {
		log.MustLogger(ctx).Warn("Reset dropped commands", "count", len(dropped))
	}
	return dropped, nil
}

// IsConnected tells whether the streaming loop is running.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worker != nil
}

// SendCommand queues a line to be sent to the device. It blocks while the queue is full. Lines
// that, with their terminator, do not fit the device receive buffer are rejected.
func (c *Controller) SendCommand(ctx context.Context, line string) error {
	c.mu.Lock()
	inbound, w, rxBufferSize := c.inbound, c.worker, c.rxBufferSize
	c.mu.Unlock()

	if inbound == nil {
		return ErrNotConnected
	}
	if len(line)+1 > rxBufferSize {
		return fmt.Errorf(
			"%w: line is %d bytes long, receive buffer is %d bytes: %#v",
			ErrInvalidParameter, len(line)+1, rxBufferSize, line,
		)
	}
	select {
	case inbound <- line:
		return nil
	case <-w.Done():
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) sendRealTimeCommand(cmd grbl.RealTimeCommand) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.transport.SendRealtimeByte(cmd.Byte()); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	metrics.IncRealTimeCommand(cmd.String())
	return nil
}

func (c *Controller) Home(ctx context.Context) error {
	return c.SendCommand(ctx, CommandHome)
}

func (c *Controller) ClearAlarm(ctx context.Context) error {
	return c.SendCommand(ctx, CommandUnlock)
}

func (c *Controller) Unlock(ctx context.Context) error {
	return c.SendCommand(ctx, CommandUnlock)
}

// JogStart starts jogging axis towards direction sign, until JogStop.
func (c *Controller) JogStart(ctx context.Context, axis rune, direction int, feedRate float64) error {
	if direction == 0 {
		return fmt.Errorf("%w: jog direction must be non-zero", ErrInvalidParameter)
	}
	sign := '+'
	if direction < 0 {
		sign = '-'
	}
	return c.SendCommand(ctx, fmt.Sprintf("$J=G91 G0 %c%c F%.0f", axis, sign, feedRate))
}

// JogStop cancels jogging and discards Grbl's jog motions still in its planner.
func (c *Controller) JogStop(ctx context.Context) error {
	return c.sendRealTimeCommand(grbl.RealTimeCommandJogCancel)
}

// JogIncremental jogs axis by a signed distance.
func (c *Controller) JogIncremental(ctx context.Context, axis rune, distance float64, feedRate float64) error {
	return c.SendCommand(ctx, fmt.Sprintf("$J=G91 G0 %c%.3f F%.0f", axis, distance, feedRate))
}

// StartStreaming marks streaming as active. It does not notify listeners.
func (c *Controller) StartStreaming(ctx context.Context) error {
	c.session.setStreaming(true, StateRun)
	return nil
}

// FinishStreaming marks streaming as done, once every streamed command was acknowledged. It sends
// nothing to the device and does not notify listeners.
func (c *Controller) FinishStreaming(ctx context.Context) error {
	c.session.setStreaming(false, StateIdle)
	return nil
}

// PauseStreaming issues a feed hold.
func (c *Controller) PauseStreaming(ctx context.Context) error {
	if err := c.sendRealTimeCommand(grbl.RealTimeCommandFeedHold); err != nil {
		return err
	}
	c.session.setState(StateHold)
	return nil
}

// ResumeStreaming issues a cycle start / resume.
func (c *Controller) ResumeStreaming(ctx context.Context) error {
	if err := c.sendRealTimeCommand(grbl.RealTimeCommandCycleStartResume); err != nil {
		return err
	}
	c.session.setState(StateRun)
	return nil
}

// CancelStreaming soft-resets the device, without restarting the streaming loop as Reset does.
func (c *Controller) CancelStreaming(ctx context.Context) error {
	if err := c.sendRealTimeCommand(grbl.RealTimeCommandSoftReset); err != nil {
		return err
	}
	c.session.setStreaming(false, StateIdle)
	return nil
}

func (c *Controller) probe(ctx context.Context, move string, feedRate float64, axis rune) (float64, error) {
	if err := c.SendCommand(ctx, fmt.Sprintf("G38.2%sF%s", move, iFmt.SprintFloat(feedRate, 6))); err != nil {
		return 0, err
	}
	position := c.WorkPosition()
	return *position.GetAxis(axis), nil
}

// ProbeX queues a probing move on X. It returns the work position X at the time it was queued,
// not the probed one: see LastProbe for that, once the device reported it.
func (c *Controller) ProbeX(ctx context.Context, feedRate float64) (float64, error) {
	return c.probe(ctx, "X100", feedRate, 'X')
}

// ProbeY is the same as ProbeX, for Y.
func (c *Controller) ProbeY(ctx context.Context, feedRate float64) (float64, error) {
	return c.probe(ctx, "Y100", feedRate, 'Y')
}

// ProbeZ is the same as ProbeX, for Z, probing downwards.
func (c *Controller) ProbeZ(ctx context.Context, feedRate float64) (float64, error) {
	return c.probe(ctx, "Z-100", feedRate, 'Z')
}

// SetFeedOverride records the feed override. Only 100% is sent to the device, as a feed override
// reset.
func (c *Controller) SetFeedOverride(ctx context.Context, percentage int) error {
	if percentage < 0 || percentage > 200 {
		return fmt.Errorf("%w: feed override must be 0-200%%: %d", ErrInvalidParameter, percentage)
	}
	c.session.mu.Lock()
	c.session.overrides.FeedOverride = percentage
	c.session.mu.Unlock()

	if percentage == 100 {
		return c.sendRealTimeCommand(grbl.RealTimeCommandFeedOverrideReset)
	}
	return nil
}

// SetRapidOverride records the rapid override.
func (c *Controller) SetRapidOverride(ctx context.Context, percentage int) error {
	switch percentage {
	case 25, 50, 100:
	default:
		return fmt.Errorf("%w: rapid override must be 25, 50 or 100: %d", ErrInvalidParameter, percentage)
	}
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	c.session.overrides.RapidOverride = percentage
	return nil
}

// SetSpindleOverride records the spindle override.
func (c *Controller) SetSpindleOverride(ctx context.Context, percentage int) error {
	if percentage < 0 || percentage > 200 {
		return fmt.Errorf("%w: spindle override must be 0-200%%: %d", ErrInvalidParameter, percentage)
	}
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	c.session.overrides.SpindleOverride = percentage
	return nil
}

// SetWorkZero sets the current position as X0 Y0 Z0 with G92.
func (c *Controller) SetWorkZero(ctx context.Context) error {
	return c.SendCommand(ctx, CommandSetWorkZero)
}

// SetWorkZeroAxes is the same as SetWorkZero, but only for the given axes. Letters that are not
// axes are ignored.
func (c *Controller) SetWorkZeroAxes(ctx context.Context, axes string) error {
	var b strings.Builder
	b.WriteString("G92")
	for _, axis := range axes {
		if strings.ContainsRune("XYZABC", axis) {
			b.WriteRune(axis)
			b.WriteRune('0')
		}
	}
	return c.SendCommand(ctx, b.String())
}

func (c *Controller) GoToWorkZero(ctx context.Context) error {
	return c.SendCommand(ctx, CommandGoToWorkZero)
}

func validateWCS(wcs int) error {
	if wcs < 54 || wcs > 59 {
		return fmt.Errorf("%w: work coordinate system must be 54-59: %d", ErrInvalidParameter, wcs)
	}
	return nil
}

// SetWorkCoordinateSystem selects one of G54..G59.
func (c *Controller) SetWorkCoordinateSystem(ctx context.Context, wcs int) error {
	if err := validateWCS(wcs); err != nil {
		return err
	}
	return c.SendCommand(ctx, fmt.Sprintf("G%d", wcs))
}

// GetWCSOffset returns the offset of one of G54..G59, as last reported by the device on $#. When
// it was not reported yet, the current work position is returned.
func (c *Controller) GetWCSOffset(wcs int) (grbl.Position, error) {
	if err := validateWCS(wcs); err != nil {
		return grbl.Position{}, err
	}
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	if offset, ok := c.session.wcsOffsets[wcs]; ok {
		return offset, nil
	}
	return c.session.workPosition, nil
}

// QueryStatus returns the status from the last status report. The device is polled by the
// streaming loop, so this does not send anything.
func (c *Controller) QueryStatus(ctx context.Context) (Status, error) {
	return c.GetStatus(), nil
}

// QuerySettings asks the device for its $$ settings. Replies are logged.
func (c *Controller) QuerySettings(ctx context.Context) error {
	return c.SendCommand(ctx, CommandSettings)
}

// QueryParserState asks the device for its $G parser state. Replies are logged.
func (c *Controller) QueryParserState(ctx context.Context) error {
	return c.SendCommand(ctx, CommandParserState)
}

func (c *Controller) RegisterListener(listener Listener) ListenerHandle {
	return c.listeners.Register(listener)
}

// UnregisterListener removes a listener. Unknown handles are ignored.
func (c *Controller) UnregisterListener(handle ListenerHandle) {
	c.listeners.Unregister(handle)
}

func (c *Controller) ListenerCount() int {
	return c.listeners.Len()
}

func (c *Controller) GetState() State {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.state
}

func (c *Controller) GetStatus() Status {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.status
}

func (c *Controller) GetOverrideState() OverrideState {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.overrides
}

// ReportedOverrides returns the overrides last reported by the device, or nil if never reported.
func (c *Controller) ReportedOverrides() *grbl.OverrideValues {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	if c.session.reportedOverrides == nil {
		return nil
	}
	overrideValues := *c.session.reportedOverrides
	return &overrideValues
}

func (c *Controller) MachinePosition() grbl.Position {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.machinePosition
}

func (c *Controller) WorkPosition() grbl.Position {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.workPosition
}

// LastProbe returns the last probing cycle reported by the device, or nil.
func (c *Controller) LastProbe() *grbl.Probe {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	if c.session.lastProbe == nil {
		return nil
	}
	probe := *c.session.lastProbe
	return &probe
}

func (c *Controller) IsStreaming() bool {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.streaming
}

// InFlightBytes returns the bytes sent and not yet acknowledged, as of the last loop iteration.
func (c *Controller) InFlightBytes() int {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.inFlightBytes
}

// PendingCommands returns how many commands wait to be sent, as of the last loop iteration. It
// does not include commands submitted but not yet fetched by the loop.
func (c *Controller) PendingCommands() int {
	c.session.mu.RLock()
	defer c.session.mu.RUnlock()
	return c.session.pendingLen
}

// SetPollInterval changes how often the device is asked for a status report.
func (c *Controller) SetPollInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: poll interval must be positive: %s", ErrInvalidParameter, d)
	}
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	c.session.pollInterval = d
	return nil
}

func (c *Controller) PollInterval() time.Duration {
	return c.session.getPollInterval()
}

// WaitIdle blocks until every submitted command was sent and acknowledged.
func (c *Controller) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(c.options.TickInterval)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		inbound, w := c.inbound, c.worker
		c.mu.Unlock()
		if inbound == nil {
			return ErrNotConnected
		}
		if len(inbound) == 0 && c.PendingCommands() == 0 && c.InFlightBytes() == 0 {
			// the loop may have fetched a command after the mirrors were updated
			if err := sleep(ctx, 2*(c.options.TickInterval+c.options.ReadTimeout)); err != nil {
				return err
			}
			if len(inbound) == 0 && c.PendingCommands() == 0 && c.InFlightBytes() == 0 {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.Done():
			return ErrNotConnected
		case <-ticker.C:
		}
	}
}
