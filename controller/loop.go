package controller

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fornellas/slogxt/log"
	"golang.org/x/time/rate"

	"github.com/fornellas/cncstream/broker"
	"github.com/fornellas/cncstream/grbl"
	"github.com/fornellas/cncstream/metrics"
	"github.com/fornellas/cncstream/transport"
)

// streamLoop is the only code doing transport I/O for lines, and the only owner of the command
// queue. Each iteration reads and dispatches received lines, fetches submitted commands, sends at
// most one command that fits the device receive buffer and polls the status when due.
type streamLoop struct {
	transport transport.Transport
	session   *session
	listeners *broker.Broker[Listener]
	inbound   <-chan string
	interval  time.Duration

	queue    commandQueue
	readBuf  []byte
	lastPoll time.Time

	readErrLog  rate.Sometimes
	writeErrLog rate.Sometimes
	pollErrLog  rate.Sometimes
}

func newStreamLoop(
	t transport.Transport,
	s *session,
	listeners *broker.Broker[Listener],
	inbound <-chan string,
	interval time.Duration,
) *streamLoop {
	return &streamLoop{
		transport:   t,
		session:     s,
		listeners:   listeners,
		inbound:     inbound,
		interval:    interval,
		lastPoll:    time.Now(),
		readErrLog:  rate.Sometimes{Interval: time.Second},
		writeErrLog: rate.Sometimes{Interval: time.Second},
		pollErrLog:  rate.Sometimes{Interval: time.Second},
	}
}

func (l *streamLoop) run(ctx context.Context) error {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		l.tick(ctx)

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *streamLoop) tick(ctx context.Context) {
	l.read(ctx)
	l.fetch()
	l.write(ctx)
	l.poll(ctx)

	inFlightBytes := l.queue.inFlightBytes()
	pendingLen := l.queue.pendingLen()
	l.session.setQueues(inFlightBytes, pendingLen)
	metrics.SetQueues(pendingLen, inFlightBytes)
}

func (l *streamLoop) read(ctx context.Context) {
	data, err := l.transport.ReadResponse()
	if err != nil {
		metrics.ReadErrors.Inc()
		l.readErrLog.Do(func() {
			log.MustLogger(ctx).Warn("Read failed", "err", err)
		})
		return
	}
	if len(data) == 0 {
		return
	}
	l.readBuf = append(l.readBuf, data...)
	for {
		idx := bytes.IndexByte(l.readBuf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(l.readBuf[:idx]))
		l.readBuf = l.readBuf[idx+1:]
		if line != "" {
			l.dispatch(ctx, line)
		}
	}
}

func (l *streamLoop) fetch() {
	for {
		select {
		case line := <-l.inbound:
			l.queue.push(line)
		default:
			return
		}
	}
}

func (l *streamLoop) write(ctx context.Context) {
	line, n, ok := l.queue.head()
	if !ok || !l.transport.IsReadyToSend(n) {
		return
	}
	if err := l.transport.SendCommand(line); err != nil {
		l.writeErrLog.Do(func() {
			log.MustLogger(ctx).Warn("Send failed, will retry", "line", line, "err", err)
		})
		return
	}
	l.queue.markSent()
	metrics.CommandsSent.Inc()
	log.MustLogger(ctx).Debug("Sent", "line", line)
}

func (l *streamLoop) poll(ctx context.Context) {
	if time.Since(l.lastPoll) < l.session.getPollInterval() {
		return
	}
	l.lastPoll = time.Now()
	if err := l.transport.SendRealtimeByte(grbl.RealTimeCommandStatusReportQuery.Byte()); err != nil {
		l.pollErrLog.Do(func() {
			log.MustLogger(ctx).Warn("Status query failed", "err", err)
		})
		return
	}
	metrics.IncRealTimeCommand(grbl.RealTimeCommandStatusReportQuery.String())
}

func (l *streamLoop) dispatch(ctx context.Context, line string) {
	logger := log.MustLogger(ctx)
	switch grbl.ClassifyLine(line) {
	case grbl.LineKindOk:
		metrics.IncAcknowledgement(true)
		l.acknowledge(logger, line)
	case grbl.LineKindError:
		metrics.IncAcknowledgement(false)
		description := grbl.ErrorDescription(line)
		logger.Error("Command failed", "line", line, "description", description)
		l.acknowledge(logger, line)
		l.listeners.Publish(ctx, func(ctx context.Context, listener Listener) {
			if errorListener, ok := listener.(ErrorListener); ok {
				errorListener.OnError(ctx, line)
			}
		})
	case grbl.LineKindStatusReport:
		l.dispatchStatusReport(ctx, line)
	case grbl.LineKindAlarm:
		l.dispatchAlarm(ctx, line)
	case grbl.LineKindParameter:
		parameter, err := grbl.ParseParameter(line)
		if err != nil {
			metrics.IncProtocolAnomaly(metrics.AnomalyMalformedParameter)
			logger.Warn("Malformed parameter", "err", err)
			return
		}
		l.session.applyParameter(parameter)
		logger.Debug("Parameter", "line", line)
	default:
		logger.Debug("Message", "line", line)
	}
}

// acknowledge releases the oldest in flight command: Grbl replies once per line, in order.
func (l *streamLoop) acknowledge(logger *slog.Logger, line string) {
	n, ok := l.queue.acknowledge()
	if !ok {
		metrics.IncProtocolAnomaly(metrics.AnomalyUnexpectedAck)
		logger.Warn("Acknowledgement without command in flight", "line", line)
		return
	}
	l.transport.AcknowledgeChars(n)
}

func (l *streamLoop) dispatchStatusReport(ctx context.Context, line string) {
	logger := log.MustLogger(ctx)
	metrics.StatusReports.Inc()

	report, err := grbl.ParseStatusReport(line)
	if err != nil {
		metrics.IncProtocolAnomaly(metrics.AnomalyMalformedStatus)
		logger.Warn("Malformed status report", "err", err)
		return
	}
	for _, err := range report.FieldErrors {
		metrics.IncProtocolAnomaly(metrics.AnomalyMalformedStatus)
		logger.Warn("Malformed status report field", "line", line, "err", err)
	}

	state, status, hasState, err := l.session.applyStatusReport(report)
	if err != nil {
		metrics.IncProtocolAnomaly(metrics.AnomalyUnknownMachineState)
		logger.Warn("Defaulting to Idle", "err", err)
	}
	if !hasState {
		return
	}
	l.listeners.Publish(ctx, func(ctx context.Context, listener Listener) {
		listener.OnStateChanged(ctx, state)
		listener.OnStatusChanged(ctx, status)
	})
}

func (l *streamLoop) dispatchAlarm(ctx context.Context, line string) {
	logger := log.MustLogger(ctx)
	code, err := grbl.ParseAlarmCode(line)
	if err != nil {
		logger.Error("Alarm", "line", line)
		return
	}
	description := grbl.AlarmDescription(code)
	metrics.IncAlarm(strconv.Itoa(code))
	logger.Error("Alarm", "code", code, "description", description)
	l.listeners.Publish(ctx, func(ctx context.Context, listener Listener) {
		if alarmListener, ok := listener.(AlarmListener); ok {
			alarmListener.OnAlarm(ctx, code, description)
		}
	})
}
