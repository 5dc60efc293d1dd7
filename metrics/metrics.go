package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cncstream"

var (
	// CommandsSent counts lines transmitted through character-counting flow control.
	CommandsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_sent_total",
		Help:      "Total lines transmitted to the device",
	})

	// Acknowledgements counts ok / error replies.
	Acknowledgements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "acknowledgements_total",
		Help:      "Total acknowledgements received, by result",
	}, []string{"result"})

	StatusReports = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_reports_total",
		Help:      "Total status reports received",
	})

	Alarms = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alarms_total",
		Help:      "Total alarms reported by the device, by code",
	}, []string{"code"})

	// ProtocolAnomalies counts received data that could not be understood.
	ProtocolAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "protocol_anomalies_total",
		Help:      "Total protocol anomalies, by kind",
	}, []string{"kind"})

	RealTimeCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "real_time_commands_total",
		Help:      "Total real time command bytes sent, by command",
	}, []string{"command"})

	InFlightBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "in_flight_bytes",
		Help:      "Bytes sent to the device and not yet acknowledged",
	})

	OutboundQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbound_queue_length",
		Help:      "Lines waiting to be transmitted",
	})

	ReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_errors_total",
		Help:      "Total transient transport read errors",
	})
)

const (
	AckResultOk    = "ok"
	AckResultError = "error"

	AnomalyUnknownMachineState = "unknown_machine_state"
	AnomalyMalformedStatus     = "malformed_status_report"
	AnomalyMalformedParameter  = "malformed_parameter"
	AnomalyUnexpectedAck       = "unexpected_acknowledgement"
)

// IncAcknowledgement records an ok (success) or error reply.
func IncAcknowledgement(success bool) {
	result := AckResultError
	if success {
		result = AckResultOk
	}
	Acknowledgements.WithLabelValues(result).Inc()
}

func IncProtocolAnomaly(kind string) {
	ProtocolAnomalies.WithLabelValues(kind).Inc()
}

func IncRealTimeCommand(command string) {
	RealTimeCommands.WithLabelValues(command).Inc()
}

func IncAlarm(code string) {
	Alarms.WithLabelValues(code).Inc()
}

// SetQueues records the current outbound queue length and in-flight bytes.
func SetQueues(outbound, inFlightBytes int) {
	OutboundQueueLength.Set(float64(outbound))
	InFlightBytes.Set(float64(inFlightBytes))
}
