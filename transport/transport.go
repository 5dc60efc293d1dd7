package transport

import (
	"context"
	"time"
)

// ConnectionParameters selects and configures the link to the device. It is immutable once given
// to Transport.Connect.
type ConnectionParameters struct {
	// Serial port name (eg: /dev/ttyUSB0). Mutually exclusive with Address.
	PortName string
	// TCP address of a serial bridge (eg: host:2000). Mutually exclusive with PortName.
	Address  string
	BaudRate int
	// Bounds how long ReadResponse waits for data.
	ReadTimeout time.Duration
	// Size of the device serial receive buffer, which character-counting flow control must never
	// overrun.
	RxBufferSize int
	DialTimeout  time.Duration
}

const (
	DefaultBaudRate     = 115200
	DefaultRxBufferSize = 128
	DefaultReadTimeout  = 50 * time.Millisecond
	DefaultDialTimeout  = 5 * time.Second
)

func DefaultConnectionParameters() ConnectionParameters {
	return ConnectionParameters{
		BaudRate:     DefaultBaudRate,
		ReadTimeout:  DefaultReadTimeout,
		RxBufferSize: DefaultRxBufferSize,
		DialTimeout:  DefaultDialTimeout,
	}
}

// Transport is a byte level duplex link to a Grbl device that also keeps the character-counting
// budget of the device receive buffer.
type Transport interface {
	Connect(ctx context.Context, params ConnectionParameters) error
	// Disconnect closes the link. It is a no-op when not connected.
	Disconnect() error
	// Clear discards pending input and output, and releases all reserved buffer budget.
	Clear() error
	// ReadResponse returns whatever was received, waiting at most the read timeout. An empty
	// result means no data, not an error.
	ReadResponse() ([]byte, error)
	// SendCommand transmits line plus a terminator, reserving len(line)+1 bytes of budget.
	SendCommand(line string) error
	// SendRealtimeByte transmits a single byte immediately. It does not use budget.
	SendRealtimeByte(b byte) error
	// IsReadyToSend tells whether n more bytes fit in the device receive buffer.
	IsReadyToSend(n int) bool
	// AcknowledgeChars releases n bytes of budget, once the device acknowledged a line.
	AcknowledgeChars(n int)
}
