package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"

	"github.com/fornellas/cncstream/serialtcp"
)

var ErrNotConnected = errors.New("transport: not connected")

// OpenPortFn opens the port described by params.
type OpenPortFn func(ctx context.Context, params ConnectionParameters) (serial.Port, error)

// OpenPort opens a local serial port when params.PortName is set, or dials a TCP serial bridge
// when params.Address is set.
func OpenPort(ctx context.Context, params ConnectionParameters) (serial.Port, error) {
	if params.PortName != "" && params.Address != "" {
		return nil, errors.New("port name and address can not be set simultaneously")
	}
	if params.PortName != "" {
		mode := &serial.Mode{
			BaudRate: params.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		log.MustLogger(ctx).Info("Opening serial port", "port", params.PortName, "baud", params.BaudRate)
		return serial.Open(params.PortName, mode)
	}
	if params.Address != "" {
		port, err := serialtcp.Dial(ctx, params.Address, params.DialTimeout)
		if err != nil {
			return nil, err
		}
		return port, nil
	}
	return nil, errors.New("either port name or address must be set")
}

// Serial implements Transport over a serial.Port.
type Serial struct {
	openPortFn OpenPortFn

	mu       sync.Mutex
	port     serial.Port
	capacity int
	used     int
}

// NewSerial creates a Serial transport. If openPortFn is nil, OpenPort is used.
func NewSerial(openPortFn OpenPortFn) *Serial {
	if openPortFn == nil {
		openPortFn = OpenPort
	}
	return &Serial{openPortFn: openPortFn}
}

func (s *Serial) Connect(ctx context.Context, params ConnectionParameters) error {
	port, err := s.openPortFn(ctx, params)
	if err != nil {
		return fmt.Errorf("transport: port open error: %w", err)
	}

	// polling reads are what lets the streaming loop multiplex reading and writing
	if err := port.SetReadTimeout(params.ReadTimeout); err != nil {
		closeErr := port.Close()
		if closeErr != nil {
			closeErr = fmt.Errorf("transport: port close error: %w", closeErr)
		}
		return errors.Join(fmt.Errorf("transport: error setting read timeout: %w", err), closeErr)
	}

	capacity := params.RxBufferSize
	if capacity <= 0 {
		capacity = DefaultRxBufferSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			log.MustLogger(ctx).Warn("Failed to close previous port", "err", err)
		}
	}
	s.port = port
	s.capacity = capacity
	s.used = 0
	return nil
}

func (s *Serial) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.used = 0
	if err != nil {
		return fmt.Errorf("transport: port close error: %w", err)
	}
	return nil
}

func (s *Serial) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ErrNotConnected
	}
	s.used = 0
	return errors.Join(s.port.ResetInputBuffer(), s.port.ResetOutputBuffer())
}

func (s *Serial) ReadResponse() ([]byte, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return nil, ErrNotConnected
	}

	// reading without the lock lets real time bytes go out while waiting for data
	buf := make([]byte, 1024)
	n, err := port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("transport: read error: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

func (s *Serial) write(data []byte) error {
	if s.port == nil {
		return ErrNotConnected
	}
	n, err := s.port.Write(data)
	if err != nil {
		return fmt.Errorf("transport: write error: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("transport: write error: wrote %d bytes, expected %d", n, len(data))
	}
	return nil
}

func (s *Serial) SendCommand(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := []byte(line + "\n")
	if err := s.write(data); err != nil {
		return err
	}
	s.used += len(data)
	return nil
}

func (s *Serial) SendRealtimeByte(b byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write([]byte{b})
}

func (s *Serial) IsReadyToSend(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil && s.used+n <= s.capacity
}

func (s *Serial) AcknowledgeChars(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used -= n
	if s.used < 0 {
		s.used = 0
	}
}

// Used returns the currently reserved budget, in bytes.
func (s *Serial) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}
