package controller

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/cncstream/transport"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

// fakeTransport is a Transport with a declared receive buffer capacity. It records everything
// sent and the peak budget usage, and replays queued input on ReadResponse.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	capacity  int
	used      int
	maxUsed   int
	lines     []string
	realTime  []byte
	input     [][]byte
	clears    int
	params    transport.ConnectionParameters
}

func newFakeTransport(capacity int) *fakeTransport {
	return &fakeTransport{capacity: capacity}
}

func (f *fakeTransport) Connect(ctx context.Context, params transport.ConnectionParameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.params = params
	f.used = 0
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used = 0
	f.input = nil
	f.clears++
	return nil
}

func (f *fakeTransport) ReadResponse() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.input) == 0 {
		return nil, nil
	}
	data := f.input[0]
	f.input = f.input[1:]
	return data, nil
}

func (f *fakeTransport) SendCommand(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.lines = append(f.lines, line)
	f.used += len(line) + 1
	if f.used > f.maxUsed {
		f.maxUsed = f.used
	}
	return nil
}

func (f *fakeTransport) SendRealtimeByte(b byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.realTime = append(f.realTime, b)
	return nil
}

func (f *fakeTransport) IsReadyToSend(n int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected && f.used+n <= f.capacity
}

func (f *fakeTransport) AcknowledgeChars(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used -= n
}

// feed queues data to be returned by ReadResponse.
func (f *fakeTransport) feed(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = append(f.input, []byte(data))
}

func (f *fakeTransport) sentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.lines...)
}

func (f *fakeTransport) sentRealTime() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte{}, f.realTime...)
}

func (f *fakeTransport) budget() (used, maxUsed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used, f.maxUsed
}
