package serialtcp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestTcpPort(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	var port serial.Port = NewTcpPort(local)
	defer port.Close()

	t.Run("Read times out with no data", func(t *testing.T) {
		require.NoError(t, port.SetReadTimeout(10*time.Millisecond))
		buf := make([]byte, 16)
		n, err := port.Read(buf)
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})

	t.Run("Write", func(t *testing.T) {
		go func() {
			_, _ = port.Write([]byte("$$\n"))
		}()
		buf := make([]byte, 16)
		n, err := remote.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "$$\n", string(buf[:n]))
	})

	t.Run("Read", func(t *testing.T) {
		require.NoError(t, port.SetReadTimeout(time.Second))
		go func() {
			_, _ = remote.Write([]byte("ok\r\n"))
		}()
		buf := make([]byte, 16)
		n, err := port.Read(buf)
		require.NoError(t, err)
		require.Equal(t, "ok\r\n", string(buf[:n]))
	})

	t.Run("Unsupported", func(t *testing.T) {
		require.ErrorIs(t, port.SetMode(&serial.Mode{BaudRate: 115200}), ErrNotSupported)
		require.ErrorIs(t, port.SetDTR(true), ErrNotSupported)
		require.NoError(t, port.ResetOutputBuffer())
		require.NoError(t, port.Drain())
	})
}
