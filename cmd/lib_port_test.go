package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/cncstream/transport"
)

func TestGetConnectionParameters(t *testing.T) {
	t.Cleanup(ResetFlags)

	t.Run("port name", func(t *testing.T) {
		ResetFlags()
		portName = "/dev/ttyUSB0"
		baudRate = 250000
		params, err := GetConnectionParameters()
		require.NoError(t, err)
		require.Equal(t, "/dev/ttyUSB0", params.PortName)
		require.Equal(t, 250000, params.BaudRate)
		require.Equal(t, transport.DefaultRxBufferSize, params.RxBufferSize)
		require.Equal(t, transport.DefaultReadTimeout, params.ReadTimeout)
	})

	t.Run("address", func(t *testing.T) {
		ResetFlags()
		address = "cnc:2000"
		dialTimeout = time.Second
		params, err := GetConnectionParameters()
		require.NoError(t, err)
		require.Equal(t, "cnc:2000", params.Address)
		require.Equal(t, time.Second, params.DialTimeout)
	})

	t.Run("both", func(t *testing.T) {
		ResetFlags()
		portName = "/dev/ttyUSB0"
		address = "cnc:2000"
		_, err := GetConnectionParameters()
		require.Error(t, err)
	})

	t.Run("none", func(t *testing.T) {
		ResetFlags()
		_, err := GetConnectionParameters()
		require.Error(t, err)
	})

	t.Run("invalid buffer size", func(t *testing.T) {
		ResetFlags()
		portName = "/dev/ttyUSB0"
		rxBufferSize = 0
		_, err := GetConnectionParameters()
		require.Error(t, err)
	})
}
