package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fornellas/cncstream/transport"
)

var portName string
var defaultPortName = ""

var address string
var defaultAddress = ""

var baudRate int
var defaultBaudRate = transport.DefaultBaudRate

var rxBufferSize int
var defaultRxBufferSize = transport.DefaultRxBufferSize

var dialTimeout time.Duration
var defaultDialTimeout = transport.DefaultDialTimeout

func AddPortFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&portName, "port-name", "p", defaultPortName, "Serial port name to open")
	cmd.PersistentFlags().StringVarP(&address, "address", "a", defaultAddress, "TCP address to connect to")
	cmd.PersistentFlags().IntVarP(&baudRate, "baud-rate", "b", defaultBaudRate, "Serial port baud rate")
	cmd.PersistentFlags().IntVarP(&rxBufferSize, "rx-buffer-size", "", defaultRxBufferSize, "Grbl serial receive buffer size, in bytes")
	cmd.PersistentFlags().DurationVarP(&dialTimeout, "dial-timeout", "", defaultDialTimeout, "Timeout connecting to --address")
}

func GetConnectionParameters() (transport.ConnectionParameters, error) {
	if portName != "" && address != "" {
		return transport.ConnectionParameters{}, fmt.Errorf("flags --port-name and --address can not be set simultaneously")
	}
	if portName == "" && address == "" {
		return transport.ConnectionParameters{}, fmt.Errorf("either --port-name or --address must be set")
	}
	if rxBufferSize <= 0 {
		return transport.ConnectionParameters{}, fmt.Errorf("--rx-buffer-size must be positive: %d", rxBufferSize)
	}
	params := transport.DefaultConnectionParameters()
	params.PortName = portName
	params.Address = address
	params.BaudRate = baudRate
	params.RxBufferSize = rxBufferSize
	params.DialTimeout = dialTimeout
	return params, nil
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		portName = defaultPortName
		address = defaultAddress
		baudRate = defaultBaudRate
		rxBufferSize = defaultRxBufferSize
		dialTimeout = defaultDialTimeout
	})
}
