package main

import (
	"os"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
)

var exitFn = os.Exit

// Exit terminates the process, after closing the debug log file.
func Exit(code int) {
	if logDebugFile != nil {
		logDebugFile.Close()
	}
	exitFn(code)
}

// GetRunFn adapts fn to cobra.Command.Run, logging its error and exiting with 1 when it fails.
func GetRunFn(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := fn(cmd, args); err != nil {
			logger := log.MustLogger(cmd.Context())
			logger.Error("Failed", "err", err)
			Exit(1)
		}
	}
}
