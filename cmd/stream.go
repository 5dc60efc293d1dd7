package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/cncstream/controller"
)

// stripComment removes ( ) and ; comments and surrounding white space from a G-code line.
func stripComment(line string) string {
	var b strings.Builder
	depth := 0
	for _, r := range line {
		switch {
		case r == ';' && depth == 0:
			return strings.TrimSpace(b.String())
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func streamFile(ctx context.Context, c *controller.Controller, path string) (err error) {
	logger := log.MustLogger(ctx)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	if err := c.StartStreaming(ctx); err != nil {
		return err
	}
	defer func() {
		if ctx.Err() == nil {
			return
		}
		logger.Warn("Interrupted, cancelling")
		err = errors.Join(err, c.CancelStreaming(context.WithoutCancel(ctx)))
	}()

	scanner := bufio.NewScanner(f)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.SendCommand(ctx, line); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	logger.Info("Waiting for completion", "lines", lineNumber)
	if err := c.WaitIdle(ctx); err != nil {
		return err
	}
	return c.FinishStreaming(ctx)
}

var StreamCmd = &cobra.Command{
	Use:   "stream path",
	Short: "Stream a G-code file to Grbl.",
	Args:  cobra.ExactArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) error {
		path := args[0]
		ctx, logger := log.MustWithAttrs(cmd.Context(), "path", path)
		cmd.SetContext(ctx)

		logger.Info("Streaming")
		return withController(ctx, func(ctx context.Context, c *controller.Controller) error {
			return streamFile(ctx, c, path)
		})
	}),
}

func init() {
	AddControllerFlags(StreamCmd)
	RootCmd.AddCommand(StreamCmd)
}
