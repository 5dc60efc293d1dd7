package main

import (
	"context"
	"errors"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fornellas/cncstream/controller"
)

var reportInterval time.Duration
var defaultReportInterval = time.Second

func reportPositions(ctx context.Context, c *controller.Controller) error {
	logger := log.MustLogger(ctx)
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			logger.Info(
				"Position",
				"state", c.GetState(),
				"work", c.WorkPosition().String(),
				"machine", c.MachinePosition().String(),
			)
		}
	}
}

func reportStateChanges(ctx context.Context, c *controller.Controller) error {
	logger := log.MustLogger(ctx)
	statusCh := make(chan controller.Status, 1)
	handle := c.RegisterListener(controller.ListenerFuncs{
		StatusChanged: func(ctx context.Context, status controller.Status) {
			select {
			case statusCh <- status:
			default:
			}
		},
	})
	defer c.UnregisterListener(handle)

	var last *controller.Status
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case status := <-statusCh:
			if last != nil && *last == status {
				continue
			}
			last = &status
			logger.Info("Status changed", "status", status)
		}
	}
}

var MonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Log Grbl state until interrupted.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) error {
		if reportInterval <= 0 {
			return errors.New("--report-interval must be positive")
		}
		return withController(cmd.Context(), func(ctx context.Context, c *controller.Controller) error {
			g, ctx := errgroup.WithContext(ctx)
			positionsCtx, _ := log.MustWithGroup(ctx, "Positions")
			g.Go(func() error { return reportPositions(positionsCtx, c) })
			statusCtx, _ := log.MustWithGroup(ctx, "Status")
			g.Go(func() error { return reportStateChanges(statusCtx, c) })
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}),
}

func init() {
	AddControllerFlags(MonitorCmd)
	MonitorCmd.PersistentFlags().DurationVarP(&reportInterval, "report-interval", "", defaultReportInterval, "Position logging interval")
	RootCmd.AddCommand(MonitorCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		reportInterval = defaultReportInterval
	})
}
