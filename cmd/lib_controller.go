package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"

	"github.com/fornellas/cncstream/controller"
	"github.com/fornellas/cncstream/transport"
)

var pollInterval time.Duration
var defaultPollInterval = controller.DefaultOptions().PollInterval

var resetCommand string
var defaultResetCommand = controller.DefaultOptions().ResetCommand

func AddControllerFlags(cmd *cobra.Command) {
	AddPortFlags(cmd)
	cmd.PersistentFlags().DurationVarP(&pollInterval, "poll-interval", "", defaultPollInterval, "Status report polling interval")
	cmd.PersistentFlags().StringVarP(
		&resetCommand, "reset-command", "", defaultResetCommand,
		"Command sent on every connect, before the initial queries. WARNING: the default $RST=* restores ALL Grbl "+
			"settings ($$) to factory defaults, erasing any machine calibration stored in the device EEPROM. "+
			"Set to empty to skip it.",
	)
}

// logListener logs every notification from the controller.
type logListener struct {
	ctx context.Context
}

func (l logListener) OnStateChanged(ctx context.Context, state controller.State) {
	log.MustLogger(l.ctx).Debug("State", "state", state)
}

func (l logListener) OnStatusChanged(ctx context.Context, status controller.Status) {
	log.MustLogger(l.ctx).Debug("Status", "status", status)
}

func (l logListener) OnAlarm(ctx context.Context, code int, description string) {
	log.MustLogger(l.ctx).Error("Alarm", "code", code, "description", description)
}

func (l logListener) OnError(ctx context.Context, message string) {
	log.MustLogger(l.ctx).Error("Error", "message", message)
}

// withController connects a controller according to the flags, calls fn and disconnects.
func withController(ctx context.Context, fn func(ctx context.Context, c *controller.Controller) error) (err error) {
	params, err := GetConnectionParameters()
	if err != nil {
		return err
	}
	if pollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be positive: %s", pollInterval)
	}

	options := controller.DefaultOptions()
	options.PollInterval = pollInterval
	options.ResetCommand = resetCommand

	if resetCommand == controller.CommandResetSettings {
		log.MustLogger(ctx).Warn("Restoring Grbl settings to factory defaults on connect", "reset-command", resetCommand)
	}

	c := controller.New("cncstream", transport.NewSerial(nil), options)
	handle := c.RegisterListener(logListener{ctx: ctx})
	defer c.UnregisterListener(handle)

	if err := c.Connect(ctx, params); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Disconnect(context.WithoutCancel(ctx)))
	}()

	return fn(ctx, c)
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		pollInterval = defaultPollInterval
		resetCommand = defaultResetCommand
	})
}
