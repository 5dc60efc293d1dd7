package main

import (
	"context"
	"reflect"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/spf13/cobra"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/fornellas/cncstream/controller"
)

// machineImportPath is what scripts import to drive the connected machine.
const machineImportPath = "cncstream/machine"

// machineSymbols exports c to scripts. All calls use ctx, so they are interrupted with it.
func machineSymbols(ctx context.Context, c *controller.Controller) interp.Exports {
	logger := log.MustLogger(ctx)
	return interp.Exports{
		machineImportPath + "/machine": map[string]reflect.Value{
			"Log": reflect.ValueOf(func(msg string) {
				logger.Info(msg)
			}),
			"SendCommand": reflect.ValueOf(func(line string) error {
				return c.SendCommand(ctx, line)
			}),
			"WaitIdle": reflect.ValueOf(func() error {
				return c.WaitIdle(ctx)
			}),
			"Home": reflect.ValueOf(func() error {
				return c.Home(ctx)
			}),
			"Unlock": reflect.ValueOf(func() error {
				return c.Unlock(ctx)
			}),
			"JogIncremental": reflect.ValueOf(func(axis string, distance, feedRate float64) error {
				if len(axis) != 1 {
					return controller.ErrInvalidParameter
				}
				return c.JogIncremental(ctx, rune(axis[0]), distance, feedRate)
			}),
			"SetWorkZero": reflect.ValueOf(func() error {
				return c.SetWorkZero(ctx)
			}),
			"SetWorkZeroAxes": reflect.ValueOf(func(axes string) error {
				return c.SetWorkZeroAxes(ctx, axes)
			}),
			"GoToWorkZero": reflect.ValueOf(func() error {
				return c.GoToWorkZero(ctx)
			}),
			"SetWorkCoordinateSystem": reflect.ValueOf(func(wcs int) error {
				return c.SetWorkCoordinateSystem(ctx, wcs)
			}),
			"ProbeZ": reflect.ValueOf(func(feedRate float64) (float64, error) {
				return c.ProbeZ(ctx, feedRate)
			}),
			"SetFeedOverride": reflect.ValueOf(func(percentage int) error {
				return c.SetFeedOverride(ctx, percentage)
			}),
			"SetPollInterval": reflect.ValueOf(func(d time.Duration) error {
				return c.SetPollInterval(d)
			}),
			"State": reflect.ValueOf(func() string {
				return c.GetState().String()
			}),
			"Status": reflect.ValueOf(func() string {
				return c.GetStatus().String()
			}),
			"WorkPosition": reflect.ValueOf(func() (x, y, z float64) {
				p := c.WorkPosition()
				return p.X, p.Y, p.Z
			}),
			"MachinePosition": reflect.ValueOf(func() (x, y, z float64) {
				p := c.MachinePosition()
				return p.X, p.Y, p.Z
			}),
		},
	}
}

func newInterpreter(ctx context.Context, c *controller.Controller) (*interp.Interpreter, error) {
	interpreter := interp.New(interp.Options{})
	if err := interpreter.Use(stdlib.Symbols); err != nil {
		return nil, err
	}
	if err := interpreter.Use(machineSymbols(ctx, c)); err != nil {
		return nil, err
	}
	return interpreter, nil
}

var ScriptCmd = &cobra.Command{
	Use:   "script path",
	Short: "Execute a Go script against the connected machine.",
	Long:  "Runs a Go script with yaegi. The script can import \"" + machineImportPath + "\" to send commands to the machine and query its state.",
	Args:  cobra.ExactArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		path := args[0]

		ctx, logger := log.MustWithAttrs(
			cmd.Context(),
			"path", path,
		)
		cmd.SetContext(ctx)

		return withController(ctx, func(ctx context.Context, c *controller.Controller) error {
			interpreter, err := newInterpreter(ctx, c)
			if err != nil {
				return err
			}

			logger.Info("Running")
			if _, err := interpreter.EvalPathWithContext(ctx, path); err != nil {
				return err
			}

			return c.WaitIdle(ctx)
		})
	}),
}

func init() {
	AddControllerFlags(ScriptCmd)
	RootCmd.AddCommand(ScriptCmd)
}
