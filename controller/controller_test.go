package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fornellas/cncstream/grbl"
	"github.com/fornellas/cncstream/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testOptions() Options {
	options := DefaultOptions()
	options.TickInterval = time.Millisecond
	options.ResetDelay = time.Millisecond
	options.PollInterval = time.Hour
	return options
}

var initLines = []string{"$RST=*", "$I", "$$", "$G"}

func newTestController(t *testing.T, capacity int) (context.Context, *Controller, *fakeTransport) {
	ctx := testContext(t)
	ft := newFakeTransport(capacity)
	c := New("test", ft, testOptions())
	require.Equal(t, StateDisconnected, c.GetState())
	params := transport.DefaultConnectionParameters()
	params.PortName = "/dev/ttyTEST"
	params.ReadTimeout = time.Hour
	require.NoError(t, c.Connect(ctx, params))
	t.Cleanup(func() {
		require.NoError(t, c.Disconnect(ctx))
	})
	return ctx, c, ft
}

func waitLines(t *testing.T, ft *fakeTransport, expected ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(ft.sentLines()) >= len(expected)
	}, time.Second, time.Millisecond)
	require.Equal(t, expected, ft.sentLines())
}

func TestControllerConnect(t *testing.T) {
	ctx, c, ft := newTestController(t, 128)

	require.Equal(t, "test", c.Name())
	require.True(t, c.IsConnected())
	require.Equal(t, StateIdle, c.GetState())
	require.Equal(t, StatusIdle, c.GetStatus())
	require.Equal(t, DefaultOverrideState(), c.GetOverrideState())
	require.Equal(t, testOptions().ReadTimeout, ft.params.ReadTimeout)
	require.Equal(t, "/dev/ttyTEST", ft.params.PortName)
	waitLines(t, ft, initLines...)

	ft.feed("ok\nok\nok\nok\n")
	require.NoError(t, c.WaitIdle(ctx))
	require.Zero(t, c.InFlightBytes())
}

func TestControllerDisconnect(t *testing.T) {
	ctx := testContext(t)
	ft := newFakeTransport(8)
	c := New("test", ft, testOptions())

	require.NoError(t, c.Disconnect(ctx))
	require.Equal(t, StateDisconnected, c.GetState())

	require.NoError(t, c.Connect(ctx, transport.DefaultConnectionParameters()))
	// only $RST=* fits the buffer, the rest stays queued
	waitLines(t, ft, "$RST=*")
	require.NoError(t, c.SendCommand(ctx, "G0 X1"))

	require.NoError(t, c.Disconnect(ctx))
	require.Equal(t, StateDisconnected, c.GetState())
	require.False(t, c.IsConnected())
	ft.feed("ok\n")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []string{"$RST=*"}, ft.sentLines())

	require.ErrorIs(t, c.SendCommand(ctx, "G0 X2"), ErrNotConnected)
	require.ErrorIs(t, c.Home(ctx), ErrNotConnected)
	require.ErrorIs(t, c.JogStop(ctx), ErrNotConnected)
	require.ErrorIs(t, c.PauseStreaming(ctx), ErrNotConnected)
	_, err := c.Reset(ctx)
	require.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, c.Disconnect(ctx))
}

func TestControllerListeners(t *testing.T) {
	ctx, c, ft := newTestController(t, 128)

	const n = 5
	listeners := make([]*recordingListener, n)
	handles := make([]ListenerHandle, n)
	for i := range listeners {
		listeners[i] = &recordingListener{}
		handles[i] = c.RegisterListener(listeners[i])
	}
	require.Equal(t, n, c.ListenerCount())

	ft.feed("<Jog|MPos:1.000,2.000,3.000|WPos:0.000,0.000,0.000>\n")
	for _, listener := range listeners {
		require.Eventually(t, func() bool {
			return len(listener.getCalls()) == 2
		}, time.Second, time.Millisecond)
		require.Equal(t, []string{"state:Jog", "status:Run"}, listener.getCalls())
	}
	require.Equal(t, StateJog, c.GetState())
	require.Equal(t, StatusRun, c.GetStatus())
	status, err := c.QueryStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusRun, status)
	require.Equal(t, grbl.Position{X: 1, Y: 2, Z: 3}, c.MachinePosition())
	require.Equal(t, grbl.Position{}, c.WorkPosition())

	c.UnregisterListener(handles[0])
	c.UnregisterListener(handles[0])
	c.UnregisterListener(ListenerHandle("unknown"))
	require.Equal(t, n-1, c.ListenerCount())
}

func TestControllerJog(t *testing.T) {
	ctx, c, ft := newTestController(t, 128)
	waitLines(t, ft, initLines...)

	require.ErrorIs(t, c.JogStart(ctx, 'X', 0, 500), ErrInvalidParameter)
	require.NoError(t, c.JogStart(ctx, 'X', 1, 500))
	require.NoError(t, c.JogStart(ctx, 'Z', -3, 250.4))
	require.NoError(t, c.JogIncremental(ctx, 'Y', -1.5, 1000))
	waitLines(t, ft, append(initLines,
		"$J=G91 G0 X+ F500",
		"$J=G91 G0 Z- F250",
		"$J=G91 G0 Y-1.500 F1000",
	)...)

	require.NoError(t, c.JogStop(ctx))
	require.Equal(t, []byte{0x85}, ft.sentRealTime())
}

func TestControllerOverrides(t *testing.T) {
	ctx, c, ft := newTestController(t, 128)

	require.ErrorIs(t, c.SetRapidOverride(ctx, 33), ErrInvalidParameter)
	require.NoError(t, c.SetRapidOverride(ctx, 50))
	require.Equal(t, 50, c.GetOverrideState().RapidOverride)

	require.ErrorIs(t, c.SetFeedOverride(ctx, 201), ErrInvalidParameter)
	require.ErrorIs(t, c.SetFeedOverride(ctx, -1), ErrInvalidParameter)
	require.NoError(t, c.SetFeedOverride(ctx, 150))
	require.Empty(t, ft.sentRealTime())
	require.NoError(t, c.SetFeedOverride(ctx, 100))
	require.Equal(t, []byte{0x90}, ft.sentRealTime())

	require.ErrorIs(t, c.SetSpindleOverride(ctx, 250), ErrInvalidParameter)
	require.NoError(t, c.SetSpindleOverride(ctx, 0))

	require.Equal(t, OverrideState{FeedOverride: 100, RapidOverride: 50, SpindleOverride: 0}, c.GetOverrideState())

	require.Nil(t, c.ReportedOverrides())
	ft.feed("<Run|MPos:0,0,0|Ov:110,25,90>\n")
	require.Eventually(t, func() bool {
		return c.ReportedOverrides() != nil
	}, time.Second, time.Millisecond)
	require.Equal(t, &grbl.OverrideValues{Feed: 110, Rapids: 25, Spindle: 90}, c.ReportedOverrides())
	require.Equal(t, 50, c.GetOverrideState().RapidOverride)
}

func TestControllerWorkCoordinates(t *testing.T) {
	ctx, c, ft := newTestController(t, 128)
	waitLines(t, ft, initLines...)

	require.ErrorIs(t, c.SetWorkCoordinateSystem(ctx, 53), ErrInvalidParameter)
	require.ErrorIs(t, c.SetWorkCoordinateSystem(ctx, 60), ErrInvalidParameter)
	require.NoError(t, c.SetWorkCoordinateSystem(ctx, 55))
	require.NoError(t, c.SetWorkZero(ctx))
	require.NoError(t, c.SetWorkZeroAxes(ctx, "XZq"))
	require.NoError(t, c.GoToWorkZero(ctx))
	waitLines(t, ft, append(initLines, "G55", "G92X0Y0Z0", "G92X0Z0", "G00X0Y0Z0")...)

	_, err := c.GetWCSOffset(60)
	require.ErrorIs(t, err, ErrInvalidParameter)

	ft.feed("<Idle|WPos:1.000,2.000,3.000>\n[G56:-10.000,-20.000,-30.000]\n")
	require.Eventually(t, func() bool {
		return c.WorkPosition() == grbl.Position{X: 1, Y: 2, Z: 3}
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		offset, err := c.GetWCSOffset(56)
		return err == nil && offset == grbl.Position{X: -10, Y: -20, Z: -30}
	}, time.Second, time.Millisecond)

	offset, err := c.GetWCSOffset(54)
	require.NoError(t, err)
	require.Equal(t, grbl.Position{X: 1, Y: 2, Z: 3}, offset)
}

func TestControllerProbe(t *testing.T) {
	ctx, c, ft := newTestController(t, 128)
	waitLines(t, ft, initLines...)
	ft.feed("<Idle|WPos:1.000,2.000,3.000>\n")
	require.Eventually(t, func() bool {
		return c.WorkPosition().Z == 3
	}, time.Second, time.Millisecond)

	z, err := c.ProbeZ(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 3.0, z)
	x, err := c.ProbeX(ctx, 50.5)
	require.NoError(t, err)
	require.Equal(t, 1.0, x)
	y, err := c.ProbeY(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 2.0, y)
	waitLines(t, ft, append(initLines, "G38.2Z-100F100", "G38.2X100F50.5", "G38.2Y100F10")...)

	require.Nil(t, c.LastProbe())
	ft.feed("[PRB:1.000,2.000,-4.200:1]\n")
	require.Eventually(t, func() bool {
		return c.LastProbe() != nil
	}, time.Second, time.Millisecond)
	require.Equal(t, -4.2, c.LastProbe().Position.Z)
}

func TestControllerStreaming(t *testing.T) {
	ctx, c, ft := newTestController(t, 128)

	require.NoError(t, c.StartStreaming(ctx))
	require.True(t, c.IsStreaming())
	require.Equal(t, StateRun, c.GetState())
	require.Equal(t, StatusRun, c.GetStatus())

	require.NoError(t, c.PauseStreaming(ctx))
	require.Equal(t, StateHold, c.GetState())
	require.Equal(t, StatusHold, c.GetStatus())

	require.NoError(t, c.ResumeStreaming(ctx))
	require.Equal(t, StateRun, c.GetState())
	require.Equal(t, StatusRun, c.GetStatus())

	require.NoError(t, c.CancelStreaming(ctx))
	require.False(t, c.IsStreaming())
	require.Equal(t, StateIdle, c.GetState())
	require.Equal(t, StatusIdle, c.GetStatus())

	require.Equal(t, []byte{'!', '~', 0x18}, ft.sentRealTime())

	require.NoError(t, c.StartStreaming(ctx))
	require.NoError(t, c.FinishStreaming(ctx))
	require.False(t, c.IsStreaming())
	require.Equal(t, StateIdle, c.GetState())
	require.Equal(t, StatusIdle, c.GetStatus())
	require.Equal(t, []byte{'!', '~', 0x18}, ft.sentRealTime())
}

func TestControllerStatusFollowsState(t *testing.T) {
	ctx, c, _ := newTestController(t, 128)
	require.Equal(t, c.GetState().Status(), c.GetStatus())

	for _, fn := range []func(context.Context) error{
		c.StartStreaming,
		c.PauseStreaming,
		c.ResumeStreaming,
		c.CancelStreaming,
		c.FinishStreaming,
	} {
		require.NoError(t, fn(ctx))
		require.Equal(t, c.GetState().Status(), c.GetStatus())
	}

	require.NoError(t, c.Disconnect(ctx))
	require.Equal(t, StateDisconnected, c.GetState())
	require.Equal(t, StatusIdle, c.GetStatus())
}

func TestControllerSendCommandTooLong(t *testing.T) {
	ctx := testContext(t)
	ft := newFakeTransport(16)
	c := New("test", ft, testOptions())
	params := transport.DefaultConnectionParameters()
	params.RxBufferSize = 16
	require.NoError(t, c.Connect(ctx, params))
	t.Cleanup(func() {
		require.NoError(t, c.Disconnect(ctx))
	})

	require.ErrorIs(t, c.SendCommand(ctx, "G1 X100.000 Y200.000"), ErrInvalidParameter)

	waitLines(t, ft, initLines...)
	ft.feed("ok\nok\nok\nok\n")
	require.NoError(t, c.SendCommand(ctx, "G1 X100.000 Y2"))
	require.Eventually(t, func() bool {
		for _, line := range ft.sentLines() {
			if line == "G1 X100.000 Y2" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestControllerCommands(t *testing.T) {
	ctx, c, ft := newTestController(t, 128)
	waitLines(t, ft, initLines...)

	require.NoError(t, c.Home(ctx))
	require.NoError(t, c.ClearAlarm(ctx))
	require.NoError(t, c.Unlock(ctx))
	require.NoError(t, c.QuerySettings(ctx))
	require.NoError(t, c.QueryParserState(ctx))
	waitLines(t, ft, append(initLines, "$H", "$X", "$X", "$$", "$G")...)
}

func TestControllerReset(t *testing.T) {
	ctx, c, ft := newTestController(t, 9)
	waitLines(t, ft, "$RST=*")
	require.NoError(t, c.SendCommand(ctx, "G0 X1"))

	dropped, err := c.Reset(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"$I", "$$", "$G", "G0 X1"}, dropped)
	require.Equal(t, []byte{0x18}, ft.sentRealTime())
	require.Equal(t, 1, ft.clears)
	require.True(t, c.IsConnected())
	require.Zero(t, c.InFlightBytes())

	require.NoError(t, c.SendCommand(ctx, "G0 X2"))
	waitLines(t, ft, "$RST=*", "G0 X2")
}

func TestControllerPollInterval(t *testing.T) {
	_, c, ft := newTestController(t, 128)

	require.Equal(t, time.Hour, c.PollInterval())
	require.ErrorIs(t, c.SetPollInterval(0), ErrInvalidParameter)
	require.NoError(t, c.SetPollInterval(time.Millisecond))
	require.Equal(t, time.Millisecond, c.PollInterval())
	require.Eventually(t, func() bool {
		return len(ft.sentRealTime()) >= 2
	}, time.Second, time.Millisecond)
	for _, b := range ft.sentRealTime() {
		require.Equal(t, byte('?'), b)
	}
}
