package controller

import "context"

// Listener observes state changes. Callbacks run in their own goroutine, so they may block
// without affecting the device communication, but ordering across listeners is not guaranteed.
// For a single listener, OnStateChanged is called before OnStatusChanged.
type Listener interface {
	OnStateChanged(ctx context.Context, state State)
	OnStatusChanged(ctx context.Context, status Status)
}

// AlarmListener may optionally be implemented by a Listener to be told about ALARM:n lines.
type AlarmListener interface {
	OnAlarm(ctx context.Context, code int, description string)
}

// ErrorListener may optionally be implemented by a Listener to be told about error: replies.
type ErrorListener interface {
	OnError(ctx context.Context, message string)
}

// ListenerFuncs adapts functions to Listener, AlarmListener and ErrorListener. Nil functions are
// ignored.
type ListenerFuncs struct {
	StateChanged  func(ctx context.Context, state State)
	StatusChanged func(ctx context.Context, status Status)
	Alarm         func(ctx context.Context, code int, description string)
	Error         func(ctx context.Context, message string)
}

func (f ListenerFuncs) OnStateChanged(ctx context.Context, state State) {
	if f.StateChanged != nil {
		f.StateChanged(ctx, state)
	}
}

func (f ListenerFuncs) OnStatusChanged(ctx context.Context, status Status) {
	if f.StatusChanged != nil {
		f.StatusChanged(ctx, status)
	}
}

func (f ListenerFuncs) OnAlarm(ctx context.Context, code int, description string) {
	if f.Alarm != nil {
		f.Alarm(ctx, code, description)
	}
}

func (f ListenerFuncs) OnError(ctx context.Context, message string) {
	if f.Error != nil {
		f.Error(ctx, message)
	}
}
