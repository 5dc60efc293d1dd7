package controller

import "time"

// Options tunes the controller timing. Use DefaultOptions as a base.
type Options struct {
	// Delay between streaming loop iterations.
	TickInterval time.Duration
	// Transport read timeout used by Connect, bounding how long one loop iteration may block.
	ReadTimeout time.Duration
	// Delay after a soft-reset, both on Connect and Reset.
	ResetDelay time.Duration
	// Initial status report polling interval.
	PollInterval time.Duration
	// Capacity of the channel feeding commands to the streaming loop.
	InboundCapacity int
	// How long Disconnect and Reset wait for the streaming loop to exit before abandoning it.
	StopTimeout time.Duration
	// Sent on Connect, before ResetDelay.
	ResetCommand string
	// Sent on Connect, after ResetDelay.
	InitQueries []string
}

func DefaultOptions() Options {
	return Options{
		TickInterval:    10 * time.Millisecond,
		ReadTimeout:     50 * time.Millisecond,
		ResetDelay:      100 * time.Millisecond,
		PollInterval:    100 * time.Millisecond,
		InboundCapacity: 100,
		StopTimeout:     time.Second,
		ResetCommand:    CommandResetSettings,
		InitQueries: []string{
			CommandBuildInfo,
			CommandSettings,
			CommandParserState,
		},
	}
}
