// Package notifier delivers driver state changes to external sinks.
//
// Delivery is best effort. A failed delivery is reported in the returned
// Result rather than as an error so the frame loop can never be stopped by
// an absent device.
package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

var (
	// ErrNotificationFailed marks network-level delivery failures.
	ErrNotificationFailed = errors.New("notification failed")
	// ErrInvalidEndpoint is returned by constructors for unusable endpoints.
	ErrInvalidEndpoint = errors.New("invalid notification endpoint")
)

// Notifier sends a driver state to one sink.
type Notifier interface {
	Notify(ctx context.Context, state types.DriverState) Result
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Sink    string
	State   types.DriverState
	Status  int  // HTTP status, when the sink speaks HTTP
	Skipped bool // Suppressed before reaching the sink
	Err     error
	Elapsed time.Duration
}

// Delivered reports whether the sink accepted the state.
func (r Result) Delivered() bool {
	return r.Err == nil && !r.Skipped
}
