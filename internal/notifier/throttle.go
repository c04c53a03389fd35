package notifier

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// Throttle limits repeated notifications of an unchanged state.
// A state change is always forwarded.
type Throttle struct {
	next    Notifier
	limiter *rate.Limiter

	mu      sync.Mutex
	last    types.DriverState
	hasLast bool
}

// NewThrottle wraps next. A non-positive perSecond disables throttling.
func NewThrottle(next Notifier, perSecond float64) Notifier {
	if perSecond <= 0 {
		return next
	}
	return &Throttle{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Notify forwards state unless it repeats the last one faster than allowed.
func (t *Throttle) Notify(ctx context.Context, state types.DriverState) Result {
	t.mu.Lock()
	allowed := t.limiter.Allow()
	if t.hasLast && t.last == state && !allowed {
		t.mu.Unlock()
		return Result{Sink: "throttle", State: state, Skipped: true}
	}
	t.last, t.hasLast = state, true
	t.mu.Unlock()

	return t.next.Notify(ctx, state)
}
