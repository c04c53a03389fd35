package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// Redis stores the latest state under a key and publishes every update.
type Redis struct {
	client  *redis.Client
	channel string
	key     string
	now     func() time.Time
}

// NewRedis creates a Redis sink publishing on channel.
func NewRedis(addr, channel string) *Redis {
	return &Redis{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		key:     channel + ":latest",
		now:     time.Now,
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

type statePayload struct {
	State types.DriverState `json:"state"`
	At    time.Time         `json:"at"`
}

func encodeState(state types.DriverState, at time.Time) ([]byte, error) {
	return json.Marshal(statePayload{State: state, At: at.UTC()})
}

// Notify sets the latest-state key and publishes the payload.
func (r *Redis) Notify(ctx context.Context, state types.DriverState) Result {
	start := time.Now()
	res := Result{Sink: "redis", State: state}

	payload, err := encodeState(state, r.now())
	if err != nil {
		res.Err = fmt.Errorf("encode state: %w", err)
		return res
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.key, state.Slug(), 0)
	pipe.Publish(ctx, r.channel, payload)
	_, err = pipe.Exec(ctx)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return res
}
