package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// DefaultTimeout bounds a single device request.
const DefaultTimeout = 500 * time.Millisecond

// Device notifies a microcontroller with GET <base>/<state>.
type Device struct {
	base   *url.URL
	client *http.Client
}

// NewDevice validates baseURL and returns a device notifier.
func NewDevice(baseURL string, timeout time.Duration) (*Device, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q needs an http(s) scheme and host", ErrInvalidEndpoint, baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Device{
		base:   u,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// URL returns the endpoint for state.
func (d *Device) URL(state types.DriverState) string {
	return d.base.JoinPath(state.Slug()).String()
}

// Notify sends the state. The response body is discarded.
func (d *Device) Notify(ctx context.Context, state types.DriverState) Result {
	start := time.Now()
	res := Result{Sink: "device", State: state}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL(state), nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}

	resp, err := d.client.Do(req)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrNotificationFailed, err)
		return res
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Err = fmt.Errorf("%w: device returned status %d", ErrNotificationFailed, resp.StatusCode)
	}
	return res
}
