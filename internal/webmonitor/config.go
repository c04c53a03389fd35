package webmonitor

import "time"

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr              string
	StatusInterval    time.Duration // Period of /api/status/stream events
	StreamIdleTimeout time.Duration // Placeholder frame sent after this long without a frame
	KeepaliveInterval time.Duration // SSE keepalive comment period
	HistorySize       int           // Readings kept for /api/status
	PlaceholderWidth  int
	PlaceholderHeight int
}

// DefaultConfig returns the defaults used by cmd/drowsiness-monitor.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		StatusInterval:    time.Second,
		StreamIdleTimeout: 5 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		HistorySize:       8,
		PlaceholderWidth:  640,
		PlaceholderHeight: 480,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StatusInterval <= 0 {
		c.StatusInterval = d.StatusInterval
	}
	if c.StreamIdleTimeout <= 0 {
		c.StreamIdleTimeout = d.StreamIdleTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.PlaceholderWidth <= 0 || c.PlaceholderHeight <= 0 {
		c.PlaceholderWidth, c.PlaceholderHeight = d.PlaceholderWidth, d.PlaceholderHeight
	}
	return c
}
