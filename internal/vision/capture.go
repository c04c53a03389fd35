package vision

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/safedrive/drowsiness-monitor/internal/logger"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// Capture reads frames from a camera device or network stream.
type Capture struct {
	source string
	cap    *gocv.VideoCapture
	count  uint64
}

// OpenCapture opens source. A bare integer selects a local camera device,
// anything else is handed to OpenCV as a stream URL or file path.
func OpenCapture(source string) (*Capture, error) {
	var target interface{} = source
	if id, err := strconv.Atoi(source); err == nil {
		target = id
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("open video source %q: %w", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video source %q: capture not opened", source)
	}
	// Keep latency low on network streams.
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	logger.Info("Capture", "Opened video source %s", source)
	return &Capture{source: source, cap: vc}, nil
}

// Read returns the next frame, or types.ErrNoFrame when the stream ends or
// the read fails.
func (c *Capture) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat := gocv.NewMat()
	if ok := c.cap.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, types.ErrNoFrame
	}

	c.count++
	return &Frame{
		mat:       mat,
		number:    c.count,
		timestamp: time.Now(),
	}, nil
}

// Close releases the capture device.
func (c *Capture) Close() error {
	logger.Info("Capture", "Closing video source %s after %d frames", c.source, c.count)
	return c.cap.Close()
}
