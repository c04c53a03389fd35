package types

import (
	"errors"
	"image"
	"time"
)

// ErrNoFrame is returned by a Source when the stream yields no further frames.
var ErrNoFrame = errors.New("no frame received")

// Frame is a single decoded camera frame owned by the frame loop
type Frame interface {
	Number() uint64       // Sequential frame number (starts at 1)
	Timestamp() time.Time // Capture timestamp
	Size() image.Point    // Width and height in pixels
	JPEG() ([]byte, error)
	Close() error
}

// FaceReading is the classification of one detected face
type FaceReading struct {
	Face     image.Rectangle `json:"face"`
	LeftEAR  float64         `json:"left_ear"`
	RightEAR float64         `json:"right_ear"`
	EAR      float64         `json:"ear"`
	State    DriverState     `json:"state"`
}

// FrameReport summarizes one pass of the frame loop
type FrameReport struct {
	FrameNum  uint64        `json:"frame_number"`
	Timestamp time.Time     `json:"timestamp"`
	Readings  []FaceReading `json:"readings"`
	Latency   time.Duration `json:"latency"`
	Err       error         `json:"-"`
}

// Latest returns the last reading of the frame, if any
func (r FrameReport) Latest() (FaceReading, bool) {
	if len(r.Readings) == 0 {
		return FaceReading{}, false
	}
	return r.Readings[len(r.Readings)-1], true
}
