package webmonitor

import (
	"image"
	"time"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// BoundingBox is the JSON shape of a face rectangle.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func boxFromRect(r image.Rectangle) BoundingBox {
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Reading is one classified face as reported by the status API.
type Reading struct {
	FrameNumber uint64      `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	Face        BoundingBox `json:"face"`
	LeftEAR     float64     `json:"left_ear"`
	RightEAR    float64     `json:"right_ear"`
	EAR         float64     `json:"ear"`
	State       string      `json:"state"`
}

func newReading(frameNum uint64, at time.Time, r types.FaceReading) Reading {
	return Reading{
		FrameNumber: frameNum,
		Timestamp:   unixSeconds(at),
		Face:        boxFromRect(r.Face),
		LeftEAR:     r.LeftEAR,
		RightEAR:    r.RightEAR,
		EAR:         r.EAR,
		State:       r.State.String(),
	}
}

// MonitorStats summarizes the frame loop.
type MonitorStats struct {
	FramesProcessed uint64  `json:"frames_processed"`
	FrameErrors     uint64  `json:"frame_errors"`
	FacesDetected   uint64  `json:"faces_detected"`
	CurrentFPS      float64 `json:"current_fps"`
}

// NotifyStats counts notification outcomes across all sinks.
type NotifyStats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Skipped uint64 `json:"skipped"`
}

// Status is the payload of /api/status.
type Status struct {
	Monitor   MonitorStats `json:"monitor"`
	Latest    *Reading     `json:"latest_reading"`
	History   []Reading    `json:"reading_history"`
	Notify    NotifyStats  `json:"notify"`
	Session   string       `json:"session_id"`
	Threshold float64      `json:"threshold"`
	Timestamp float64      `json:"timestamp"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
