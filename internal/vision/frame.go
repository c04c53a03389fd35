// Package vision binds the frame loop to OpenCV: capture, face detection,
// annotation and the preview window.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// Frame is a BGR frame read from a Capture.
type Frame struct {
	mat       gocv.Mat
	gray      *gocv.Mat
	jpeg      []byte
	number    uint64
	timestamp time.Time
}

var _ types.Frame = (*Frame)(nil)

// Number returns the sequential frame number.
func (f *Frame) Number() uint64 { return f.number }

// Timestamp returns the capture time.
func (f *Frame) Timestamp() time.Time { return f.timestamp }

// Size returns width and height.
func (f *Frame) Size() image.Point {
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

// Mat exposes the underlying BGR matrix.
func (f *Frame) Mat() *gocv.Mat { return &f.mat }

// Gray returns the grayscale conversion, computed once per frame.
func (f *Frame) Gray() gocv.Mat {
	if f.gray == nil {
		g := gocv.NewMat()
		gocv.CvtColor(f.mat, &g, gocv.ColorBGRToGray)
		f.gray = &g
	}
	return *f.gray
}

// JPEG encodes the frame in its current (possibly annotated) form.
func (f *Frame) JPEG() ([]byte, error) {
	if f.jpeg != nil {
		return f.jpeg, nil
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", f.number, err)
	}
	defer buf.Close()

	f.jpeg = bytes.Clone(buf.GetBytes())
	return f.jpeg, nil
}

// touched drops the cached JPEG after the matrix was drawn on.
func (f *Frame) touched() {
	f.jpeg = nil
}

// Close releases the native matrices.
func (f *Frame) Close() error {
	if f.gray != nil {
		f.gray.Close()
		f.gray = nil
	}
	return f.mat.Close()
}

func asFrame(frame types.Frame) (*Frame, error) {
	f, ok := frame.(*Frame)
	if !ok {
		return nil, fmt.Errorf("vision: unsupported frame type %T", frame)
	}
	return f, nil
}
