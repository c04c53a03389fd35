package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// CascadeDetector finds frontal faces with a Haar cascade.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
}

// NewCascadeDetector loads the cascade file at path.
func NewCascadeDetector(path string) (*CascadeDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade classifier %s", path)
	}
	return &CascadeDetector{classifier: classifier}, nil
}

// DetectFaces returns the face rectangles in frame, in detector order.
func (d *CascadeDetector) DetectFaces(frame types.Frame) ([]image.Rectangle, error) {
	f, err := asFrame(frame)
	if err != nil {
		return nil, err
	}
	gray := f.Gray()
	if gray.Empty() {
		return nil, nil
	}
	return d.classifier.DetectMultiScale(gray), nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}
