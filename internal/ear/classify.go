package ear

import (
	"fmt"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// DefaultThreshold is the EAR at or below which a face is classified Drowsy.
const DefaultThreshold = 0.22

// Reading is the result of classifying one landmark set.
type Reading struct {
	Left    float64
	Right   float64
	Average float64
	State   types.DriverState
}

// Classifier maps landmark sets to driver states.
type Classifier struct {
	scheme    Scheme
	threshold float64
}

// NewClassifier creates a classifier for the given scheme and threshold.
func NewClassifier(scheme Scheme, threshold float64) (*Classifier, error) {
	if err := scheme.Validate(); err != nil {
		return nil, err
	}
	if !finite(threshold) || threshold <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return &Classifier{scheme: scheme, threshold: threshold}, nil
}

// Threshold returns the configured threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Scheme returns the configured landmark scheme.
func (c *Classifier) Scheme() Scheme {
	return c.scheme
}

// Classify averages both eye ratios and compares against the threshold.
// Alert requires the average to be strictly greater than the threshold.
func (c *Classifier) Classify(landmarks types.LandmarkSet) (Reading, error) {
	if len(landmarks) != c.scheme.Points {
		return Reading{}, fmt.Errorf("%w: %d landmarks, scheme %s expects %d",
			ErrInvalidInput, len(landmarks), c.scheme.Name, c.scheme.Points)
	}

	left, err := Ratio(landmarks[c.scheme.LeftEye.Start:c.scheme.LeftEye.End])
	if err != nil {
		return Reading{}, fmt.Errorf("left eye: %w", err)
	}
	right, err := Ratio(landmarks[c.scheme.RightEye.Start:c.scheme.RightEye.End])
	if err != nil {
		return Reading{}, fmt.Errorf("right eye: %w", err)
	}

	avg := (left + right) / 2
	return Reading{
		Left:    left,
		Right:   right,
		Average: avg,
		State:   StateFor(avg, c.threshold),
	}, nil
}

// StateFor applies the threshold rule to an averaged ratio.
func StateFor(ratio, threshold float64) types.DriverState {
	if ratio > threshold {
		return types.Alert
	}
	return types.Drowsy
}

// Classify classifies a 68-point landmark set against threshold.
func Classify(landmarks types.LandmarkSet, threshold float64) (types.DriverState, float64, error) {
	c, err := NewClassifier(IBUG68, threshold)
	if err != nil {
		return types.Drowsy, 0, err
	}
	r, err := c.Classify(landmarks)
	if err != nil {
		return types.Drowsy, 0, err
	}
	return r.State, r.Average, nil
}
