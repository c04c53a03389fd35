package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Point is an (x, y) coordinate in image pixel space
type Point struct {
	X float64
	Y float64
}

// MarshalJSON encodes a point as a two-element array, the sidecar wire shape
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON accepts either [x, y] or {"x": .., "y": ..}.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("point: expected 2 coordinates, got %d", len(pair))
		}
		p.X, p.Y = pair[0], pair[1]
		return nil
	}

	var obj struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	p.X, p.Y = obj.X, obj.Y
	return nil
}

// LandmarkSet is the ordered output of a facial landmark model
type LandmarkSet []Point

// DriverState is the classifier output
type DriverState int

const (
	Drowsy DriverState = iota
	Alert
)

var stateNames = map[DriverState]string{
	Drowsy: "Drowsy",
	Alert:  "Alert",
}

// String returns "Alert" or "Drowsy"
func (s DriverState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Slug returns the lowercase name used in device URLs
func (s DriverState) Slug() string {
	return strings.ToLower(s.String())
}

// MarshalText implements encoding.TextMarshaler.
func (s DriverState) MarshalText() ([]byte, error) {
	return []byte(s.Slug()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DriverState) UnmarshalText(text []byte) error {
	state, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// ParseState parses a state name, case-insensitively
func ParseState(name string) (DriverState, error) {
	switch strings.ToLower(name) {
	case "alert":
		return Alert, nil
	case "drowsy":
		return Drowsy, nil
	default:
		return Drowsy, fmt.Errorf("invalid driver state: %q", name)
	}
}
