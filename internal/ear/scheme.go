package ear

import (
	"fmt"
	"sort"
	"strings"
)

// EyeRange is a half-open index range [Start, End) into a landmark set.
type EyeRange struct {
	Start int
	End   int
}

// Len returns the number of points in the range.
func (r EyeRange) Len() int {
	return r.End - r.Start
}

// Scheme binds eye index ranges to the landmark model that produces them.
// Slicing a landmark set with the ranges of a different model gives
// meaningless contours, so sets are checked against Points first.
type Scheme struct {
	Name     string
	Points   int
	LeftEye  EyeRange
	RightEye EyeRange
}

// IBUG68 is the 68-point iBUG 300-W convention used by dlib's shape predictor.
var IBUG68 = Scheme{
	Name:     "ibug-68",
	Points:   68,
	LeftEye:  EyeRange{Start: 42, End: 48},
	RightEye: EyeRange{Start: 36, End: 42},
}

var schemes = map[string]Scheme{
	IBUG68.Name: IBUG68,
}

// SchemeByName looks up a registered landmark scheme.
func SchemeByName(name string) (Scheme, error) {
	s, ok := schemes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Scheme{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownScheme, name, strings.Join(SchemeNames(), ", "))
	}
	return s, nil
}

// SchemeNames lists the registered scheme names in sorted order.
func SchemeNames() []string {
	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that both eye ranges are six points inside the set.
func (s Scheme) Validate() error {
	for _, r := range []EyeRange{s.LeftEye, s.RightEye} {
		if r.Len() != ContourPoints || r.Start < 0 || r.End > s.Points {
			return fmt.Errorf("%w: scheme %s has eye range [%d,%d) for %d points",
				ErrInvalidInput, s.Name, r.Start, r.End, s.Points)
		}
	}
	return nil
}
