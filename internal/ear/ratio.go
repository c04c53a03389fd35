package ear

import (
	"fmt"
	"math"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// ContourPoints is the number of points in one eye contour.
const ContourPoints = 6

// Ratio computes the Eye Aspect Ratio of a single eye contour.
//
// The contour is ordered [outer corner, upper-outer, upper-inner, inner corner,
// lower-inner, lower-outer]. The ratio is the sum of the two vertical eyelid
// distances over twice the horizontal eye width.
func Ratio(eye []types.Point) (float64, error) {
	if len(eye) != ContourPoints {
		return 0, fmt.Errorf("%w: eye contour has %d points, want %d", ErrInvalidInput, len(eye), ContourPoints)
	}
	for i, p := range eye {
		if !finite(p.X) || !finite(p.Y) {
			return 0, fmt.Errorf("%w: eye point %d is not finite", ErrInvalidInput, i)
		}
	}

	a := distance(eye[1], eye[5])
	b := distance(eye[2], eye[4])
	c := distance(eye[0], eye[3])
	if c == 0 {
		return 0, fmt.Errorf("%w: eye corners coincide", ErrDegenerateGeometry)
	}

	r := (a + b) / (2 * c)
	if !finite(r) {
		// Only reachable with coordinates near the float64 limit
		return 0, fmt.Errorf("%w: ratio overflow", ErrDegenerateGeometry)
	}
	return r, nil
}

func distance(p, q types.Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
