package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/safedrive/drowsiness-monitor/internal/overlay"
	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// Renderer draws classification results onto frames in place.
type Renderer struct{}

// Annotate outlines face and writes the state label at the overlay origin.
func (Renderer) Annotate(frame types.Frame, face image.Rectangle, state types.DriverState) error {
	f, err := asFrame(frame)
	if err != nil {
		return err
	}

	c := overlay.Color(state)
	gocv.Rectangle(f.Mat(), face, c, 2)
	gocv.PutText(f.Mat(), overlay.Label(state), overlay.Origin, gocv.FontHersheySimplex, 1.0, c, 2)
	f.touched()
	return nil
}
