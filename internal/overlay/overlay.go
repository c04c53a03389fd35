// Package overlay holds the on-screen presentation of a classification
// (label text, colors and placement) and the placeholder frame served
// before the camera delivers one.
package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// Origin is the baseline-left position of the state label.
var Origin = image.Pt(50, 50)

var (
	green = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	gray  = color.RGBA{R: 160, G: 160, B: 160, A: 255}
)

// Label returns the text drawn for state, e.g. "State: Alert".
func Label(state types.DriverState) string {
	return "State: " + state.String()
}

// Color returns the label color: green for Alert, red for Drowsy.
func Color(state types.DriverState) color.RGBA {
	if state == types.Alert {
		return green
	}
	return red
}

func text(dst draw.Image, at image.Point, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(s)
}

// Placeholder returns a JPEG frame showing msg, used until the camera
// produces its first frame.
func Placeholder(width, height int, msg string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 24, G: 24, B: 24, A: 255}), image.Point{}, draw.Src)

	// Center the message; basicfont glyphs are 7px wide.
	x := (width - 7*len(msg)) / 2
	if x < 0 {
		x = 0
	}
	text(img, image.Pt(x, height/2), msg, gray)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
