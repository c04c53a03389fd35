package vision

import (
	"gocv.io/x/gocv"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// KeyEscape is the key code that stops the monitor.
const KeyEscape = 27

// Window shows frames in a native preview window.
type Window struct {
	w *gocv.Window
}

// NewWindow opens a window titled name.
func NewWindow(name string) *Window {
	return &Window{w: gocv.NewWindow(name)}
}

// Show displays frame and polls the keyboard for 1ms. It reports true when
// ESC was pressed.
func (w *Window) Show(frame types.Frame) (bool, error) {
	f, err := asFrame(frame)
	if err != nil {
		return false, err
	}
	w.w.IMShow(*f.Mat())
	return w.w.WaitKey(1) == KeyEscape, nil
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.w.Close()
}
