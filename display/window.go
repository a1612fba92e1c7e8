package display

import (
	"gocv.io/x/gocv"
)

// Window is an OpenCV HighGUI window.
type Window struct {
	w    *gocv.Window
	Name string
}

func New(name string) *Window {
	return &Window{w: gocv.NewWindow(name), Name: name}
}

func (w *Window) Show(frame gocv.Mat) {
	w.w.IMShow(frame)
}

func (w *Window) WaitKey(delay int) int {
	return w.w.WaitKey(delay)
}

// Closed reports whether the user closed the window. HighGUI reports a
// negative aspect ratio once the window is gone.
func (w *Window) Closed() bool {
	return isClosed(w.w.GetWindowProperty(gocv.WindowPropertyAspectRatio))
}

func isClosed(aspect float64) bool {
	return aspect < 0
}

func (w *Window) Close() error {
	return w.w.Close()
}
