package verify

import (
	"image"
	"image/color"

	iface "FaceGuard/interface"

	"gocv.io/x/gocv"
)

const (
	borderWidth  = 10
	boxThickness = 2
)

var (
	green = color.RGBA{G: 255}
	red   = color.RGBA{R: 255}
	blue  = color.RGBA{B: 255}
)

// DrawBoxes outlines every detected face.
func DrawBoxes(img *gocv.Mat, boxes []iface.DetectionBox) {
	for _, b := range boxes {
		gocv.Rectangle(img, b.Rect(), green, boxThickness)
	}
}

// DrawOverlay writes info at the top left and frames the image green when
// matched, red otherwise.
func DrawOverlay(img *gocv.Mat, info string, matched bool) {
	if info != "" {
		gocv.PutText(img, info, image.Pt(30, 30), gocv.FontHersheySimplex, 0.5, blue, 1)
	}
	c := red
	if matched {
		c = green
	}
	offset := borderWidth / 2
	rect := image.Rect(offset, offset, img.Cols()-offset-1, img.Rows()-offset-1)
	gocv.Rectangle(img, rect, c, borderWidth)
}

func isQuit(key int) bool {
	if key < 0 {
		return false
	}
	k := key & 0xFF
	return k == 'q' || k == 'Q'
}
