//go:build !linux

package camera

import (
	"fmt"

	iface "FaceGuard/interface"

	"gocv.io/x/gocv"
)

type Webcam struct{}

func OpenWebcam(device string, width, height int) (*Webcam, error) {
	return nil, fmt.Errorf("%w %s: v4l2 driver is only available on linux", ErrOpen, device)
}

func (c *Webcam) Read(dst *gocv.Mat) error { return iface.ErrEndOfStream }

func (c *Webcam) Close() error { return nil }
