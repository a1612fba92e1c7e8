// Package camera provides the frame sources the verification loop reads from.
package camera

import (
	"errors"
	"fmt"
	"strconv"

	"FaceGuard/config"
	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var ErrOpen = errors.New("failed to open camera")

// VideoCapture reads frames through OpenCV. Source is a device index or a
// file/stream path.
type VideoCapture struct {
	vc     *gocv.VideoCapture
	Source string
}

func Open(source string, width, height int) (*VideoCapture, error) {
	var dev interface{} = source
	if id, err := strconv.Atoi(source); err == nil {
		dev = id
	}
	vc, err := gocv.OpenVideoCapture(dev)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, source, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w %s", ErrOpen, source)
	}
	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	c := &VideoCapture{vc: vc, Source: source}
	w, h := c.Resolution()
	logger.Log().Info("camera opened", zap.String("source", source), zap.Int("width", w), zap.Int("height", h))
	return c, nil
}

// Resolution reports what the device actually delivers, which may differ
// from the requested size.
func (c *VideoCapture) Resolution() (int, int) {
	return int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight))
}

func (c *VideoCapture) Read(dst *gocv.Mat) error {
	if !c.vc.Read(dst) || dst.Empty() {
		return iface.ErrEndOfStream
	}
	return nil
}

func (c *VideoCapture) Close() error {
	return c.vc.Close()
}

// OpenSource picks the frame source named by cfg.Driver.
func OpenSource(cfg config.CameraConfig) (iface.FrameSource, error) {
	switch cfg.Driver {
	case "", "gocv":
		c, err := Open(cfg.Source, cfg.Width, cfg.Height)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "v4l2":
		c, err := OpenWebcam(devicePath(cfg.Source), cfg.Width, cfg.Height)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: unsupported driver %q", ErrOpen, cfg.Driver)
}

func devicePath(source string) string {
	if _, err := strconv.Atoi(source); err == nil {
		return "/dev/video" + source
	}
	return source
}

// decodeFrame decodes one compressed frame into dst.
func decodeFrame(buf []byte, dst *gocv.Mat) error {
	img, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return err
	}
	defer img.Close()
	if img.Empty() {
		return errors.New("decoded frame is empty")
	}
	img.CopyTo(dst)
	return nil
}
