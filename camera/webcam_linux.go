//go:build linux

package camera

import (
	"errors"
	"fmt"

	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"github.com/blackjack/webcam"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	pixFmtMJPEG = webcam.PixelFormat(0x47504A4D) // 'MJPG'
	// frameWaitSeconds bounds one WaitForFrame call.
	frameWaitSeconds = 1
	maxFrameTimeouts = 5
)

// Webcam reads MJPEG frames straight from a V4L2 device.
type Webcam struct {
	cam    *webcam.Webcam
	Device string
	Width  int
	Height int
}

func OpenWebcam(device string, width, height int) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, device, err)
	}
	formats := cam.GetSupportedFormats()
	if _, ok := formats[pixFmtMJPEG]; !ok {
		_ = cam.Close()
		return nil, fmt.Errorf("%w %s: MJPEG not supported", ErrOpen, device)
	}
	_, w, h, err := cam.SetImageFormat(pixFmtMJPEG, uint32(width), uint32(height))
	if err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, device, err)
	}
	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%w %s: can not start streaming: %v", ErrOpen, device, err)
	}
	logger.Log().Info("webcam opened", zap.String("device", device), zap.Uint32("width", w), zap.Uint32("height", h))
	return &Webcam{cam: cam, Device: device, Width: int(w), Height: int(h)}, nil
}

func (c *Webcam) Read(dst *gocv.Mat) error {
	for timeouts := 0; ; {
		err := c.cam.WaitForFrame(frameWaitSeconds)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			timeouts++
			if timeouts >= maxFrameTimeouts {
				return iface.ErrEndOfStream
			}
			continue
		default:
			logger.Log().Warn("frame wait failed", zap.String("device", c.Device), zap.Error(err))
			return iface.ErrEndOfStream
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			logger.Log().Warn("read frame failed", zap.String("device", c.Device), zap.Error(err))
			return iface.ErrEndOfStream
		}
		if len(frame) == 0 {
			continue
		}
		if err := decodeFrame(frame, dst); err != nil {
			logger.Log().Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		return nil
	}
}

func (c *Webcam) Close() error {
	_ = c.cam.StopStreaming()
	return c.cam.Close()
}
