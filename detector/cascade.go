package detector

import (
	"errors"
	"fmt"
	"image"
	"os"

	iface "FaceGuard/interface"

	"gocv.io/x/gocv"
)

const (
	ScaleFactor  = 1.2
	MinNeighbors = 5
	MinFaceSize  = 30
)

var ErrEmptyFrame = errors.New("detector: empty frame")

// Cascade finds frontal faces with a Haar cascade on a grayscale copy of the frame.
type Cascade struct {
	classifier gocv.CascadeClassifier
	gray       gocv.Mat
	Path       string
}

func New(path string) (*Cascade, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to load classifier: %w", err)
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		_ = classifier.Close()
		return nil, fmt.Errorf("failed to load classifier %s", path)
	}
	return &Cascade{
		classifier: classifier,
		gray:       gocv.NewMat(),
		Path:       path,
	}, nil
}

func (c *Cascade) Detect(frame gocv.Mat) ([]iface.DetectionBox, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}
	src := frame
	if frame.Channels() == 3 {
		gocv.CvtColor(frame, &c.gray, gocv.ColorBGRToGray)
		src = c.gray
	}
	rects := c.classifier.DetectMultiScaleWithParams(src, ScaleFactor, MinNeighbors, 0,
		image.Pt(MinFaceSize, MinFaceSize), image.Pt(0, 0))
	boxes := make([]iface.DetectionBox, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, iface.BoxFromRect(r))
	}
	return boxes, nil
}

func (c *Cascade) Close() error {
	_ = c.gray.Close()
	return c.classifier.Close()
}
