package iface

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrEndOfStream is returned by a FrameSource when no further frame can be read.
	ErrEndOfStream = errors.New("end of frame stream")
	// ErrInvalidTensor is returned by Tensor.Validate.
	ErrInvalidTensor = errors.New("invalid tensor")
	// ErrBusy means a previous, timed-out call still occupies the device.
	ErrBusy = errors.New("accelerator is busy")
	// ErrInferenceTimeout means the device did not answer within the deadline.
	ErrInferenceTimeout = errors.New("inference timed out")
)

// MaxTensorSide bounds Width and Height of any tensor handed to a device.
const MaxTensorSide = 4096

// Embedding is the identity vector the accelerator produces for one face image.
type Embedding []float32

// Tensor is a preprocessed image in HWC layout, RGB order.
type Tensor struct {
	Width    int
	Height   int
	Channels int
	Data     []float32
}

// Len is the element count implied by the tensor shape. Call Validate first
// on shapes that come from outside the process.
func (t Tensor) Len() int {
	return t.Width * t.Height * t.Channels
}

// Validate checks the shape before anything multiplies it out: three
// channels, both sides in (0, MaxTensorSide], and one value per element.
func (t Tensor) Validate() error {
	if t.Channels != 3 {
		return fmt.Errorf("%w: %d channels, want 3", ErrInvalidTensor, t.Channels)
	}
	if t.Width <= 0 || t.Width > MaxTensorSide || t.Height <= 0 || t.Height > MaxTensorSide {
		return fmt.Errorf("%w: size %dx%d outside 1..%d", ErrInvalidTensor, t.Width, t.Height, MaxTensorSide)
	}
	if len(t.Data) != t.Len() {
		return fmt.Errorf("%w: shape %dx%dx%d needs %d values, got %d", ErrInvalidTensor, t.Width, t.Height, t.Channels, t.Len(), len(t.Data))
	}
	return nil
}

// DetectionBox is a candidate face region in frame pixel coordinates.
type DetectionBox struct {
	X, Y          int
	Width, Height int
}

func BoxFromRect(r image.Rectangle) DetectionBox {
	return DetectionBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (b DetectionBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// MatchDecision is the per-frame outcome of comparing a candidate against the gallery.
// BestIndex is -1 when no gallery entry could be compared.
type MatchDecision struct {
	Matched      bool
	BestIndex    int
	BestDistance float64
	Label        string
	Skipped      int
}

// HasCandidate reports whether at least one gallery entry was compared.
func (d MatchDecision) HasCandidate() bool {
	return d.BestIndex >= 0
}
