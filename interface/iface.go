package iface

import (
	"context"

	"gocv.io/x/gocv"
)

// InferenceClient turns a preprocessed tensor into an embedding. Infer blocks
// until the device answers or ctx is done.
type InferenceClient interface {
	Infer(ctx context.Context, t Tensor) (Embedding, error)
	Close() error
}

// FaceRegionDetector is the cheap gate that runs before inference. An empty
// result is a valid answer meaning no face was found.
type FaceRegionDetector interface {
	Detect(frame gocv.Mat) ([]DetectionBox, error)
	Close() error
}

type Preprocessor interface {
	Preprocess(frame gocv.Mat) (Tensor, error)
}

// FrameSource fills dst with the next frame. It returns ErrEndOfStream when the
// stream is exhausted or the device stops delivering.
type FrameSource interface {
	Read(dst *gocv.Mat) error
	Close() error
}

// Display is an interactive surface. WaitKey returns -1 when no key was pressed.
type Display interface {
	Show(frame gocv.Mat)
	WaitKey(delay int) int
	Closed() bool
	Close() error
}
