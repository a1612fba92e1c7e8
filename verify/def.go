package verify

import (
	"context"
	"time"

	iface "FaceGuard/interface"

	"gocv.io/x/gocv"
)

// State is a step of the per-frame state machine.
type State int

const (
	AcquireFrame State = iota
	DetectFaces
	SkipFrame
	RunInference
	Match
	Decide
	Overlay
	DisplayOrPersist
	CheckExit
	Done
)

var stateNames = [...]string{
	"AcquireFrame", "DetectFaces", "SkipFrame", "RunInference", "Match",
	"Decide", "Overlay", "DisplayOrPersist", "CheckExit", "Done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Reason tells why the loop stopped.
type Reason string

const (
	ReasonEndOfStream  Reason = "end_of_stream"
	ReasonQuitKey      Reason = "quit_key"
	ReasonWindowClosed Reason = "window_closed"
	ReasonCancelled    Reason = "cancelled"
)

type Kind string

const (
	KindSkipped  Kind = "skipped"
	KindFault    Kind = "fault"
	KindMatch    Kind = "match"
	KindMismatch Kind = "mismatch"
)

// Fault kinds reported in Outcome.FaultKind.
const (
	FaultPreprocess = "preprocess"
	FaultTimeout    = "timeout"
	FaultBusy       = "busy"
	FaultInference  = "inference"
)

// Outcome is what happened to one frame.
type Outcome struct {
	Frame       int
	Kind        Kind
	Faces       int
	Decision    iface.MatchDecision
	CapturePath string
	FaultKind   string
	Err         error
	Latency     time.Duration
	Time        time.Time
}

type Summary struct {
	Frames     int
	Skipped    int
	Inferences int
	Faults     int
	Matches    int
	Mismatches int
	Captures   int
	Reason     Reason
}

type Matcher interface {
	Match(candidate iface.Embedding, threshold float64) iface.MatchDecision
}

type Capturer interface {
	OnMismatch(ctx context.Context, frame gocv.Mat, d iface.MatchDecision) (string, error)
}

// Observer receives every frame outcome. It is called from the loop
// goroutine and must not block.
type Observer interface {
	Observe(o Outcome)
}

// Deps are the capabilities the loop drives. Display and Observer are
// optional; a nil Display runs headless.
type Deps struct {
	Source       iface.FrameSource
	Detector     iface.FaceRegionDetector
	Preprocessor iface.Preprocessor
	Client       iface.InferenceClient
	Matcher      Matcher
	Capture      Capturer
	Display      iface.Display
	Observer     Observer
}

type Options struct {
	Threshold float64
	// HoldLastMatch keeps the last matched frame on screen until a key is
	// pressed when the loop ends.
	HoldLastMatch bool
	// KeyDelay is the WaitKey delay in milliseconds between frames.
	KeyDelay int
}
