// Package verify runs the frame loop: detect, embed, match, capture and show.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FaceGuard/engine"
	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const defaultKeyDelay = 1

// Controller owns the loop state. It is not safe for concurrent use.
type Controller struct {
	deps Deps
	opts Options

	frame   gocv.Mat
	held    gocv.Mat
	cur     frameState
	sum     Summary
	matched bool
}

type frameState struct {
	n       int
	boxes   []iface.DetectionBox
	emb     iface.Embedding
	started time.Time
	out     Outcome
}

func New(deps Deps, opts Options) (*Controller, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("verify: frame source is required")
	case deps.Detector == nil:
		return nil, errors.New("verify: detector is required")
	case deps.Preprocessor == nil:
		return nil, errors.New("verify: preprocessor is required")
	case deps.Client == nil:
		return nil, errors.New("verify: inference client is required")
	case deps.Matcher == nil:
		return nil, errors.New("verify: matcher is required")
	case deps.Capture == nil:
		return nil, errors.New("verify: capture policy is required")
	}
	if opts.KeyDelay <= 0 {
		opts.KeyDelay = defaultKeyDelay
	}
	return &Controller{deps: deps, opts: opts}, nil
}

// Run drives the loop until the stream ends, the user quits or closes the
// window, or ctx is cancelled. Cancellation is observed between frames.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	c.frame = gocv.NewMat()
	defer c.frame.Close()
	c.held = gocv.NewMat()
	defer c.held.Close()
	c.sum = Summary{}
	c.matched = false

	state := AcquireFrame
	for state != Done {
		state = c.step(ctx, state)
	}
	c.holdLastMatch()

	logger.Log().Info("verification loop finished",
		zap.String("reason", string(c.sum.Reason)),
		zap.Int("frames", c.sum.Frames),
		zap.Int("skipped", c.sum.Skipped),
		zap.Int("inferences", c.sum.Inferences),
		zap.Int("faults", c.sum.Faults),
		zap.Int("matches", c.sum.Matches),
		zap.Int("mismatches", c.sum.Mismatches),
		zap.Int("captures", c.sum.Captures))
	return c.sum, nil
}

func (c *Controller) step(ctx context.Context, state State) State {
	switch state {
	case AcquireFrame:
		return c.acquire(ctx)
	case DetectFaces:
		return c.detect()
	case SkipFrame:
		return c.skip()
	case RunInference:
		return c.infer(ctx)
	case Match:
		c.cur.out.Decision = c.deps.Matcher.Match(c.cur.emb, c.opts.Threshold)
		return Decide
	case Decide:
		return c.decide(ctx)
	case Overlay:
		DrawOverlay(&c.frame, c.frameName(), c.cur.out.Decision.Matched)
		if c.cur.out.Decision.Matched {
			c.frame.CopyTo(&c.held)
		}
		c.observe()
		return c.afterFrame()
	case DisplayOrPersist:
		return c.show()
	case CheckExit:
		if ctx.Err() != nil {
			return c.stop(ReasonCancelled)
		}
		return AcquireFrame
	}
	return Done
}

func (c *Controller) acquire(ctx context.Context) State {
	if ctx.Err() != nil {
		return c.stop(ReasonCancelled)
	}
	if err := c.deps.Source.Read(&c.frame); err != nil {
		if !errors.Is(err, iface.ErrEndOfStream) {
			logger.Log().Warn("frame read failed", zap.Error(err))
		}
		logger.Log().Info("no image from camera, exiting")
		return c.stop(ReasonEndOfStream)
	}
	c.sum.Frames++
	c.cur = frameState{n: c.sum.Frames, started: time.Now()}
	c.cur.out = Outcome{Frame: c.cur.n, Decision: iface.MatchDecision{BestIndex: -1}}
	return DetectFaces
}

func (c *Controller) detect() State {
	boxes, err := c.deps.Detector.Detect(c.frame)
	if err != nil {
		logger.Log().Warn("face detection failed, treating as no face", zap.Int("frame", c.cur.n), zap.Error(err))
		boxes = nil
	}
	c.cur.boxes = boxes
	c.cur.out.Faces = len(boxes)
	if len(boxes) == 0 {
		return SkipFrame
	}
	return RunInference
}

func (c *Controller) skip() State {
	c.sum.Skipped++
	c.cur.out.Kind = KindSkipped
	logger.Log().Debug("no face found", zap.Int("frame", c.cur.n))
	c.observe()
	return c.afterFrame()
}

func (c *Controller) infer(ctx context.Context) State {
	t, err := c.deps.Preprocessor.Preprocess(c.frame)
	if err != nil {
		return c.fault(FaultPreprocess, err)
	}
	c.sum.Inferences++
	emb, err := c.deps.Client.Infer(ctx, t)
	if err != nil {
		return c.fault(faultKind(err), err)
	}
	c.cur.emb = emb
	return Match
}

func (c *Controller) fault(kind string, err error) State {
	c.sum.Faults++
	c.cur.out.Kind = KindFault
	c.cur.out.FaultKind = kind
	c.cur.out.Err = err
	logger.Log().Warn("frame fault", zap.Int("frame", c.cur.n), zap.String("kind", kind), zap.Error(err))
	c.observe()
	return c.afterFrame()
}

func faultKind(err error) string {
	switch {
	case errors.Is(err, engine.ErrInferenceTimeout), errors.Is(err, context.DeadlineExceeded):
		return FaultTimeout
	case errors.Is(err, engine.ErrBusy):
		return FaultBusy
	}
	return FaultInference
}

func (c *Controller) decide(ctx context.Context) State {
	d := c.cur.out.Decision
	c.matched = d.Matched
	DrawBoxes(&c.frame, c.cur.boxes)

	fields := []zap.Field{zap.Int("frame", c.cur.n), zap.Int("skippedEntries", d.Skipped)}
	if d.HasCandidate() {
		fields = append(fields, zap.Float64("distance", d.BestDistance), zap.String("nearest", d.Label))
	}
	if d.Matched {
		c.sum.Matches++
		c.cur.out.Kind = KindMatch
		logger.Log().Info(fmt.Sprintf("PASS! %s matches %s", c.frameName(), d.Label), fields...)
		return Overlay
	}

	c.sum.Mismatches++
	c.cur.out.Kind = KindMismatch
	logger.Log().Info(fmt.Sprintf("FAIL! %s does not match any image", c.frameName()), fields...)
	path, err := c.deps.Capture.OnMismatch(ctx, c.frame, d)
	if err != nil {
		logger.Log().Warn("capture failed", zap.Int("frame", c.cur.n), zap.Error(err))
	} else {
		c.sum.Captures++
		c.cur.out.CapturePath = path
	}
	return Overlay
}

func (c *Controller) afterFrame() State {
	if c.deps.Display != nil {
		return DisplayOrPersist
	}
	return CheckExit
}

func (c *Controller) show() State {
	disp := c.deps.Display
	if disp.Closed() {
		logger.Log().Info("window closed")
		return c.stop(ReasonWindowClosed)
	}
	disp.Show(c.frame)
	if isQuit(disp.WaitKey(c.opts.KeyDelay)) {
		logger.Log().Info("user pressed Q")
		return c.stop(ReasonQuitKey)
	}
	return CheckExit
}

func (c *Controller) stop(reason Reason) State {
	c.sum.Reason = reason
	return Done
}

func (c *Controller) observe() {
	c.cur.out.Latency = time.Since(c.cur.started)
	c.cur.out.Time = time.Now()
	if c.deps.Observer != nil {
		c.deps.Observer.Observe(c.cur.out)
	}
}

// holdLastMatch leaves the last matched frame on screen until a key press.
func (c *Controller) holdLastMatch() {
	if !c.opts.HoldLastMatch || c.deps.Display == nil || !c.matched || c.held.Empty() {
		return
	}
	switch c.sum.Reason {
	case ReasonWindowClosed, ReasonCancelled:
		return
	}
	c.deps.Display.Show(c.held)
	c.deps.Display.WaitKey(0)
}

func (c *Controller) frameName() string {
	return fmt.Sprintf("camera frame %d", c.cur.n)
}
