// Package capture persists frames that failed verification.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"FaceGuard/config"
	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	DefaultPrefix = "image_"
	TimeLayout    = "2006_01_02_15_04_05"
)

var ErrWrite = errors.New("failed to write capture")

// Policy writes every mismatch frame to Dir. Two captures in the same second
// share a name and the later one wins.
type Policy struct {
	Dir      string
	Prefix   string
	Now      func() time.Time
	Write    func(path string, img gocv.Mat) bool
	Notifier *Notifier
}

type Option func(*Policy)

func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.Now = now }
}

func WithWriter(write func(string, gocv.Mat) bool) Option {
	return func(p *Policy) { p.Write = write }
}

func WithNotifier(n *Notifier) Option {
	return func(p *Policy) { p.Notifier = n }
}

// New expands dir and creates it if missing.
func New(dir, prefix string, opts ...Option) (*Policy, error) {
	dir, err := config.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture dir: %w", err)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	p := &Policy{
		Dir:    dir,
		Prefix: prefix,
		Now:    time.Now,
		Write:  gocv.IMWrite,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Policy) FileName(t time.Time) string {
	return p.Prefix + t.Local().Format(TimeLayout) + ".jpg"
}

// OnMismatch writes frame and returns its path. The webhook, if any, is
// notified after a successful write and its failure is only logged.
func (p *Policy) OnMismatch(ctx context.Context, frame gocv.Mat, d iface.MatchDecision) (string, error) {
	now := p.Now()
	path := filepath.Join(p.Dir, p.FileName(now))
	if !p.Write(path, frame) {
		return "", fmt.Errorf("%w: %s", ErrWrite, path)
	}
	logger.Log().Info("capture saved", zap.String("path", path))

	if p.Notifier != nil {
		alert := Alert{File: path, Nearest: d.Label, TimeStamp: now.Unix()}
		if d.HasCandidate() {
			dist := d.BestDistance
			alert.Distance = &dist
		}
		if err := p.Notifier.Send(ctx, alert); err != nil {
			logger.Log().Warn("webhook notification failed", zap.String("path", path), zap.Error(err))
		}
	}
	return path, nil
}
