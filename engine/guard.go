package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	iface "FaceGuard/interface"
)

type inferResult struct {
	embedding iface.Embedding
	err       error
}

// Guard bounds every call to the wrapped client by a timeout. The device is
// not interruptible, so after a timeout the guard stays BUSY until the stuck
// call returns and rejects new calls with ErrBusy meanwhile.
type Guard struct {
	client  iface.InferenceClient
	timeout time.Duration

	mu    sync.Mutex
	state int
}

// NewGuard wraps client. A zero timeout disables the deadline.
func NewGuard(client iface.InferenceClient, timeout time.Duration) *Guard {
	return &Guard{
		client:  client,
		timeout: timeout,
		state:   IDLE,
	}
}

func (g *Guard) Infer(ctx context.Context, t iface.Tensor) (iface.Embedding, error) {
	g.mu.Lock()
	switch g.state {
	case BUSY:
		g.mu.Unlock()
		return nil, ErrBusy
	case CLOSED:
		g.mu.Unlock()
		return nil, ErrClosed
	}
	g.state = BUSY
	g.mu.Unlock()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan inferResult, 1)
	go func() {
		emb, err := g.client.Infer(ctx, t)
		g.release()
		done <- inferResult{embedding: emb, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrInferenceTimeout, g.timeout, res.err)
		}
		return res.embedding, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrInferenceTimeout, g.timeout)
		}
		return nil, ctx.Err()
	}
}

func (g *Guard) release() {
	g.mu.Lock()
	if g.state == BUSY {
		g.state = IDLE
	}
	g.mu.Unlock()
}

// Busy reports whether a call is still running on the device.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == BUSY
}

// Close releases the wrapped client. Calls after Close fail with ErrClosed.
func (g *Guard) Close() error {
	g.mu.Lock()
	if g.state == CLOSED {
		g.mu.Unlock()
		return nil
	}
	g.state = CLOSED
	g.mu.Unlock()
	return g.client.Close()
}
