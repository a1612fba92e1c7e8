package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	iface "FaceGuard/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient ignores ctx while release is non-nil, like a device that cannot
// be interrupted.
type stubClient struct {
	calls   atomic.Int32
	release chan struct{}
	emb     iface.Embedding
	err     error
	closed  atomic.Bool
}

func (s *stubClient) Infer(ctx context.Context, t iface.Tensor) (iface.Embedding, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.emb, s.err
}

func (s *stubClient) Close() error {
	s.closed.Store(true)
	return nil
}

var blankTensor = iface.Tensor{Width: 1, Height: 1, Channels: 3, Data: []float32{0, 0, 0}}

func TestGuard_PassThrough(t *testing.T) {
	stub := &stubClient{emb: iface.Embedding{1, 2, 3}}
	g := NewGuard(stub, time.Second)

	emb, err := g.Infer(context.Background(), blankTensor)
	require.NoError(t, err)
	assert.Equal(t, iface.Embedding{1, 2, 3}, emb)
	assert.False(t, g.Busy())

	stub.err = errors.New("boom")
	_, err = g.Infer(context.Background(), blankTensor)
	assert.EqualError(t, err, "boom")
	assert.False(t, g.Busy())
}

func TestGuard_TimeoutThenBusy(t *testing.T) {
	stub := &stubClient{release: make(chan struct{}), emb: iface.Embedding{1}}
	g := NewGuard(stub, 20*time.Millisecond)

	_, err := g.Infer(context.Background(), blankTensor)
	assert.ErrorIs(t, err, ErrInferenceTimeout)
	assert.True(t, g.Busy())

	_, err = g.Infer(context.Background(), blankTensor)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, int32(1), stub.calls.Load())

	close(stub.release)
	assert.Eventually(t, func() bool { return !g.Busy() }, time.Second, 5*time.Millisecond)

	emb, err := g.Infer(context.Background(), blankTensor)
	require.NoError(t, err)
	assert.Equal(t, iface.Embedding{1}, emb)
}

func TestGuard_ZeroTimeout(t *testing.T) {
	stub := &stubClient{release: make(chan struct{}), emb: iface.Embedding{7}}
	g := NewGuard(stub, 0)

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(stub.release)
	}()
	emb, err := g.Infer(context.Background(), blankTensor)
	require.NoError(t, err)
	assert.Equal(t, iface.Embedding{7}, emb)
}

func TestGuard_ParentCancel(t *testing.T) {
	stub := &stubClient{release: make(chan struct{})}
	defer close(stub.release)
	g := NewGuard(stub, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Infer(ctx, blankTensor)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrInferenceTimeout)
}

func TestGuard_Close(t *testing.T) {
	stub := &stubClient{}
	g := NewGuard(stub, time.Second)

	require.NoError(t, g.Close())
	assert.True(t, stub.closed.Load())
	require.NoError(t, g.Close())

	_, err := g.Infer(context.Background(), blankTensor)
	assert.ErrorIs(t, err, ErrClosed)
}
