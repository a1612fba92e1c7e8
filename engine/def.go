package engine

import (
	"context"
	"errors"
	"fmt"

	"FaceGuard/config"
	backend "FaceGuard/gRPC"
	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"go.uber.org/zap"
)

const IDLE = 0x0003
const BUSY = 0x0004
const CLOSED = 0x0005

var (
	// ErrNoDevice means no accelerator answered at startup. It is fatal.
	ErrNoDevice = errors.New("no accelerator device available")
	// ErrInferenceTimeout means the device did not answer within the guard's deadline.
	ErrInferenceTimeout = iface.ErrInferenceTimeout
	// ErrBusy means a previous, timed-out call still occupies the device.
	ErrBusy = iface.ErrBusy
	// ErrClosed is returned after Close.
	ErrClosed          = errors.New("accelerator closed")
	ErrInferenceFailed = errors.New("inference failed")
)

// Open connects the backend named in cfg, verifies that the device answers
// and wraps it in a Guard bounded by cfg.InferTimeout.
func Open(ctx context.Context, cfg config.EngineConfig) (*Guard, error) {
	var (
		client iface.InferenceClient
		err    error
	)
	switch cfg.Backend {
	case "dnn":
		var graph string
		graph, err = config.ResolveResource(cfg.Graph)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		client, err = NewDNN(graph, cfg.GraphConfig, cfg.NetBackend, cfg.NetTarget, cfg.InputSize)
	case "grpc":
		client, err = backend.Dial(ctx, cfg.Address)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
	case "http":
		client, err = DialHTTP(ctx, cfg.Address, cfg.InferTimeout)
	default:
		return nil, fmt.Errorf("unsupported engine backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	logger.Log().Info("accelerator ready",
		zap.String("backend", cfg.Backend),
		zap.Duration("inferTimeout", cfg.InferTimeout))
	return NewGuard(client, cfg.InferTimeout), nil
}
