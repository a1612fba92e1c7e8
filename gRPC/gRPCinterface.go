package proto

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "faceguard.Accelerator"
	InferMethod = "/faceguard.Accelerator/Infer"
)

// AcceleratorServer is the handler type of the accelerator service.
type AcceleratorServer interface {
	Infer(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

var acceleratorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AcceleratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: inferHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "faceguard/accelerator",
}

func inferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AcceleratorServer).Infer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InferMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AcceleratorServer).Infer(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

type jobPackage struct {
	ctx    context.Context
	tensor iface.Tensor
	result chan jobResult
}

type jobResult struct {
	embedding iface.Embedding
	err       error
}

// Server exposes a local InferenceClient as the accelerator service. Requests
// are handed to a fixed pool of workers, which bounds how many calls reach
// the client at once.
type Server struct {
	client   iface.InferenceClient
	jobs     chan jobPackage
	health   *health.Server
	closing  sync.Once
	quit     chan struct{}
	Requests prometheus.Counter
}

func NewServer(client iface.InferenceClient, workers int) *Server {
	if workers <= 0 {
		workers = 1
	}
	s := &Server{
		client: client,
		jobs:   make(chan jobPackage, workers),
		health: health.NewServer(),
		quit:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go s.runWorker(i)
	}
	return s
}

func (s *Server) runWorker(workerID int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("worker panic, restarting in 1s", zap.Int("worker", workerID), zap.Any("panic", r))
			time.Sleep(1 * time.Second)
			go s.runWorker(workerID)
		}
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	logger.Log().Debug("worker created", zap.Int("worker", workerID))
	for {
		select {
		case <-s.quit:
			return
		case job := <-s.jobs:
			s.process(job)
		}
	}
}

func (s *Server) process(job jobPackage) {
	res := jobResult{err: errors.New("worker panicked")}
	defer func() {
		job.result <- res
	}()
	if err := job.ctx.Err(); err != nil {
		res = jobResult{err: err}
		return
	}
	emb, err := s.client.Infer(job.ctx, job.tensor)
	res = jobResult{embedding: emb, err: err}
}

func (s *Server) Infer(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s.Requests != nil {
		s.Requests.Inc()
	}
	t, err := DecodeTensor(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	job := jobPackage{ctx: ctx, tensor: t, result: make(chan jobResult, 1)}
	select {
	case s.jobs <- job:
	case <-s.quit:
		return nil, status.Error(codes.Unavailable, "accelerator shutting down")
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	select {
	case res := <-job.result:
		if res.err != nil {
			return nil, inferStatus(res.err)
		}
		return wrapperspb.Bytes(EncodeEmbedding(res.embedding)), nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

// inferStatus maps a client error onto the code Client.Infer maps back.
func inferStatus(err error) error {
	switch {
	case errors.Is(err, iface.ErrBusy):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, iface.ErrInferenceTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// Register adds the accelerator and health services to g and marks both
// as serving.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&acceleratorServiceDesc, s)
	healthpb.RegisterHealthServer(g, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// Shutdown flips health to NOT_SERVING and stops the workers. The wrapped
// client is left open.
func (s *Server) Shutdown() {
	s.closing.Do(func() {
		s.health.Shutdown()
		close(s.quit)
	})
}

// StartGRPCServer listens on port and serves s in the background.
func StartGRPCServer(port int, s *Server) (*grpc.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	g := grpc.NewServer()
	s.Register(g)
	go func() {
		logger.Log().Info("gRPC accelerator listening", zap.String("addr", addr))
		if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Log().Error("gRPC server stopped", zap.Error(err))
		}
	}()
	return g, nil
}
