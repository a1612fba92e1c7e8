package proto

import (
	"context"
	"errors"
	"fmt"

	iface "FaceGuard/interface"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var ErrNotServing = errors.New("accelerator service is not serving")

// Client is a remote accelerator reached over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr and checks the accelerator health status. Extra
// options are appended after the insecure transport credentials.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("health check on %s: %w", addr, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s reports %s", ErrNotServing, addr, resp.GetStatus())
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Infer(ctx context.Context, t iface.Tensor) (iface.Embedding, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, InferMethod, wrapperspb.Bytes(EncodeTensor(t)), out); err != nil {
		return nil, fromStatus(err)
	}
	return DecodeEmbedding(out.GetValue())
}

// fromStatus turns the busy and timeout codes back into the sentinels the
// verification loop classifies faults by.
func fromStatus(err error) error {
	switch status.Code(err) {
	case codes.Unavailable:
		return fmt.Errorf("%w: %w", iface.ErrBusy, err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", iface.ErrInferenceTimeout, err)
	}
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
