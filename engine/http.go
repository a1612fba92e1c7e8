package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	iface "FaceGuard/interface"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
)

const probeTimeout = 5 * time.Second

type InferRequest struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Channels int       `json:"channels"`
	Data     []float32 `json:"data"`
}

type InferResponse struct {
	Success   bool      `json:"success"`
	Embedding []float32 `json:"embedding,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HTTP talks to a remote accelerator exposing /api/ping and /api/infer.
type HTTP struct {
	client *resty.Client
}

// DialHTTP probes baseURL and fails with ErrNoDevice when it does not answer.
func DialHTTP(ctx context.Context, baseURL string, timeout time.Duration) (*HTTP, error) {
	client := resty.New().SetBaseURL(baseURL)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	h := &HTTP{client: client}

	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	resp, err := client.R().SetContext(pctx).Get("/api/ping")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: ping returned %s", ErrNoDevice, resp.Status())
	}
	return h, nil
}

func (h *HTTP) Infer(ctx context.Context, t iface.Tensor) (iface.Embedding, error) {
	var out InferResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(InferRequest{Width: t.Width, Height: t.Height, Channels: t.Channels, Data: t.Data}).
		SetResult(&out).
		SetError(&out).
		Post("/api/infer")
	if err != nil {
		return nil, fmt.Errorf("http infer: %w", err)
	}
	if resp.IsError() || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = resp.Status()
		}
		switch resp.StatusCode() {
		case http.StatusServiceUnavailable:
			return nil, fmt.Errorf("%w: %s", ErrBusy, msg)
		case http.StatusGatewayTimeout:
			return nil, fmt.Errorf("%w: %s", ErrInferenceTimeout, msg)
		}
		return nil, fmt.Errorf("%w: %s", ErrInferenceFailed, msg)
	}
	return iface.Embedding(out.Embedding), nil
}

func (h *HTTP) Close() error {
	return nil
}

// NewHTTPRouter exposes client with the protocol HTTP speaks.
func NewHTTPRouter(client iface.InferenceClient) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/api/infer", func(c *gin.Context) {
		var req InferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, InferResponse{Error: err.Error()})
			return
		}
		t := iface.Tensor{Width: req.Width, Height: req.Height, Channels: req.Channels, Data: req.Data}
		if err := t.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, InferResponse{Error: err.Error()})
			return
		}
		emb, err := client.Infer(c.Request.Context(), t)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, ErrBusy):
				status = http.StatusServiceUnavailable
			case errors.Is(err, ErrInferenceTimeout):
				status = http.StatusGatewayTimeout
			}
			c.JSON(status, InferResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, InferResponse{Success: true, Embedding: emb})
	})
	return r
}
