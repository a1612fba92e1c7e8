package capture

import (
	"context"
	"fmt"
	"time"

	"FaceGuard/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const TimeOutSeconds = 5

// Alert is posted to the webhook for every persisted mismatch frame.
type Alert struct {
	Id        string   `json:"id"`
	RunId     string   `json:"runId,omitempty"`
	File      string   `json:"file"`
	Nearest   string   `json:"nearest,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	TimeStamp int64    `json:"timestamp"`
}

type AlertResponse struct {
	Success bool `json:"success"`
}

type Notifier struct {
	client *resty.Client
	url    string
	RunId  string
}

func NewNotifier(url string) *Notifier {
	return &Notifier{
		client: resty.New().SetTimeout(TimeOutSeconds * time.Second),
		url:    url,
	}
}

// Send posts a. A failed post is returned but never retried.
func (n *Notifier) Send(ctx context.Context, a Alert) error {
	if a.Id == "" {
		a.Id = uuid.NewString()
	}
	if a.RunId == "" {
		a.RunId = n.RunId
	}
	var respBody AlertResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(a).
		SetResult(&respBody).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %s, body: %s", resp.Status(), resp.String())
	}
	logger.Log().Debug("webhook notified", zap.String("id", a.Id), zap.String("file", a.File))
	return nil
}
