// Package monitor exposes the running verification loop over HTTP: a status
// endpoint, prometheus metrics and a websocket stream of frame events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"FaceGuard/logger"
	"FaceGuard/verify"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const sampleInterval = 500 * time.Millisecond

// Event is the JSON form of one frame outcome.
type Event struct {
	Id          string   `json:"id"`
	RunId       string   `json:"runId"`
	Frame       int      `json:"frame"`
	Outcome     string   `json:"outcome"`
	Faces       int      `json:"faces"`
	Label       string   `json:"label,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	CapturePath string   `json:"capturePath,omitempty"`
	Fault       string   `json:"fault,omitempty"`
	Error       string   `json:"error,omitempty"`
	LatencyMs   float64  `json:"latencyMs"`
	TimeStamp   int64    `json:"timestamp"`
}

type Counters struct {
	Frames     int    `json:"frames"`
	Skipped    int    `json:"skipped"`
	Inferences int    `json:"inferences"`
	Faults     int    `json:"faults"`
	Matches    int    `json:"matches"`
	Mismatches int    `json:"mismatches"`
	Captures   int    `json:"captures"`
	Reason     string `json:"reason,omitempty"`
}

type Status struct {
	RunId     string   `json:"runId"`
	Started   int64    `json:"started"`
	UptimeSec float64  `json:"uptimeSec"`
	Counters  Counters `json:"counters"`
	LastEvent *Event   `json:"lastEvent,omitempty"`
	Config    any      `json:"config,omitempty"`
}

// Monitor implements verify.Observer.
type Monitor struct {
	RunId   string
	Config  any
	Metrics *Metrics
	hub     *Hub
	started time.Time

	mu       sync.RWMutex
	counters Counters
	last     *Event
}

// New builds a monitor for one run. cfg is published as-is on /api/status.
func New(runId string, cfg any) *Monitor {
	return &Monitor{
		RunId:   runId,
		Config:  cfg,
		Metrics: NewMetrics(),
		hub:     NewHub(),
		started: time.Now(),
	}
}

func (m *Monitor) Observe(o verify.Outcome) {
	ev := NewEvent(m.RunId, o)

	m.Metrics.Frames.Inc()
	switch o.Kind {
	case verify.KindSkipped:
		m.Metrics.FramesSkipped.Inc()
	case verify.KindFault:
		m.Metrics.Faults.WithLabelValues(o.FaultKind).Inc()
		if o.FaultKind != verify.FaultPreprocess {
			m.Metrics.Inferences.Inc()
		}
	case verify.KindMatch, verify.KindMismatch:
		m.Metrics.Inferences.Inc()
		m.Metrics.Decisions.WithLabelValues(string(o.Kind)).Inc()
		m.Metrics.InferenceTime.Observe(o.Latency.Seconds())
		if o.Decision.HasCandidate() {
			m.Metrics.LastDistance.Set(o.Decision.BestDistance)
		}
		if o.CapturePath != "" {
			m.Metrics.Captures.Inc()
		}
	}

	m.mu.Lock()
	m.counters.Frames++
	switch o.Kind {
	case verify.KindSkipped:
		m.counters.Skipped++
	case verify.KindFault:
		m.counters.Faults++
		if o.FaultKind != verify.FaultPreprocess {
			m.counters.Inferences++
		}
	case verify.KindMatch:
		m.counters.Inferences++
		m.counters.Matches++
	case verify.KindMismatch:
		m.counters.Inferences++
		m.counters.Mismatches++
		if o.CapturePath != "" {
			m.counters.Captures++
		}
	}
	m.last = &ev
	m.mu.Unlock()

	m.hub.Broadcast(ev)
}

// Finish records why the loop stopped.
func (m *Monitor) Finish(sum verify.Summary) {
	m.mu.Lock()
	m.counters.Reason = string(sum.Reason)
	m.mu.Unlock()
}

func NewEvent(runId string, o verify.Outcome) Event {
	ev := Event{
		Id:          uuid.NewString(),
		RunId:       runId,
		Frame:       o.Frame,
		Outcome:     string(o.Kind),
		Faces:       o.Faces,
		CapturePath: o.CapturePath,
		Fault:       o.FaultKind,
		LatencyMs:   float64(o.Latency.Microseconds()) / 1000,
		TimeStamp:   o.Time.Unix(),
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	// +Inf has no JSON form, so the distance is only set once an entry was compared
	if o.Decision.HasCandidate() {
		d := o.Decision.BestDistance
		ev.Distance = &d
		ev.Label = o.Decision.Label
	}
	return ev
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{
		RunId:     m.RunId,
		Started:   m.started.Unix(),
		UptimeSec: time.Since(m.started).Seconds(),
		Counters:  m.counters,
		Config:    m.Config,
	}
	if m.last != nil {
		ev := *m.last
		st.LastEvent = &ev
	}
	return st
}

func (m *Monitor) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": m.Status()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Metrics.Registry, promhttp.HandlerOpts{Registry: m.Metrics.Registry})))
	r.GET("/ws/events", m.hub.serveWS)
	return r
}

// StartMon serves the monitor API on port and samples process usage until
// ctx is done. It returns once the listener is bound.
func (m *Monitor) StartMon(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("monitor listen on %s: %w", addr, err)
	}
	if err := m.Metrics.GotPID(); err != nil {
		logger.Log().Warn("process metrics unavailable", zap.Error(err))
	}
	srv := &http.Server{Handler: m.Router()}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("monitor server stopped", zap.Error(err))
		}
	}()
	go func() {
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
	checkPcs:
		for {
			select {
			case <-ctx.Done():
				break checkPcs
			case <-ticker.C:
				m.Metrics.CheckProcessInfo()
			}
		}
		m.hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log().Warn("monitor shutdown", zap.Error(err))
		}
	}()
	logger.Log().Info("monitor listening", zap.String("addr", addr))
	return nil
}
