package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	iface "FaceGuard/interface"
	"FaceGuard/verify"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func mismatch(frame int) verify.Outcome {
	return verify.Outcome{
		Frame:       frame,
		Kind:        verify.KindMismatch,
		Faces:       1,
		Decision:    iface.MatchDecision{BestIndex: 1, BestDistance: 2.5, Label: "bob.jpg"},
		CapturePath: "/tmp/image_1.jpg",
		Latency:     30 * time.Millisecond,
		Time:        time.Now(),
	}
}

func TestObserve_Metrics(t *testing.T) {
	m := New("run-1", nil)

	m.Observe(verify.Outcome{Frame: 1, Kind: verify.KindSkipped})
	m.Observe(verify.Outcome{Frame: 2, Kind: verify.KindFault, FaultKind: verify.FaultTimeout, Err: errors.New("late")})
	m.Observe(verify.Outcome{Frame: 3, Kind: verify.KindFault, FaultKind: verify.FaultPreprocess})
	m.Observe(verify.Outcome{Frame: 4, Kind: verify.KindMatch, Decision: iface.MatchDecision{BestIndex: 0, BestDistance: 0.1, Matched: true}})
	m.Observe(mismatch(5))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.Metrics.Frames))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.FramesSkipped))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Metrics.Inferences))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.Faults.WithLabelValues(verify.FaultTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.Decisions.WithLabelValues("mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.Captures))
	assert.Equal(t, 2.5, testutil.ToFloat64(m.Metrics.LastDistance))

	st := m.Status()
	assert.Equal(t, Counters{Frames: 5, Skipped: 1, Inferences: 3, Faults: 2, Matches: 1, Mismatches: 1, Captures: 1}, st.Counters)
	require.NotNil(t, st.LastEvent)
	assert.Equal(t, 5, st.LastEvent.Frame)

	m.Finish(verify.Summary{Reason: verify.ReasonQuitKey})
	assert.Equal(t, "quit_key", m.Status().Counters.Reason)
}

func TestNewEvent_NoCandidate(t *testing.T) {
	ev := NewEvent("run", verify.Outcome{Kind: verify.KindMismatch, Decision: iface.MatchDecision{BestIndex: -1}})
	assert.Nil(t, ev.Distance)
	_, err := json.Marshal(ev)
	assert.NoError(t, err)
}

func TestRouter(t *testing.T) {
	m := New("run-1", map[string]any{"threshold": 0.8})
	m.Observe(mismatch(1))
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	t.Run("ping", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/ping")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("status", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		var body struct {
			Data Status `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "run-1", body.Data.RunId)
		assert.Equal(t, 1, body.Data.Counters.Mismatches)
		require.NotNil(t, body.Data.LastEvent)
		require.NotNil(t, body.Data.LastEvent.Distance)
		assert.InDelta(t, 2.5, *body.Data.LastEvent.Distance, 1e-9)
		assert.Equal(t, "bob.jpg", body.Data.LastEvent.Label)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(b), "faceguard_frames_total 1")
		assert.Contains(t, string(b), `faceguard_decisions_total{outcome="mismatch"} 1`)
	})
}

func TestEventStream(t *testing.T) {
	m := New("run-ws", nil)
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return m.hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	m.Observe(mismatch(7))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "run-ws", ev.RunId)
	assert.Equal(t, 7, ev.Frame)
	assert.Equal(t, "mismatch", ev.Outcome)
	assert.NotEmpty(t, ev.Id)

	_ = conn.Close()
	assert.Eventually(t, func() bool { return m.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStartMon(t *testing.T) {
	m := New("run", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.StartMon(ctx, 0))
	m.Metrics.CheckProcessInfo()
	assert.Greater(t, testutil.ToFloat64(m.Metrics.memUsage), 0.0)
}
