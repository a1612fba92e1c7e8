package capture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	iface "FaceGuard/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var fixedTime = time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)

func TestFileName(t *testing.T) {
	p := &Policy{Prefix: "image_"}
	assert.Equal(t, "image_2024_03_05_14_07_09.jpg", p.FileName(fixedTime))
}

func TestNew_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	p, err := New(dir, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrefix, p.Prefix)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOnMismatch_WritesFile(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir, "image_", WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	path, err := p.OnMismatch(context.Background(), frame, iface.MatchDecision{BestIndex: -1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "image_2024_03_05_14_07_09.jpg"), path)

	saved := gocv.IMRead(path, gocv.IMReadColor)
	defer saved.Close()
	assert.False(t, saved.Empty())
	assert.Equal(t, 64, saved.Cols())

	// same second overwrites
	again, err := p.OnMismatch(context.Background(), frame, iface.MatchDecision{BestIndex: -1})
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestOnMismatch_WriteFailure(t *testing.T) {
	p, err := New(t.TempDir(), "x_", WithWriter(func(string, gocv.Mat) bool { return false }))
	require.NoError(t, err)

	frame := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
	defer frame.Close()
	_, err = p.OnMismatch(context.Background(), frame, iface.MatchDecision{})
	assert.ErrorIs(t, err, ErrWrite)
}

func TestOnMismatch_Notifies(t *testing.T) {
	alerts := make(chan Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a Alert
		_ = json.NewDecoder(r.Body).Decode(&a)
		alerts <- a
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	n.RunId = "run-1"
	var written string
	p, err := New(t.TempDir(), "image_",
		WithClock(func() time.Time { return fixedTime }),
		WithWriter(func(path string, _ gocv.Mat) bool { written = path; return true }),
		WithNotifier(n))
	require.NoError(t, err)

	frame := gocv.NewMat()
	defer frame.Close()
	path, err := p.OnMismatch(context.Background(), frame, iface.MatchDecision{BestIndex: 1, BestDistance: 1.5, Label: "bob.jpg"})
	require.NoError(t, err)
	assert.Equal(t, written, path)

	a := <-alerts
	assert.NotEmpty(t, a.Id)
	assert.Equal(t, "run-1", a.RunId)
	assert.Equal(t, path, a.File)
	assert.Equal(t, "bob.jpg", a.Nearest)
	require.NotNil(t, a.Distance)
	assert.InDelta(t, 1.5, *a.Distance, 1e-9)
	assert.Equal(t, fixedTime.Unix(), a.TimeStamp)
}

func TestOnMismatch_NotifierFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(t.TempDir(), "image_",
		WithWriter(func(string, gocv.Mat) bool { return true }),
		WithNotifier(NewNotifier(srv.URL)))
	require.NoError(t, err)

	frame := gocv.NewMat()
	defer frame.Close()
	_, err = p.OnMismatch(context.Background(), frame, iface.MatchDecision{BestIndex: -1})
	assert.NoError(t, err)
}
