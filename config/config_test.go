package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "~/capture/", cfg.Capture.Dir)
	assert.Equal(t, "casc.xml", cfg.Detector.Classifier)
	assert.Equal(t, "facenet_celeb_ncs.graph", cfg.Engine.Graph)
	assert.Equal(t, 0.8, cfg.Match.Threshold)
	assert.Equal(t, "./validated_images/", cfg.Gallery.Dir)
	assert.True(t, cfg.Window.Enabled)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, 160, cfg.Engine.InputSize)
	assert.Equal(t, DefaultEmbeddingDim, cfg.Engine.EmbeddingDim)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
capture:
  dir: /var/lib/faceguard/capture
match:
  threshold: 1.1
engine:
  backend: grpc
  address: accel:50051
  inferTimeout: 750ms
window:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/faceguard/capture", cfg.Capture.Dir)
	assert.Equal(t, 1.1, cfg.Match.Threshold)
	assert.Equal(t, "grpc", cfg.Engine.Backend)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.InferTimeout)
	assert.False(t, cfg.Window.Enabled)
	// untouched keys keep their defaults
	assert.Equal(t, "casc.xml", cfg.Detector.Classifier)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, Default().Match.Threshold, cfg.Match.Threshold)

	_, err = Load(path, true)
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("match: [1, 2"), 0o644))

	_, err := Load(path, true)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FACEGUARD_THRESHOLD", "0.55")
	t.Setenv("FACEGUARD_WINDOW", "false")
	t.Setenv("FACEGUARD_CAPTURE_DIR", "/tmp/cap")
	t.Setenv("FACEGUARD_INFER_TIMEOUT", "3s")
	t.Setenv("FACEGUARD_MONITOR_PORT", "9100")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, 0.55, cfg.Match.Threshold)
	assert.False(t, cfg.Window.Enabled)
	assert.Equal(t, "/tmp/cap", cfg.Capture.Dir)
	assert.Equal(t, 3*time.Second, cfg.Engine.InferTimeout)
	assert.Equal(t, 9100, cfg.Monitor.Port)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("FACEGUARD_THRESHOLD", "close-enough")
	t.Setenv("FACEGUARD_CAMERA_WIDTH", "wide")

	cfg := Default()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FACEGUARD_THRESHOLD")
	assert.Contains(t, err.Error(), "FACEGUARD_CAMERA_WIDTH")
	assert.Equal(t, 0.8, cfg.Match.Threshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative threshold", func(c *Config) { c.Match.Threshold = -1 }},
		{"zero input size", func(c *Config) { c.Engine.InputSize = 0 }},
		{"unknown backend", func(c *Config) { c.Engine.Backend = "tpu" }},
		{"grpc without address", func(c *Config) { c.Engine.Backend = "grpc" }},
		{"http without address", func(c *Config) { c.Engine.Backend = "http" }},
		{"dnn without graph", func(c *Config) { c.Engine.Graph = "" }},
		{"unknown driver", func(c *Config) { c.Camera.Driver = "dshow" }},
		{"zero resolution", func(c *Config) { c.Camera.Width = 0 }},
		{"negative timeout", func(c *Config) { c.Engine.InferTimeout = -time.Second }},
		{"empty gallery dir", func(c *Config) { c.Gallery.Dir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FACEGUARD_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("FACEGUARD_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("FACEGUARD_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/capture/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "capture"), got)

	got, err = ExpandHome("./capture")
	require.NoError(t, err)
	assert.Equal(t, "./capture", got)
}

func TestResolveResource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "casc.xml")
	require.NoError(t, os.WriteFile(path, []byte("<opencv_storage/>"), 0o644))

	got, err := ResolveResource(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolveResource(filepath.Join(dir, "missing.xml"))
	assert.Error(t, err)

	_, err = ResolveResource("definitely-not-a-real-classifier.xml")
	assert.Error(t, err)
}
