package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFile      = "config.yaml"
	DefaultThreshold = 0.8
	// DefaultEmbeddingDim is the output size of the FaceNet graph the default
	// threshold was tuned for. Changing one without the other is meaningless.
	DefaultEmbeddingDim = 128
)

type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Detector DetectorConfig `yaml:"detector"`
	Engine   EngineConfig   `yaml:"engine"`
	Match    MatchConfig    `yaml:"match"`
	Gallery  GalleryConfig  `yaml:"gallery"`
	Camera   CameraConfig   `yaml:"camera"`
	Window   WindowConfig   `yaml:"window"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Log      LogConfig      `yaml:"log"`
}

type CaptureConfig struct {
	Dir     string `yaml:"dir"`
	Prefix  string `yaml:"prefix"`
	Webhook string `yaml:"webhook"`
}

type DetectorConfig struct {
	Classifier string `yaml:"classifier"`
}

type EngineConfig struct {
	Backend      string        `yaml:"backend"` // dnn, grpc or http
	Graph        string        `yaml:"graph"`
	GraphConfig  string        `yaml:"graphConfig"`
	NetBackend   string        `yaml:"netBackend"`
	NetTarget    string        `yaml:"netTarget"`
	Address      string        `yaml:"address"`
	InputSize    int           `yaml:"inputSize"`
	EmbeddingDim int           `yaml:"embeddingDim"`
	InferTimeout time.Duration `yaml:"inferTimeout"`
}

type MatchConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type GalleryConfig struct {
	Dir string `yaml:"dir"`
}

type CameraConfig struct {
	Source string `yaml:"source"`
	Driver string `yaml:"driver"` // gocv or v4l2
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type WindowConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Name          string `yaml:"name"`
	HoldLastMatch bool   `yaml:"holdLastMatch"`
}

type MonitorConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Dir:    "~/capture/",
			Prefix: "image_",
		},
		Detector: DetectorConfig{
			Classifier: "casc.xml",
		},
		Engine: EngineConfig{
			Backend:      "dnn",
			Graph:        "facenet_celeb_ncs.graph",
			NetBackend:   "openvino",
			NetTarget:    "vpu",
			InputSize:    160,
			EmbeddingDim: DefaultEmbeddingDim,
			InferTimeout: 2 * time.Second,
		},
		Match: MatchConfig{
			Threshold: DefaultThreshold,
		},
		Gallery: GalleryConfig{
			Dir: "./validated_images/",
		},
		Camera: CameraConfig{
			Source: "0",
			Driver: "gocv",
			Width:  640,
			Height: 480,
		},
		Window: WindowConfig{
			Enabled:       true,
			Name:          "FaceNet- Multiple people",
			HoldLastMatch: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults, then applies FACEGUARD_* environment
// overrides. A missing file is only an error when required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FACEGUARD_* variables. Unset or empty
// variables leave the field alone.
func (c *Config) ApplyEnv() error {
	envString("FACEGUARD_CAPTURE_DIR", &c.Capture.Dir)
	envString("FACEGUARD_CAPTURE_PREFIX", &c.Capture.Prefix)
	envString("FACEGUARD_CAPTURE_WEBHOOK", &c.Capture.Webhook)
	envString("FACEGUARD_CLASSIFIER", &c.Detector.Classifier)
	envString("FACEGUARD_ENGINE_BACKEND", &c.Engine.Backend)
	envString("FACEGUARD_GRAPH", &c.Engine.Graph)
	envString("FACEGUARD_ENGINE_ADDRESS", &c.Engine.Address)
	envString("FACEGUARD_NET_BACKEND", &c.Engine.NetBackend)
	envString("FACEGUARD_NET_TARGET", &c.Engine.NetTarget)
	envString("FACEGUARD_GALLERY_DIR", &c.Gallery.Dir)
	envString("FACEGUARD_CAMERA_SOURCE", &c.Camera.Source)
	envString("FACEGUARD_CAMERA_DRIVER", &c.Camera.Driver)
	envString("FACEGUARD_LOG_LEVEL", &c.Log.Level)

	var errs []error
	errs = append(errs,
		envInt("FACEGUARD_INPUT_SIZE", &c.Engine.InputSize),
		envInt("FACEGUARD_EMBEDDING_DIM", &c.Engine.EmbeddingDim),
		envInt("FACEGUARD_CAMERA_WIDTH", &c.Camera.Width),
		envInt("FACEGUARD_CAMERA_HEIGHT", &c.Camera.Height),
		envInt("FACEGUARD_MONITOR_PORT", &c.Monitor.Port),
		envFloat("FACEGUARD_THRESHOLD", &c.Match.Threshold),
		envBool("FACEGUARD_WINDOW", &c.Window.Enabled),
		envDuration("FACEGUARD_INFER_TIMEOUT", &c.Engine.InferTimeout),
	)
	return errors.Join(errs...)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Match.Threshold < 0 {
		errs = append(errs, fmt.Errorf("match.threshold must be >= 0, got %v", c.Match.Threshold))
	}
	if c.Engine.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.inputSize must be > 0, got %d", c.Engine.InputSize))
	}
	if c.Engine.EmbeddingDim < 0 {
		errs = append(errs, fmt.Errorf("engine.embeddingDim must be >= 0, got %d", c.Engine.EmbeddingDim))
	}
	if c.Engine.InferTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.inferTimeout must be >= 0, got %s", c.Engine.InferTimeout))
	}
	switch c.Engine.Backend {
	case "dnn":
		if c.Engine.Graph == "" {
			errs = append(errs, errors.New("engine.graph is required for the dnn backend"))
		}
	case "grpc", "http":
		if c.Engine.Address == "" {
			errs = append(errs, fmt.Errorf("engine.address is required for the %s backend", c.Engine.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported engine.backend %q", c.Engine.Backend))
	}
	switch c.Camera.Driver {
	case "gocv", "v4l2":
	default:
		errs = append(errs, fmt.Errorf("unsupported camera.driver %q", c.Camera.Driver))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera resolution must be positive, got %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Gallery.Dir == "" {
		errs = append(errs, errors.New("gallery.dir is required"))
	}
	if c.Capture.Dir == "" {
		errs = append(errs, errors.New("capture.dir is required"))
	}
	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
