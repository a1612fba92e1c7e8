package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"FaceGuard/camera"
	"FaceGuard/capture"
	"FaceGuard/config"
	"FaceGuard/detector"
	"FaceGuard/display"
	"FaceGuard/engine"
	"FaceGuard/gallery"
	"FaceGuard/logger"
	"FaceGuard/monitor"
	"FaceGuard/preprocess"
	"FaceGuard/verify"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const Version = "0.1.0"

var (
	configPath      string
	flagCapture     string
	flagClassifier  string
	flagGraph       string
	flagThreshold   float64
	flagValidated   string
	flagWindow      bool
	flagBackend     string
	flagAccelAddr   string
	flagSource      string
	flagWebhook     string
	flagMonitorPort int
	flagLogLevel    string
	flagDev         bool
)

var rootCmd = &cobra.Command{
	Use:          "faceguard",
	Short:        "Real-time face verification against a gallery of known faces",
	Version:      Version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultFile, "path to the yaml config file")
	pf.StringVarP(&flagGraph, "graph", "g", "", "embedding graph file")
	pf.StringVar(&flagBackend, "backend", "", "accelerator backend: dnn, grpc or http")
	pf.StringVar(&flagAccelAddr, "accel-addr", "", "address of a remote accelerator")
	pf.IntVar(&flagMonitorPort, "monitor-port", 0, "serve the monitor API on this port, 0 disables it")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&flagDev, "dev", false, "human readable development logging")

	f := rootCmd.Flags()
	f.StringVarP(&flagCapture, "capture", "c", "", "directory for frames that did not match")
	f.StringVar(&flagClassifier, "classifier", "", "haar cascade classifier file")
	f.Float64VarP(&flagThreshold, "threshold", "t", config.DefaultThreshold, "maximum distance for a match")
	f.StringVarP(&flagValidated, "validated", "v", "", "directory with validated images")
	f.BoolVarP(&flagWindow, "window", "w", true, "show the camera window")
	f.StringVar(&flagSource, "source", "", "camera index or video path")
	f.StringVar(&flagWebhook, "webhook", "", "URL notified for every captured frame")

	rootCmd.AddCommand(serveCmd)
}

// loadConfig applies, from lowest to highest precedence, defaults, the
// config file, FACEGUARD_* variables (seeded from .env) and changed flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	changed := cmd.Flags().Changed
	if changed("capture") {
		cfg.Capture.Dir = flagCapture
	}
	if changed("classifier") {
		cfg.Detector.Classifier = flagClassifier
	}
	if changed("graph") {
		cfg.Engine.Graph = flagGraph
	}
	if changed("threshold") {
		cfg.Match.Threshold = flagThreshold
	}
	if changed("validated") {
		cfg.Gallery.Dir = flagValidated
	}
	if changed("window") {
		cfg.Window.Enabled = flagWindow
	}
	if changed("backend") {
		cfg.Engine.Backend = flagBackend
	}
	if changed("accel-addr") {
		cfg.Engine.Address = flagAccelAddr
	}
	if changed("source") {
		cfg.Camera.Source = flagSource
	}
	if changed("webhook") {
		cfg.Capture.Webhook = flagWebhook
	}
	if changed("monitor-port") {
		cfg.Monitor.Port = flagMonitorPort
	}
	if changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if changed("dev") {
		cfg.Log.Development = flagDev
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return err
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	return nil
}

func printBanner(cfg *config.Config, runId string) {
	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("FaceGuard %s  run %s\n", Version, runId)
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())
	fmt.Println(" Accelerator:", cfg.Engine.Backend, cfg.Engine.Graph+cfg.Engine.Address)
	fmt.Println(" Gallery    :", cfg.Gallery.Dir)
	fmt.Println(" Captures   :", cfg.Capture.Dir)
	fmt.Println(" Threshold  :", cfg.Match.Threshold)
	if cfg.Monitor.Port > 0 {
		fmt.Println(" Monitor    :", cfg.Monitor.Port)
	}
	fmt.Println(strings.Repeat("#", 64))
	fmt.Println("")
}

func printSummary(sum verify.Summary) {
	fmt.Println("")
	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("Stopped: %s\n", sum.Reason)
	fmt.Printf("Frames %d, skipped %d, inferences %d, faults %d\n", sum.Frames, sum.Skipped, sum.Inferences, sum.Faults)
	fmt.Printf("Matches %d, mismatches %d, captures %d\n", sum.Matches, sum.Mismatches, sum.Captures)
	fmt.Println(strings.Repeat("#", 64))
}

func run(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logger.Sync()

	runId := uuid.NewString()
	printBanner(cfg, runId)
	ctx := cmd.Context()

	var observer verify.Observer
	var mon *monitor.Monitor
	if cfg.Monitor.Port > 0 {
		mon = monitor.New(runId, cfg)
		if err := mon.StartMon(ctx, cfg.Monitor.Port); err != nil {
			return err
		}
		observer = mon
	}

	accel, err := engine.Open(ctx, cfg.Engine)
	if err != nil {
		logger.Log().Error("could not open the accelerator", zap.Error(err))
		return err
	}
	defer accel.Close()

	classifier, err := config.ResolveResource(cfg.Detector.Classifier)
	if err != nil {
		return err
	}
	det, err := detector.New(classifier)
	if err != nil {
		return err
	}
	defer det.Close()

	pre := preprocess.New(cfg.Engine.InputSize)
	galleryDir, err := config.ExpandHome(cfg.Gallery.Dir)
	if err != nil {
		return err
	}
	matcher, err := gallery.Build(ctx, galleryDir, pre, accel, gallery.Options{
		ExpectDim: cfg.Engine.EmbeddingDim,
		Progress:  os.Stderr,
	})
	if err != nil {
		logger.Log().Error("could not build the gallery", zap.Error(err))
		return err
	}

	var captureOpts []capture.Option
	if cfg.Capture.Webhook != "" {
		n := capture.NewNotifier(cfg.Capture.Webhook)
		n.RunId = runId
		captureOpts = append(captureOpts, capture.WithNotifier(n))
	}
	policy, err := capture.New(cfg.Capture.Dir, cfg.Capture.Prefix, captureOpts...)
	if err != nil {
		return err
	}

	source, err := camera.OpenSource(cfg.Camera)
	if err != nil {
		logger.Log().Error("could not open camera, make sure it is plugged in", zap.Error(err))
		return err
	}
	defer source.Close()

	deps := verify.Deps{
		Source:       source,
		Detector:     det,
		Preprocessor: pre,
		Client:       accel,
		Matcher:      matcher,
		Capture:      policy,
		Observer:     observer,
	}
	if cfg.Window.Enabled {
		win := display.New(cfg.Window.Name)
		defer win.Close()
		deps.Display = win
	}

	ctrl, err := verify.New(deps, verify.Options{
		Threshold:     cfg.Match.Threshold,
		HoldLastMatch: cfg.Window.HoldLastMatch,
	})
	if err != nil {
		return err
	}
	sum, err := ctrl.Run(ctx)
	if err != nil {
		return err
	}
	if mon != nil {
		mon.Finish(sum)
	}
	printSummary(sum)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
