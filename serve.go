package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"FaceGuard/engine"
	backend "FaceGuard/gRPC"
	"FaceGuard/logger"
	"FaceGuard/monitor"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagRPCPort  int
	flagHTTPPort int
	flagWorkers  int
)

var serveCmd = &cobra.Command{
	Use:   "serve-accelerator",
	Short: "Expose the local accelerator to remote verifiers over gRPC and HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

func init() {
	f := serveCmd.Flags()
	f.IntVar(&flagRPCPort, "rpc-port", 50051, "gRPC port, 0 disables it")
	f.IntVar(&flagHTTPPort, "http-port", 0, "HTTP port, 0 disables it")
	f.IntVar(&flagWorkers, "workers", 1, "worker threads driving the device")
}

func serve(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logger.Sync()
	if flagRPCPort == 0 && flagHTTPPort == 0 {
		return errors.New("nothing to serve: both --rpc-port and --http-port are 0")
	}

	runId := uuid.NewString()
	ctx := cmd.Context()
	printBanner(cfg, runId)

	accel, err := engine.Open(ctx, cfg.Engine)
	if err != nil {
		logger.Log().Error("could not open the accelerator", zap.Error(err))
		return err
	}
	defer accel.Close()

	var mon *monitor.Monitor
	if cfg.Monitor.Port > 0 {
		mon = monitor.New(runId, cfg)
		if err := mon.StartMon(ctx, cfg.Monitor.Port); err != nil {
			return err
		}
	}

	if flagRPCPort > 0 {
		srv := backend.NewServer(accel, flagWorkers)
		if mon != nil {
			srv.Requests = mon.Metrics.GRPCTotal
		}
		g, err := backend.StartGRPCServer(flagRPCPort, srv)
		if err != nil {
			return err
		}
		defer func() {
			srv.Shutdown()
			g.GracefulStop()
		}()
	}

	if flagHTTPPort > 0 {
		hs := &http.Server{
			Addr:    fmt.Sprintf(":%d", flagHTTPPort),
			Handler: engine.NewHTTPRouter(accel),
		}
		go func() {
			logger.Log().Info("HTTP accelerator listening", zap.String("addr", hs.Addr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log().Error("HTTP accelerator stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = hs.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Log().Warn("shutting down")
	return nil
}
