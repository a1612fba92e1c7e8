package monitor

import (
	"math"
	"os"

	"FaceGuard/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Metrics owns a private registry; nothing is registered globally.
type Metrics struct {
	Registry *prometheus.Registry

	Frames        prometheus.Counter
	FramesSkipped prometheus.Counter
	Inferences    prometheus.Counter
	Faults        *prometheus.CounterVec
	Decisions     *prometheus.CounterVec
	Captures      prometheus.Counter
	InferenceTime prometheus.Histogram
	LastDistance  prometheus.Gauge
	GRPCTotal     prometheus.Counter
	memUsage      prometheus.Gauge
	cpuUsage      prometheus.Gauge
	proc          *process.Process
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceguard_frames_total",
			Help: "Frames read from the camera",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceguard_frames_skipped_total",
			Help: "Frames without a detected face",
		}),
		Inferences: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceguard_inferences_total",
			Help: "Accelerator calls issued",
		}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceguard_inference_faults_total",
			Help: "Per-frame faults by kind",
		}, []string{"kind"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceguard_decisions_total",
			Help: "Match decisions by outcome",
		}, []string{"outcome"}),
		Captures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceguard_captures_total",
			Help: "Mismatch frames written to disk",
		}),
		InferenceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceguard_inference_seconds",
			Help:    "Time from frame read to decision",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		LastDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "faceguard_last_distance",
			Help: "Distance to the nearest gallery entry in the last decision",
		}),
		GRPCTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests processed",
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_Megabytes",
			Help: "Memory usage in Megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage in percent",
		}),
	}
	m.Registry.MustRegister(m.Frames, m.FramesSkipped, m.Inferences, m.Faults, m.Decisions,
		m.Captures, m.InferenceTime, m.LastDistance, m.GRPCTotal, m.memUsage, m.cpuUsage)
	return m
}

// GotPID binds the process gauges to the current process.
func (m *Metrics) GotPID() error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	m.proc = p
	return nil
}

func (m *Metrics) CheckProcessInfo() {
	if m.proc == nil {
		return
	}
	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		logger.Log().Debug("memory sample failed", zap.Error(err))
		return
	}
	m.memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	cpuPercent, err := m.proc.CPUPercent()
	if err != nil {
		logger.Log().Debug("cpu sample failed", zap.Error(err))
		return
	}
	m.cpuUsage.Set(math.Round(cpuPercent*100) / 100)
}
