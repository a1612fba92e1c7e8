package engine

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	iface "FaceGuard/interface"
	"FaceGuard/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const warmupRuns = 3

// DNN runs the embedding graph through OpenCV's dnn module. With the OpenVINO
// backend and the VPU target the network executes on a Myriad stick.
type DNN struct {
	mu        sync.Mutex
	net       gocv.Net
	ModelPath string
	Backend   gocv.NetBackendType
	Target    gocv.NetTargetType
	closed    bool
}

// NewDNN loads the graph and warms it up on a blank tensor. Any failure to
// produce an embedding during warm-up is reported as ErrNoDevice.
func NewDNN(modelPath, configPath, netBackend, netTarget string, inputSize int) (*DNN, error) {
	nb, err := ParseNetBackend(netBackend)
	if err != nil {
		return nil, err
	}
	nt, err := ParseNetTarget(netTarget)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: graph %s: %v", ErrNoDevice, modelPath, err)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%w: graph config %s: %v", ErrNoDevice, configPath, err)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: could not load graph %s", ErrNoDevice, modelPath)
	}
	net.SetPreferableBackend(nb)
	net.SetPreferableTarget(nt)

	d := &DNN{
		net:       net,
		ModelPath: modelPath,
		Backend:   nb,
		Target:    nt,
	}
	if err := d.warmup(inputSize); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return d, nil
}

func (d *DNN) warmup(size int) (err error) {
	blank := iface.Tensor{Width: size, Height: size, Channels: 3, Data: make([]float32, size*size*3)}
	for i := 0; i < warmupRuns; i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic during warmup inference: %v", r)
				}
			}()
			var emb iface.Embedding
			emb, err = d.Infer(context.Background(), blank)
			if err == nil && len(emb) == 0 {
				err = ErrInferenceFailed
			}
		}()
		if err != nil {
			return err
		}
	}
	logger.Log().Info("warm up finished", zap.String("graph", d.ModelPath), zap.Int("runs", warmupRuns))
	return nil
}

func (d *DNN) Infer(ctx context.Context, t iface.Tensor) (iface.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("dnn: %w", err)
	}

	img := gocv.NewMatWithSize(t.Height, t.Width, gocv.MatTypeCV32FC3)
	defer img.Close()
	buf, err := img.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	copy(buf, t.Data)

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(t.Width, t.Height), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return nil, ErrInferenceFailed
	}
	values, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("dnn: reading output: %w", err)
	}
	emb := make(iface.Embedding, len(values))
	copy(emb, values)
	return emb, nil
}

func (d *DNN) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

func ParseNetBackend(name string) (gocv.NetBackendType, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return gocv.NetBackendDefault, nil
	case "openvino":
		return gocv.NetBackendOpenVINO, nil
	case "opencv":
		return gocv.NetBackendOpenCV, nil
	case "halide":
		return gocv.NetBackendHalide, nil
	case "vulkan":
		return gocv.NetBackendVKCOM, nil
	case "cuda":
		return gocv.NetBackendCUDA, nil
	}
	return gocv.NetBackendDefault, fmt.Errorf("unsupported net backend %q", name)
}

func ParseNetTarget(name string) (gocv.NetTargetType, error) {
	switch strings.ToLower(name) {
	case "", "cpu":
		return gocv.NetTargetCPU, nil
	case "fp32":
		return gocv.NetTargetFP32, nil
	case "fp16":
		return gocv.NetTargetFP16, nil
	case "vpu", "myriad":
		return gocv.NetTargetVPU, nil
	case "vulkan":
		return gocv.NetTargetVulkan, nil
	case "fpga":
		return gocv.NetTargetFPGA, nil
	case "cuda":
		return gocv.NetTargetCUDA, nil
	case "cudafp16":
		return gocv.NetTargetCUDAFP16, nil
	}
	return gocv.NetTargetCPU, fmt.Errorf("unsupported net target %q", name)
}
