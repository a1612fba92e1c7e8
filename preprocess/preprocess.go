package preprocess

import (
	"errors"
	"fmt"
	"image"
	"math"

	iface "FaceGuard/interface"

	"gocv.io/x/gocv"
)

// DefaultSize is the square input edge of the FaceNet graph.
const DefaultSize = 160

var ErrEmptyFrame = errors.New("preprocess: empty frame")

// Preprocessor turns a BGR camera frame into the whitened RGB tensor the
// embedding network expects.
type Preprocessor struct {
	Size int
}

func New(size int) *Preprocessor {
	if size <= 0 {
		size = DefaultSize
	}
	return &Preprocessor{Size: size}
}

func (p *Preprocessor) Preprocess(frame gocv.Mat) (iface.Tensor, error) {
	if frame.Empty() {
		return iface.Tensor{}, ErrEmptyFrame
	}
	if frame.Channels() != 3 {
		return iface.Tensor{}, fmt.Errorf("preprocess: expected 3 channels, got %d", frame.Channels())
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(frame, &resized, image.Pt(p.Size, p.Size), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	raw := rgb.ToBytes()
	want := p.Size * p.Size * 3
	if len(raw) != want {
		return iface.Tensor{}, fmt.Errorf("preprocess: expected %d bytes after resize, got %d", want, len(raw))
	}
	data := make([]float32, len(raw))
	for i, b := range raw {
		data[i] = float32(b)
	}

	return iface.Tensor{
		Width:    p.Size,
		Height:   p.Size,
		Channels: 3,
		Data:     Whiten(data),
	}, nil
}

// Whiten subtracts the mean and divides by the standard deviation in place.
// The deviation is floored at 1/sqrt(N) so flat images do not blow up.
func Whiten(data []float32) []float32 {
	n := len(data)
	if n == 0 {
		return data
	}
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range data {
		d := float64(v) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))
	std = math.Max(std, 1/math.Sqrt(float64(n)))

	for i, v := range data {
		data[i] = float32((float64(v) - mean) / std)
	}
	return data
}
