package iface

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTensorValidate(t *testing.T) {
	tests := []struct {
		name   string
		tensor Tensor
		ok     bool
	}{
		{"rgb", Tensor{Width: 2, Height: 1, Channels: 3, Data: make([]float32, 6)}, true},
		{"max side", Tensor{Width: MaxTensorSide, Height: 1, Channels: 3, Data: make([]float32, 3*MaxTensorSide)}, true},
		{"gray", Tensor{Width: 1, Height: 1, Channels: 1, Data: []float32{0}}, false},
		{"zero width", Tensor{Width: 0, Height: 1, Channels: 3}, false},
		{"negative height", Tensor{Width: 1, Height: -1, Channels: 3, Data: make([]float32, 3)}, false},
		{"too wide", Tensor{Width: MaxTensorSide + 1, Height: 1, Channels: 3, Data: make([]float32, 3*(MaxTensorSide+1))}, false},
		{"short data", Tensor{Width: 2, Height: 2, Channels: 3, Data: make([]float32, 3)}, false},
		// 7 * 0x6DB6DB6DB6DB6DB7 wraps to 1, so Len() alone reports 3
		{"wrapping shape", Tensor{Width: 7, Height: 0x6DB6DB6DB6DB6DB7, Channels: 3, Data: make([]float32, 3)}, false},
	}
	for _, tt := range tests {
		err := tt.tensor.Validate()
		if tt.ok {
			assert.NoError(t, err, tt.name)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTensor, tt.name)
		}
	}
}
