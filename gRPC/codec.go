package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	iface "FaceGuard/interface"
)

const tensorHeaderSize = 12

var ErrMalformed = errors.New("malformed payload")

// EncodeTensor lays t out as a 12 byte little-endian width/height/channels
// header followed by the float32 data.
func EncodeTensor(t iface.Tensor) []byte {
	buf := make([]byte, tensorHeaderSize+4*len(t.Data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(t.Width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(t.Height))
	binary.LittleEndian.PutUint32(buf[8:], uint32(t.Channels))
	putFloats(buf[tensorHeaderSize:], t.Data)
	return buf
}

func DecodeTensor(b []byte) (iface.Tensor, error) {
	if len(b) < tensorHeaderSize {
		return iface.Tensor{}, fmt.Errorf("%w: tensor header needs %d bytes, got %d", ErrMalformed, tensorHeaderSize, len(b))
	}
	t := iface.Tensor{
		Width:    int(binary.LittleEndian.Uint32(b[0:])),
		Height:   int(binary.LittleEndian.Uint32(b[4:])),
		Channels: int(binary.LittleEndian.Uint32(b[8:])),
	}
	body := b[tensorHeaderSize:]
	if len(body)%4 != 0 {
		return iface.Tensor{}, fmt.Errorf("%w: tensor body of %d bytes", ErrMalformed, len(body))
	}
	t.Data = getFloats(body)
	if err := t.Validate(); err != nil {
		return iface.Tensor{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return t, nil
}

func EncodeEmbedding(e iface.Embedding) []byte {
	buf := make([]byte, 4*len(e))
	putFloats(buf, e)
	return buf
}

func DecodeEmbedding(b []byte) (iface.Embedding, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: embedding of %d bytes", ErrMalformed, len(b))
	}
	return iface.Embedding(getFloats(b)), nil
}

func putFloats(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
}

func getFloats(src []byte) []float32 {
	out := make([]float32, len(src)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
	return out
}
