package camera

import (
	"path/filepath"
	"testing"

	"FaceGuard/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.avi"), 640, 480)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestOpenSource(t *testing.T) {
	_, err := OpenSource(config.CameraConfig{Driver: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrOpen)

	_, err = OpenSource(config.CameraConfig{Driver: "v4l2", Source: filepath.Join(t.TempDir(), "video99")})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/video0", devicePath("0"))
	assert.Equal(t, "/dev/video2", devicePath("2"))
	assert.Equal(t, "/dev/v4l/by-id/cam", devicePath("/dev/v4l/by-id/cam"))
}

func TestDecodeFrame(t *testing.T) {
	src := gocv.NewMatWithSize(24, 32, gocv.MatTypeCV8UC3)
	defer src.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, src)
	require.NoError(t, err)
	defer buf.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	require.NoError(t, decodeFrame(buf.GetBytes(), &dst))
	assert.Equal(t, 32, dst.Cols())
	assert.Equal(t, 24, dst.Rows())
	assert.Equal(t, 3, dst.Channels())

	assert.Error(t, decodeFrame([]byte("garbage"), &dst))
}
