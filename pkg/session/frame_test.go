package session

import (
	"context"
	"testing"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelTrace)
	return logger.CtxWithLogger(context.Background(), l)
}

func TestAliasedFramePointerRoundTrip(t *testing.T) {
	const width, height = 32, 24

	buf := AllocPixelBuffer(width, height)
	defer buf.Free()

	frame, err := NewAliasedFrame(width, height, buf)
	require.NoError(t, err)

	expected := [3]unsafe.Pointer{buf.Y, buf.Cb, buf.Cr}
	require.Equal(t, expected, frame.planePointers())
	for i, orig := range frame.originalPointers() {
		require.NotEqual(t, expected[i], orig)
		require.NotNil(t, orig)
	}

	require.Equal(t, width, frame.Linesize()[0])

	frame.restore()
	require.Equal(t, frame.originalPointers(), frame.planePointers())
	frame.restore()
	require.Equal(t, frame.originalPointers(), frame.planePointers())

	frame.Close()
	frame.Close()
}

func TestAliasedFrameNoCopyOnCreate(t *testing.T) {
	const width, height = 16, 16

	buf := AllocPixelBuffer(width, height)
	defer buf.Free()

	y, cb, cr := buf.Planes(width, height)
	for i := range y {
		y[i] = 0x42
		cb[i] = 0x17
		cr[i] = 0x99
	}

	frame, err := NewAliasedFrame(width, height, buf)
	require.NoError(t, err)
	defer frame.Close()

	// Writes through the buffer are visible through the frame without
	// any submission in between.
	y[0] = 0xAA
	planes := frame.planePointers()
	frameY := unsafe.Slice((*byte)(planes[0]), width*height)
	require.Equal(t, byte(0xAA), frameY[0])
	require.Equal(t, byte(0x42), frameY[1])
	frameCb := unsafe.Slice((*byte)(planes[1]), width*height)
	require.Equal(t, byte(0x17), frameCb[width*height-1])
	frameCr := unsafe.Slice((*byte)(planes[2]), width*height)
	require.Equal(t, byte(0x99), frameCr[0])
}

func TestProfileOptions(t *testing.T) {
	for _, p := range []Profile{ProfileStandard, ProfileProxy} {
		d, err := p.encoderOptions()
		require.NoError(t, err)
		d.Free()

		parsed, err := ParseProfile(string(p))
		require.NoError(t, err)
		require.Equal(t, p, parsed)
	}

	_, err := ParseProfile("lossless")
	require.Error(t, err)

	_, err = Profile("lossless").encoderOptions()
	require.Error(t, err)
}
