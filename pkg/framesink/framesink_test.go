package framesink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/framesink/pkg/session"
)

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelTrace)
	return logger.CtxWithLogger(context.Background(), l)
}

func startConfig(t *testing.T, outputPath string) (StartConfig, func()) {
	const width, height = 64, 64
	bufA := session.AllocPixelBuffer(width, height)
	bufB := session.AllocPixelBuffer(width, height)
	return StartConfig{
			OutputPath: outputPath,
			Width:      width,
			Height:     height,
			FPS:        30,
			BufferA:    bufA,
			BufferB:    bufB,
			Profile:    session.ProfileStandard,
		}, func() {
			bufA.Free()
			bufB.Free()
		}
}

// requireNotFinalized checks the file never got its trailer: an mp4
// without the index atom is not demuxable as a usable recording.
func requireNotFinalized(t *testing.T, path string) {
	formatContext := astiav.AllocFormatContext()
	require.NotNil(t, formatContext)
	defer formatContext.Free()

	if err := formatContext.OpenInput(path, nil, nil); err != nil {
		return
	}
	defer formatContext.CloseInput()
	if err := formatContext.FindStreamInfo(nil); err != nil {
		return
	}
	require.LessOrEqual(t, formatContext.Duration(), int64(0))
}

func TestSubmitFrameWithoutSession(t *testing.T) {
	ctx := testCtx(t)
	r := New()
	require.True(t, r.SubmitFrame(ctx, false))
	require.True(t, r.SubmitFrame(ctx, true))
	r.FinishEncode(ctx)
}

func TestStartFailureLeavesRegistryEmpty(t *testing.T) {
	ctx := testCtx(t)
	r := New()

	cfg, freeBuffers := startConfig(t, filepath.Join(t.TempDir(), "no", "such", "dir", "out.mp4"))
	defer freeBuffers()

	require.False(t, r.Start(ctx, cfg))
	require.Nil(t, r.current)
	require.True(t, r.SubmitFrame(ctx, false))
}

func TestStartReplacesUnfinishedSession(t *testing.T) {
	ctx := testCtx(t)
	r := New()
	tempDir := t.TempDir()

	cfgOld, freeOld := startConfig(t, filepath.Join(tempDir, "old.mp4"))
	defer freeOld()
	require.True(t, r.Start(ctx, cfgOld))
	require.True(t, r.SubmitFrame(ctx, false))
	old := r.current

	cfgNew, freeNew := startConfig(t, filepath.Join(tempDir, "new.mp4"))
	defer freeNew()
	require.True(t, r.Start(ctx, cfgNew))
	require.NotNil(t, r.current)
	require.NotSame(t, old, r.current)

	// The dropped session gets no trailer, so its file must not read
	// back as a finalized recording.
	requireNotFinalized(t, cfgOld.OutputPath)

	require.True(t, r.SubmitFrame(ctx, false))
	r.FinishEncode(ctx)
	require.Nil(t, r.current)
}

func TestEndToEndThroughRegistry(t *testing.T) {
	ctx := testCtx(t)
	r := New()
	outputPath := filepath.Join(t.TempDir(), "out.mp4")

	cfg, freeBuffers := startConfig(t, outputPath)
	defer freeBuffers()

	require.True(t, r.Start(ctx, cfg))
	for i := 0; i < 30; i++ {
		y, cb, cr := cfg.BufferA.Planes(cfg.Width, cfg.Height)
		if i%2 == 1 {
			y, cb, cr = cfg.BufferB.Planes(cfg.Width, cfg.Height)
		}
		for pos := range y {
			y[pos] = uint8((pos + i) & 0xFF)
			cb[pos] = 0x80
			cr[pos] = 0x80
		}
		require.True(t, r.SubmitFrame(ctx, i%2 == 1))
	}
	r.FinishEncode(ctx)
	require.Nil(t, r.current)

	stat, err := os.Stat(outputPath)
	require.NoError(t, err)
	require.NotZero(t, stat.Size())

	// Finishing again is a no-op.
	r.FinishEncode(ctx)
}
