package commands

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/asticode/go-astiav"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/framesink/pkg/avlogger"
	"github.com/xaionaro-go/framesink/pkg/framesink"
	"github.com/xaionaro-go/framesink/pkg/session"
	"github.com/xaionaro-go/observability"
)

var (
	// Access these variables only from a main package:

	Root = &cobra.Command{
		Use: os.Args[0],
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			l := logger.FromCtx(ctx).WithLevel(LoggerLevel)
			ctx = logger.CtxWithLogger(ctx, l)
			cmd.SetContext(ctx)
			logger.Debugf(ctx, "log-level: %v", LoggerLevel)

			astiav.SetLogLevel(avlogger.LevelToAstiav(LoggerLevel))
			astiav.SetLogCallback(avlogger.Callback(l))

			netPprofAddr, err := cmd.Flags().GetString("go-net-pprof-addr")
			if err != nil {
				l.Error("unable to get the value of the flag 'go-net-pprof-addr': %v", err)
			}
			if netPprofAddr != "" {
				observability.Go(ctx, func(ctx context.Context) {
					l.Infof("starting to listen for net/pprof requests at '%s'", netPprofAddr)
					l.Error(http.ListenAndServe(netPprofAddr, nil))
				})
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			logger.Debug(ctx, "end")
		},
	}

	Encode = &cobra.Command{
		Use:   "encode OUTPUT",
		Short: "render a test pattern and encode it into OUTPUT",
		Args:  cobra.ExactArgs(1),
		Run:   encode,
	}

	LoggerLevel = logger.LevelWarning
)

func init() {
	Root.AddCommand(Encode)

	Root.PersistentFlags().Var(&LoggerLevel, "log-level", "")
	Root.PersistentFlags().String("go-net-pprof-addr", "", "address to listen to for net/pprof requests")

	Encode.Flags().Int("width", 1280, "frame width in pixels")
	Encode.Flags().Int("height", 720, "frame height in pixels")
	Encode.Flags().Int("fps", 30, "frame rate")
	Encode.Flags().Int("frames", 300, "amount of frames to encode")
	Encode.Flags().String("profile", string(session.ProfileStandard), "encoding profile: standard or proxy")
}

func encode(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	outputPath := args[0]

	width, err := cmd.Flags().GetInt("width")
	assertNoError(ctx, err)
	height, err := cmd.Flags().GetInt("height")
	assertNoError(ctx, err)
	fps, err := cmd.Flags().GetInt("fps")
	assertNoError(ctx, err)
	frames, err := cmd.Flags().GetInt("frames")
	assertNoError(ctx, err)
	profileString, err := cmd.Flags().GetString("profile")
	assertNoError(ctx, err)

	profile, err := session.ParseProfile(profileString)
	assertNoError(ctx, err)

	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	observability.Go(ctx, func(ctx context.Context) {
		select {
		case sig := <-signalChan:
			logger.Infof(ctx, "received signal %v, stopping", sig)
			cancelFn()
		case <-ctx.Done():
		}
	})

	bufferA := session.AllocPixelBuffer(width, height)
	defer bufferA.Free()
	bufferB := session.AllocPixelBuffer(width, height)
	defer bufferB.Free()
	buffers := [2]session.PixelBuffer{bufferA, bufferB}

	if !framesink.Start(ctx, framesink.StartConfig{
		OutputPath: outputPath,
		Width:      width,
		Height:     height,
		FPS:        fps,
		BufferA:    bufferA,
		BufferB:    bufferB,
		Profile:    profile,
	}) {
		fatal(ctx, "unable to start an encoding session to '%s'", outputPath)
	}

	for frameIdx := 0; frameIdx < frames && ctx.Err() == nil; frameIdx++ {
		slot := frameIdx % 2
		renderTestPattern(buffers[slot], width, height, frameIdx)
		if !framesink.SubmitFrame(ctx, slot == 1) {
			fatal(ctx, "unable to encode frame #%d", frameIdx)
		}
	}

	framesink.FinishEncode(ctx)

	stat, err := os.Stat(outputPath)
	assertNoError(ctx, err)
	logger.Infof(
		ctx,
		"wrote %s (%.2f seconds of video) into '%s'",
		humanize.IBytes(uint64(stat.Size())),
		float64(frames)/float64(fps),
		outputPath,
	)
}

// renderTestPattern fills the buffer with a moving diagonal gradient, so
// that the encoder has something non-trivial to compress and the result
// is recognizable when played back.
func renderTestPattern(
	buf session.PixelBuffer,
	width, height int,
	frameIdx int,
) {
	y, cb, cr := buf.Planes(width, height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			pos := row*width + col
			y[pos] = uint8((row + col + frameIdx*4) & 0xFF)
			cb[pos] = uint8((col + frameIdx) & 0xFF)
			cr[pos] = uint8((row - frameIdx) & 0xFF)
		}
	}
}
