package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
)

const encoderName = "libx264"

// fallbackTimeBase is used when the muxer does not report a negotiated
// stream time base after the header was written.
var fallbackTimeBase = astiav.NewRational(1, 90000)

type Config struct {
	OutputPath string
	Width      int
	Height     int
	FrameRate  astiav.Rational
	Profile    Profile
}

// Session drives one encode: raw frames in through two aliased slots,
// interleaved compressed packets out into a single-video-stream
// container on disk.
//
// All methods are synchronous and must be serialized by the caller; the
// session holds no locks (the registry is the serialized boundary).
type Session struct {
	*astikit.Closer

	frameA *AliasedFrame
	frameB *AliasedFrame

	frameIndex     uint64
	frameRate      astiav.Rational
	encoderContext *astiav.CodecContext
	output         *Output
	stream         *astiav.Stream
	streamTimeBase astiav.Rational

	finished bool
}

// New opens the container at cfg.OutputPath, binds an H.264 encoder to a
// fresh video stream and writes the header. On success the session takes
// ownership of frameA and frameB and closes them on Close; on error they
// stay with the caller and no partially initialized session is retained.
func New(
	ctx context.Context,
	cfg Config,
	frameA *AliasedFrame,
	frameB *AliasedFrame,
) (_ *Session, _err error) {
	logger.Debugf(ctx, "New(%#+v)", cfg)
	defer func() { logger.Debugf(ctx, "/New: %v", _err) }()

	if cfg.FrameRate.Num() <= 0 || cfg.FrameRate.Den() <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", cfg.FrameRate)
	}

	s := &Session{
		Closer:    astikit.NewCloser(),
		frameA:    frameA,
		frameB:    frameB,
		frameRate: cfg.FrameRate,
	}
	defer func() {
		if _err == nil {
			return
		}
		if err := s.Closer.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the half-initialized session: %v", err)
		}
	}()

	output, err := NewOutput(ctx, cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open the output '%s': %w", cfg.OutputPath, err)
	}
	s.output = output
	s.Closer.Add(func() {
		if err := output.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the output: %v", err)
		}
	})

	codec := astiav.FindEncoderByName(encoderName)
	if codec == nil {
		return nil, fmt.Errorf("encoder '%s' was not found", encoderName)
	}

	stream := output.FormatContext.NewStream(codec)
	if stream == nil {
		return nil, fmt.Errorf("unable to initialize an output stream")
	}
	s.stream = stream

	encoderContext := astiav.AllocCodecContext(codec)
	if encoderContext == nil {
		return nil, fmt.Errorf("unable to allocate a codec context for '%s'", encoderName)
	}
	s.encoderContext = encoderContext
	s.Closer.Add(encoderContext.Free)

	encoderContext.SetWidth(cfg.Width)
	encoderContext.SetHeight(cfg.Height)
	encoderContext.SetPixelFormat(PixelFormat)
	encoderContext.SetColorRange(astiav.ColorRangeJpeg)
	encoderContext.SetFramerate(cfg.FrameRate)
	encoderContext.SetTimeBase(invert(cfg.FrameRate))
	if output.NeedsGlobalHeader() {
		encoderContext.SetFlags(encoderContext.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	options, err := cfg.Profile.encoderOptions()
	if err != nil {
		return nil, err
	}
	defer options.Free()

	if err := encoderContext.Open(codec, options); err != nil {
		return nil, fmt.Errorf("unable to open the encoder with profile '%s': %w", cfg.Profile, err)
	}

	// Opening may change the negotiated parameters, so they are bound
	// onto the stream only afterwards.
	if err := encoderContext.ToCodecParameters(stream.CodecParameters()); err != nil {
		return nil, fmt.Errorf("unable to copy the codec parameters to the stream: %w", err)
	}
	stream.SetTimeBase(encoderContext.TimeBase())

	if err := output.FormatContext.WriteHeader(nil); err != nil {
		return nil, fmt.Errorf("unable to write the header: %w", err)
	}

	s.streamTimeBase = stream.TimeBase()
	if s.streamTimeBase.Num() == 0 || s.streamTimeBase.Den() == 0 {
		s.streamTimeBase = fallbackTimeBase
	}

	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(
			ctx,
			"resulting output stream: %s: %s: %s: %s",
			stream.CodecParameters().MediaType(),
			stream.CodecParameters().CodecID(),
			stream.TimeBase(),
			spew.Sdump(stream.CodecParameters()),
		)
	}

	// The frames are ours from here on; a failure above leaves them with
	// the caller.
	s.Closer.Add(frameA.Close)
	s.Closer.Add(frameB.Close)

	return s, nil
}

// FrameIndex returns the amount of successfully submitted frames.
func (s *Session) FrameIndex() uint64 {
	return s.frameIndex
}

// SubmitFrame encodes the frame currently in slot A (useSlotB == false)
// or slot B, stamped with the presentation timestamp derived from the
// frame index. The index advances only on full success; a failed
// submission is not retried and is reported to the caller to act on.
func (s *Session) SubmitFrame(
	ctx context.Context,
	useSlotB bool,
) (_err error) {
	logger.Tracef(ctx, "SubmitFrame(useSlotB: %t): frameIndex: %d", useSlotB, s.frameIndex)
	defer func() { logger.Tracef(ctx, "/SubmitFrame: %v", _err) }()

	if s.finished {
		return fmt.Errorf("the session is already finished")
	}

	frame := s.frameA
	if useSlotB {
		frame = s.frameB
	}
	frame.SetPts(ptsForIndex(s.frameIndex, s.frameRate, s.streamTimeBase))

	if err := s.encoderContext.SendFrame(frame.Frame); err != nil {
		return fmt.Errorf("unable to send frame #%d to the encoder: %w", s.frameIndex, err)
	}

	if err := s.drainPackets(ctx); err != nil {
		return err
	}

	s.frameIndex++
	return nil
}

// Finish sends end-of-stream to the encoder, drains the remaining
// packets and writes the container trailer. At most once per session.
// When an error is returned the output file may be incomplete or
// unplayable; nothing is rolled back.
func (s *Session) Finish(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Finish")
	defer func() { logger.Debugf(ctx, "/Finish: %v", _err) }()

	if s.finished {
		return fmt.Errorf("the session is already finished")
	}
	s.finished = true

	var result *multierror.Error
	if err := s.encoderContext.SendFrame(nil); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to send the end-of-stream signal: %w", err))
	} else if err := s.drainPackets(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to flush the encoder: %w", err))
	}

	if err := s.output.FormatContext.WriteTrailer(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to write the trailer: %w", err))
	}

	return result.ErrorOrNil()
}

// Close releases the session's resources: the aliased frames (their
// original plane pointers are restored before the frame objects are
// freed), the encoder context and the container IO. Close writes no
// trailer; call Finish first to get a playable file.
func (s *Session) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	return s.Closer.Close()
}

// drainPackets pulls every ready packet out of the encoder and writes it
// into the container. Both submit and finish drain fully before
// returning, otherwise packets would interleave out of order.
func (s *Session) drainPackets(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "drainPackets")
	defer func() { logger.Tracef(ctx, "/drainPackets: %v", _err) }()

	assert(ctx, s.stream != nil)
	for {
		packet := getPacket()
		err := s.encoderContext.ReceivePacket(packet)
		if err != nil {
			putPacket(packet)
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("unable to receive a packet from the encoder: %w", err)
		}
		logger.Tracef(
			ctx,
			"received a packet (pts:%d, dts:%d, size:%d)",
			packet.Pts(), packet.Dts(), packet.Size(),
		)

		packet.SetStreamIndex(s.stream.Index())
		err = s.output.FormatContext.WriteInterleavedFrame(packet)
		putPacket(packet)
		if err != nil {
			return fmt.Errorf("unable to write a packet: %w", err)
		}
	}
}

// ptsForIndex rescales a frame index from the 1/frameRate time base into
// the stream time base: an exact multiply-then-divide with rounding, not
// floating point, so the PTS sequence stays monotonic and in sync with
// the container.
func ptsForIndex(index uint64, frameRate, streamTimeBase astiav.Rational) int64 {
	return astiav.RescaleQ(int64(index), invert(frameRate), streamTimeBase)
}

func invert(r astiav.Rational) astiav.Rational {
	return astiav.NewRational(r.Den(), r.Num())
}
