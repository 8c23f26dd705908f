// Package framesink is the host-facing boundary of the encode bridge: a
// process-wide single-slot session registry with three entry points
// (Start, SubmitFrame, FinishEncode) mirroring the host's recording
// loop.
package framesink

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/framesink/pkg/session"
	"github.com/xaionaro-go/xsync"
)

// StartConfig is everything the host hands over when it opens a session:
// where to write, the fixed geometry and rate, the two caller-owned
// pixel-buffer sets and the quality profile.
type StartConfig struct {
	OutputPath string
	Width      int
	Height     int
	FPS        int
	BufferA    session.PixelBuffer
	BufferB    session.PixelBuffer
	Profile    session.Profile
}

// Registry is the single-slot session holder behind the host boundary.
// Its three entry points are serialized with a mutex here, at the
// boundary; the session itself stays lock-free.
//
// Lifecycle: Empty -> Open (Start) -> Empty (FinishEncode, always, even
// when finalization fails).
type Registry struct {
	locker  xsync.Mutex
	current *session.Session
}

func New() *Registry {
	return &Registry{}
}

// Default is the process-wide registry the package-level entry points
// forward to.
var Default = New()

func Start(ctx context.Context, cfg StartConfig) bool {
	return Default.Start(ctx, cfg)
}

func SubmitFrame(ctx context.Context, useBufferB bool) bool {
	return Default.SubmitFrame(ctx, useBufferB)
}

func FinishEncode(ctx context.Context) {
	Default.FinishEncode(ctx)
}

// Start opens a new session, replacing any existing one. It returns
// false on any failure and leaves the registry Empty.
func (r *Registry) Start(
	ctx context.Context,
	cfg StartConfig,
) (_ret bool) {
	logger.Debugf(ctx, "Start(%#+v)", cfg)
	defer func() { logger.Debugf(ctx, "/Start: %t", _ret) }()

	r.locker.Do(ctx, func() {
		_ret = r.start(ctx, cfg)
	})
	return
}

func (r *Registry) start(ctx context.Context, cfg StartConfig) bool {
	if r.current != nil {
		// The dropped session gets no trailer; its output file stays
		// unplayable.
		logger.Errorf(ctx, "starting a new session while the previous one was never finished; dropping the unfinished session")
		if err := r.current.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the dropped session: %v", err)
		}
		r.current = nil
	}

	frameA, err := session.NewAliasedFrame(cfg.Width, cfg.Height, cfg.BufferA)
	if err != nil {
		logger.Errorf(ctx, "unable to wrap buffer A: %v", err)
		return false
	}
	frameB, err := session.NewAliasedFrame(cfg.Width, cfg.Height, cfg.BufferB)
	if err != nil {
		frameA.Close()
		logger.Errorf(ctx, "unable to wrap buffer B: %v", err)
		return false
	}

	s, err := session.New(ctx, session.Config{
		OutputPath: cfg.OutputPath,
		Width:      cfg.Width,
		Height:     cfg.Height,
		FrameRate:  astiav.NewRational(cfg.FPS, 1),
		Profile:    cfg.Profile,
	}, frameA, frameB)
	if err != nil {
		frameA.Close()
		frameB.Close()
		logger.Errorf(ctx, "unable to open a session to '%s': %v", cfg.OutputPath, err)
		return false
	}

	r.current = s
	return true
}

// SubmitFrame encodes one frame from the indicated buffer slot. With no
// open session it is a no-op reporting success, so the host's control
// loop does not need to track whether Start already happened.
func (r *Registry) SubmitFrame(
	ctx context.Context,
	useBufferB bool,
) (_ret bool) {
	logger.Tracef(ctx, "SubmitFrame(useBufferB: %t)", useBufferB)
	defer func() { logger.Tracef(ctx, "/SubmitFrame: %t", _ret) }()

	r.locker.Do(ctx, func() {
		_ret = r.submitFrame(ctx, useBufferB)
	})
	return
}

func (r *Registry) submitFrame(ctx context.Context, useBufferB bool) bool {
	if r.current == nil {
		logger.Debugf(ctx, "no open session, ignoring the frame")
		return true
	}
	if err := r.current.SubmitFrame(ctx, useBufferB); err != nil {
		logger.Errorf(ctx, "unable to encode the frame: %v", err)
		return false
	}
	return true
}

// FinishEncode flushes and finalizes the current session, if any, and
// clears the slot unconditionally. Finalization errors are logged only,
// so the caller cannot distinguish a corrupt output from a clean one
// through this call; a host that needs that signal should use
// session.Session directly.
func (r *Registry) FinishEncode(ctx context.Context) {
	logger.Debugf(ctx, "FinishEncode")
	defer logger.Debugf(ctx, "/FinishEncode")

	r.locker.Do(ctx, func() {
		r.finishEncode(ctx)
	})
}

func (r *Registry) finishEncode(ctx context.Context) {
	if r.current == nil {
		logger.Debugf(ctx, "no open session, nothing to finish")
		return
	}
	if err := r.current.Finish(ctx); err != nil {
		logger.Errorf(ctx, "unable to finalize the output: %v", err)
	}
	if err := r.current.Close(ctx); err != nil {
		logger.Errorf(ctx, "unable to close the session: %v", err)
	}
	r.current = nil
}
