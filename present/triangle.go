package present

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/atomic"
	"github.com/NeowayLabs/drmplanes/buffer"
)

// Preparer is a producer able to start drawing a frame before the
// previous one is on screen.
type Preparer interface {
	Prepare() error
}

// TriangleLoop animates a single plane. The next frame is drawn while
// the previous commit is in flight, and each request is kept until the
// following commit succeeded.
type TriangleLoop struct {
	Pipeline  *atomic.Pipeline
	Registrar *buffer.Registrar
	Waiter    Waiter
	Plane     *Layer
	Frames    int
	Log       zerolog.Logger
}

func (l *TriangleLoop) Run(ctx context.Context) error {
	obj, err := l.Pipeline.LoadPlane(l.Plane.PlaneID)
	if err != nil {
		return fmt.Errorf("plane: %w", err)
	}
	plane := newPlaneBuffers(l.Plane, l.Log)

	var (
		prev     *atomic.Request
		inFlight bool
		modeSet  bool
	)
	defer func() {
		if prev != nil {
			prev.Release()
		}
	}()

	for frame := 1; l.Frames == 0 || frame <= l.Frames; frame++ {
		if ctx.Err() != nil {
			return nil
		}
		if p, ok := l.Plane.Content.(Preparer); ok {
			if err := p.Prepare(); err != nil {
				return fmt.Errorf("draw frame %d: %w", frame, err)
			}
		}

		if inFlight {
			err := l.Waiter.WaitFlip(ctx)
			if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
				l.Log.Info().Int("frame", frame).Msg("stopped")
				return nil
			}
			if err != nil {
				return err
			}
			inFlight = false
			plane.flipped()
		}

		if _, err := plane.produce(l.Plane.Content); err != nil {
			return err
		}

		flags := atomic.SteadyState
		if !modeSet {
			flags = atomic.FirstFrame | atomic.FlagPageFlipEvent
		}
		req := l.Pipeline.NewRequest()
		err := l.build(req, plane, obj, flags)
		if err == nil {
			err = l.Pipeline.Commit(req, flags, uint64(frame))
		}
		if err != nil {
			l.Log.Warn().Err(err).Int("frame", frame).Msg("commit failed, skipping frame")
			plane.drop()
			req.Release()
			continue
		}
		modeSet = true
		inFlight = true
		if err := plane.commit(); err != nil {
			l.Log.Warn().Err(err).Msg("buffer bookkeeping")
		}
		if prev != nil {
			prev.Release()
		}
		prev = req
	}
	return nil
}

func (l *TriangleLoop) build(req *atomic.Request, plane *planeBuffers, obj *atomic.Object, flags atomic.Flags) error {
	if err := l.Pipeline.ModeSet(req, flags); err != nil {
		return err
	}
	fb, err := l.Registrar.GetOrCreate(plane.current())
	if err != nil {
		return err
	}
	return req.SetPlaneGeometry(obj, l.Pipeline.Crtc.ID, fb.ID, l.Plane.Src, l.Plane.Dst)
}
