package present

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/atomic"
	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/display"
)

// AtomicLoop swaps the primary and overlay planes with one atomic commit
// per frame. The first commit blocks and sets the mode, the following
// ones are queued and complete with a flip event.
type AtomicLoop struct {
	Pipeline  *atomic.Pipeline
	Registrar *buffer.Registrar
	Waiter    Waiter
	Primary   *Layer
	Overlay   *Layer
	Schedule  Schedule
	Frames    int
	Log       zerolog.Logger
}

type atomicPlane struct {
	*planeBuffers
	obj *atomic.Object
}

func (l *AtomicLoop) Run(ctx context.Context) error {
	primaryObj, err := l.Pipeline.LoadPlane(l.Primary.PlaneID)
	if err != nil {
		return fmt.Errorf("primary plane: %w", err)
	}
	overlayObj, err := l.Pipeline.LoadPlane(l.Overlay.PlaneID)
	if err != nil {
		return fmt.Errorf("overlay plane: %w", err)
	}
	primary := atomicPlane{newPlaneBuffers(l.Primary, l.Log), primaryObj}
	overlay := atomicPlane{newPlaneBuffers(l.Overlay, l.Log), overlayObj}

	moves := 0
	for i := 1; l.Frames == 0 || i <= l.Frames; i++ {
		if ctx.Err() != nil {
			return nil
		}
		first := i == 1
		flags := atomic.SteadyState
		if first {
			flags = atomic.FirstFrame
		}

		req := l.Pipeline.NewRequest()
		disable, err := l.build(req, l.Schedule.At(i), primary, overlay, &moves)
		if err == nil && first {
			err = l.Pipeline.ModeSet(req, flags)
		}
		if err == nil {
			err = l.Pipeline.Commit(req, flags, uint64(i))
		}
		if rerr := req.Release(); rerr != nil {
			l.Log.Warn().Err(rerr).Msg("failed to release request")
		}
		if err != nil {
			primary.drop()
			overlay.drop()
			if first {
				return fmt.Errorf("first frame: %w", err)
			}
			l.Log.Warn().Err(err).Int("frame", i).Msg("commit failed, skipping frame")
			continue
		}

		for _, p := range []atomicPlane{primary, overlay} {
			if err := p.commit(); err != nil {
				l.Log.Warn().Err(err).Msg("buffer bookkeeping")
			}
		}
		for _, p := range disable {
			p.disable()
		}

		if flags&atomic.FlagPageFlipEvent != 0 {
			err := l.Waiter.WaitFlip(ctx)
			if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
				l.Log.Info().Int("frame", i).Msg("stopped")
				return nil
			}
			if err != nil {
				return err
			}
		}
		primary.flipped()
		overlay.flipped()
	}
	return nil
}

// build fills req for one step. The planes disabled by req are returned
// so they can be marked once the commit succeeds. A plane that should be
// visible but has no buffer, because the commit of its transition was
// rejected, goes through the transition again.
func (l *AtomicLoop) build(req *atomic.Request, step Step, primary, overlay atomicPlane, moves *int) ([]atomicPlane, error) {
	crtc := l.Pipeline.Crtc.ID
	var disable []atomicPlane

	overlayOn := step.OverlayOn || (step.OverlayVisible && overlay.current() == nil)
	primaryOn := step.PrimaryOn || (!step.OverlayVisible && primary.current() == nil)

	if overlayOn {
		if err := req.DisablePlane(primary.obj); err != nil {
			return nil, err
		}
		disable = append(disable, primary)
		if _, err := overlay.produce(l.Overlay.Content); err != nil {
			return nil, err
		}
	}

	if primaryOn {
		if _, err := primary.produce(l.Primary.Content); err != nil {
			return nil, err
		}
		if err := req.DisablePlane(overlay.obj); err != nil {
			return nil, err
		}
		disable = append(disable, overlay)
	}

	if step.OverlayVisible {
		dst := l.Overlay.Dst
		dst.X = int32(uint32(*moves*10) % max(l.Primary.Dst.Width, 1))
		*moves++
		if err := l.setPlane(req, overlay, crtc, dst); err != nil {
			return nil, err
		}
	} else if err := l.setPlane(req, primary, crtc, l.Primary.Dst); err != nil {
		return nil, err
	}
	return disable, nil
}

func (l *AtomicLoop) setPlane(req *atomic.Request, p atomicPlane, crtc uint32, dst display.Rect) error {
	bo := p.current()
	if bo == nil {
		return fmt.Errorf("%s: no buffer to show", p.layer.Name)
	}
	fb, err := l.Registrar.GetOrCreate(bo)
	if err != nil {
		return err
	}
	return req.SetPlaneGeometry(p.obj, crtc, fb.ID, p.layer.Src, dst)
}
