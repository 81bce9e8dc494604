package present

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/mode"
	"github.com/NeowayLabs/drmplanes/render"
)

// PrimaryOff is how the legacy loop hides the primary plane while the
// overlay is shown.
type PrimaryOff int

const (
	// DisablePrimary turns the plane off with SetPlane.
	DisablePrimary PrimaryOff = iota
	// FillBlack keeps the plane on and shows a black frame. Some drivers
	// reject disabling the primary plane.
	FillBlack
)

func (p PrimaryOff) String() string {
	switch p {
	case DisablePrimary:
		return "disable"
	case FillBlack:
		return "fill-black"
	}
	return fmt.Sprintf("PrimaryOff(%d)", int(p))
}

// LegacyDevice is the part of mode.Card used by the legacy loop.
type LegacyDevice interface {
	SetCrtc(crtcid, bufferid, x, y uint32, connectors []uint32, info *mode.Info) error
	SetPlane(planeid, crtcid, bufferid, flags uint32, g mode.PlaneGeometry) error
	PageFlip(crtcid, bufferid, flags uint32, userData uint64) error
}

// LegacyLoop swaps the primary and overlay planes with SetPlane and
// paces frames with PageFlip.
type LegacyLoop struct {
	Device    LegacyDevice
	Registrar *buffer.Registrar
	Waiter    Waiter
	Display   *display.Selection
	Primary   *Layer
	Overlay   *Layer
	Schedule  Schedule
	Off       PrimaryOff
	// Frames stops the loop after that many frames, zero runs until
	// interrupted.
	Frames int
	Log    zerolog.Logger
}

func (l *LegacyLoop) fb(bo *buffer.Object) (uint32, error) {
	fb, err := l.Registrar.GetOrCreate(bo)
	if err != nil {
		return 0, err
	}
	return fb.ID, nil
}

// Run sets the mode with the primary plane content and loops until ctx
// ends, the user interrupts or Frames is reached.
func (l *LegacyLoop) Run(ctx context.Context) error {
	if l.Off == FillBlack && l.Primary.Blank == nil {
		return errors.New("fill-black needs a blank producer on the primary layer")
	}
	primary := newPlaneBuffers(l.Primary, l.Log)
	overlay := newPlaneBuffers(l.Overlay, l.Log)
	crtc := l.Display.CrtcID

	bo, err := primary.produce(l.Primary.Content)
	if err != nil {
		return err
	}
	fb, err := l.fb(bo)
	if err != nil {
		primary.drop()
		return err
	}
	if err := l.Device.SetCrtc(crtc, fb, 0, 0, []uint32{l.Display.ConnectorID()}, &l.Display.Mode); err != nil {
		primary.drop()
		return fmt.Errorf("set crtc %d: %w", crtc, err)
	}
	if err := primary.commit(); err != nil {
		return err
	}
	if err := l.Device.SetPlane(l.Primary.PlaneID, crtc, fb, 0, l.Primary.geometry(l.Primary.Dst)); err != nil {
		return fmt.Errorf("set primary plane %d: %w", l.Primary.PlaneID, err)
	}
	l.Log.Info().
		Uint32("crtc", crtc).
		Str("mode", l.Display.Mode.String()).
		Stringer("primary_off", l.Off).
		Msg("mode set")

	// the schedule moves on only once a flip completed, so a rejected
	// flip repeats its step
	on := planesOn{primary: true}
	moves, pos := 0, 1
	for i := 1; l.Frames == 0 || i <= l.Frames; i++ {
		if ctx.Err() != nil {
			return nil
		}
		l.frame(l.Schedule.At(pos), primary, overlay, &on, &moves)

		front := l.Primary.Surface.Front()
		if front == nil {
			return errors.New("primary plane has no buffer to flip")
		}
		fb, err := l.fb(front)
		if err != nil {
			return err
		}
		if err := l.Device.PageFlip(crtc, fb, mode.PageFlipEvent, 0); err != nil {
			l.Log.Warn().Err(err).Int("frame", i).Int("step", pos).Msg("page flip failed, repeating step")
			continue
		}
		err = l.Waiter.WaitFlip(ctx)
		if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
			l.Log.Info().Int("frame", i).Msg("stopped")
			return nil
		}
		if err != nil {
			return err
		}
		primary.flipped()
		overlay.flipped()
		pos++
	}
	return nil
}

// planesOn is what the legacy calls left enabled. The primary counts as
// off while it is disabled or filled black.
type planesOn struct {
	primary, overlay bool
}

// frame issues the SetPlane calls of one step. A plane that failed to
// change is changed again on the next frame of the same phase. Failures
// drop the update of the plane involved.
func (l *LegacyLoop) frame(step Step, primary, overlay *planeBuffers, on *planesOn, moves *int) {
	if step.OverlayVisible {
		if !on.overlay {
			if _, err := overlay.produce(l.Overlay.Content); err != nil {
				l.Log.Warn().Err(err).Msg("overlay frame dropped")
			}
		}
		if on.primary {
			on.primary = !l.hidePrimary(primary)
		}
		dst := l.Overlay.Dst
		dst.X = int32(uint32(*moves*10) % max(l.Primary.Dst.Width, 1))
		*moves++
		on.overlay = l.place(overlay, dst) || on.overlay
		return
	}

	if !on.primary {
		on.primary = l.show(primary, l.Primary.Content, l.Primary.Dst)
	}
	if on.overlay {
		if err := l.Device.SetPlane(l.Overlay.PlaneID, 0, 0, 0, mode.PlaneGeometry{}); err != nil {
			l.Log.Warn().Err(err).Msg("failed to disable overlay plane")
			return
		}
		overlay.disable()
		on.overlay = false
	}
}

func (l *LegacyLoop) hidePrimary(primary *planeBuffers) bool {
	if l.Off == FillBlack {
		return l.show(primary, l.Primary.Blank, l.Primary.Dst)
	}
	if err := l.Device.SetPlane(l.Primary.PlaneID, 0, 0, 0, mode.PlaneGeometry{}); err != nil {
		l.Log.Warn().Err(err).Msg("failed to disable primary plane")
		return false
	}
	return true
}

// show puts a new frame from prod on the plane.
func (l *LegacyLoop) show(p *planeBuffers, prod render.Producer, dst display.Rect) bool {
	if _, err := p.produce(prod); err != nil {
		l.Log.Warn().Err(err).Msg("frame dropped")
		return false
	}
	return l.place(p, dst)
}

// place shows the current buffer of p at dst.
func (l *LegacyLoop) place(p *planeBuffers, dst display.Rect) bool {
	bo := p.current()
	if bo == nil {
		return false
	}
	fb, err := l.fb(bo)
	if err == nil {
		err = l.Device.SetPlane(p.layer.PlaneID, l.Display.CrtcID, fb, 0, p.layer.geometry(dst))
	}
	if err != nil {
		l.Log.Warn().Err(err).Uint32("plane", p.layer.PlaneID).Msg("set plane failed, dropping update")
		p.drop()
		return false
	}
	if err := p.commit(); err != nil {
		l.Log.Warn().Err(err).Msg("buffer bookkeeping")
	}
	return true
}
