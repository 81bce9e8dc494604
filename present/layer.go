package present

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/mode"
	"github.com/NeowayLabs/drmplanes/render"
)

// Layer is a plane fed by a surface.
type Layer struct {
	Name    string
	PlaneID uint32
	Surface *buffer.Surface
	// Content produces the picture of the plane.
	Content render.Producer
	// Blank produces a black frame. Only the legacy fill-black strategy
	// uses it.
	Blank render.Producer
	// Src is the shown part of the buffer, Dst its place on the CRTC.
	Src, Dst display.Rect
}

func (l *Layer) geometry(dst display.Rect) mode.PlaneGeometry {
	return mode.PlaneGeometry{
		CrtcX: dst.X,
		CrtcY: dst.Y,
		CrtcW: dst.Width,
		CrtcH: dst.Height,
		SrcX:  uint32(max(l.Src.X, 0)),
		SrcY:  uint32(max(l.Src.Y, 0)),
		SrcW:  l.Src.Width,
		SrcH:  l.Src.Height,
	}
}

// planeBuffers follows the buffers of one layer across frames:
//
//	stage   a locked buffer goes into the next commit
//	commit  the commit succeeded, the staged buffer is scanned out
//	drop    the commit failed, the staged buffer goes back
//	disable the plane was turned off by a commit
//	flipped the display finished the commit, superseded buffers go back
//
// A scanned out buffer is released only after a later commit replaced it
// and that commit completed.
type planeBuffers struct {
	layer   *Layer
	pending *buffer.Object
	retired []*buffer.Object
	log     zerolog.Logger
}

func newPlaneBuffers(l *Layer, logger zerolog.Logger) *planeBuffers {
	return &planeBuffers{layer: l, log: logger.With().Str("plane", l.Name).Logger()}
}

func (p *planeBuffers) stage(bo *buffer.Object) error {
	if p.pending != nil {
		return fmt.Errorf("%s: %w: a buffer is already staged", p.layer.Name, buffer.ErrBufferBusy)
	}
	p.pending = bo
	return nil
}

// produce stages a new buffer from prod.
func (p *planeBuffers) produce(prod render.Producer) (*buffer.Object, error) {
	bo, err := prod.Produce()
	if err != nil {
		return nil, fmt.Errorf("%s: produce frame: %w", p.layer.Name, err)
	}
	if err := p.stage(bo); err != nil {
		return nil, errors.Join(err, p.layer.Surface.Release(bo))
	}
	return bo, nil
}

func (p *planeBuffers) commit() error {
	if p.pending == nil {
		return nil
	}
	bo := p.pending
	p.pending = nil
	prev, err := p.layer.Surface.Scanout(bo)
	if err != nil {
		return err
	}
	if prev != nil {
		p.retired = append(p.retired, prev)
	}
	return nil
}

func (p *planeBuffers) drop() {
	if p.pending == nil {
		return
	}
	if err := p.layer.Surface.Release(p.pending); err != nil {
		p.log.Warn().Err(err).Msg("failed to release dropped buffer")
	}
	p.pending = nil
}

func (p *planeBuffers) disable() {
	if prev := p.layer.Surface.Retire(); prev != nil {
		p.retired = append(p.retired, prev)
	}
}

func (p *planeBuffers) flipped() {
	for _, bo := range p.retired {
		if err := p.layer.Surface.Release(bo); err != nil {
			p.log.Warn().Err(err).Msg("failed to release buffer")
		}
	}
	p.retired = p.retired[:0]
}

// current is the buffer the next commit shows: the staged one, else the
// one on screen.
func (p *planeBuffers) current() *buffer.Object {
	if p.pending != nil {
		return p.pending
	}
	return p.layer.Surface.Front()
}
