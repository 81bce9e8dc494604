package atomic

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/display"
	"github.com/NeowayLabs/drmplanes/mode"
)

// Flags of a commit.
type Flags uint32

const (
	FlagPageFlipEvent Flags = mode.PageFlipEvent
	FlagTestOnly      Flags = mode.AtomicTestOnly
	FlagNonblock      Flags = mode.AtomicNonblock
	FlagAllowModeset  Flags = mode.AtomicAllowModeset

	// FirstFrame blocks until the display runs the new state, mode set
	// included.
	FirstFrame = FlagAllowModeset
	// SteadyState queues the commit and reports completion with a flip
	// event.
	SteadyState = FlagNonblock | FlagPageFlipEvent
)

// Device is the part of mode.Card used by atomic commits.
type Device interface {
	PropertySource
	BlobDestroyer
	CreatePropertyBlob(data []byte) (uint32, error)
	Atomic(flags uint32, set *mode.AtomicSet, userData uint64) error
}

// Pipeline commits requests for one connector and CRTC.
type Pipeline struct {
	Connector *Object
	Crtc      *Object
	Mode      mode.Info

	dev Device
	log zerolog.Logger
}

// NewPipeline loads the properties of the connector and CRTC picked by
// sel.
func NewPipeline(dev Device, sel *display.Selection, logger zerolog.Logger) (*Pipeline, error) {
	conn, err := Load(dev, sel.ConnectorID(), mode.ObjectConnector)
	if err != nil {
		return nil, err
	}
	crtc, err := Load(dev, sel.CrtcID, mode.ObjectCrtc)
	if err != nil {
		return nil, err
	}
	logger.Debug().Strs("properties", conn.Names()).Uint32("connector", conn.ID).Msg("connector loaded")
	logger.Debug().Strs("properties", crtc.Names()).Uint32("crtc", crtc.ID).Msg("crtc loaded")
	return &Pipeline{
		Connector: conn,
		Crtc:      crtc,
		Mode:      sel.Mode,
		dev:       dev,
		log:       logger,
	}, nil
}

// LoadPlane loads the properties of plane id.
func (p *Pipeline) LoadPlane(id uint32) (*Object, error) {
	plane, err := Load(p.dev, id, mode.ObjectPlane)
	if err != nil {
		return nil, err
	}
	typ, _ := plane.Value("type")
	p.log.Debug().Uint32("plane", id).Uint64("type", typ).Strs("properties", plane.Names()).Msg("plane loaded")
	return plane, nil
}

// NewRequest returns an empty request bound to the pipeline device.
func (p *Pipeline) NewRequest() *Request {
	return NewRequest(p.dev)
}

// ModeSet adds the mode set of the pipeline to req when flags allow a
// mode set: the connector is routed to the CRTC, which is activated with
// the pipeline mode. On failure req is left as it was.
func (p *Pipeline) ModeSet(req *Request, flags Flags) error {
	if flags&FlagAllowModeset == 0 {
		return nil
	}
	if req.committed {
		return ErrRequestCommitted
	}

	connCrtc, ok := p.Connector.PropertyID(PropCrtcID)
	if !ok {
		return fmt.Errorf("%w: %s has no %s", ErrModeSetFailed, p.Connector, PropCrtcID)
	}
	modeID, ok := p.Crtc.PropertyID(PropModeID)
	if !ok {
		return fmt.Errorf("%w: %s has no %s", ErrModeSetFailed, p.Crtc, PropModeID)
	}
	active, ok := p.Crtc.PropertyID(PropActive)
	if !ok {
		return fmt.Errorf("%w: %s has no %s", ErrModeSetFailed, p.Crtc, PropActive)
	}

	blob, err := p.dev.CreatePropertyBlob(p.Mode.Bytes())
	if err != nil {
		return fmt.Errorf("%w: create mode blob: %w", ErrModeSetFailed, err)
	}

	req.blobs = append(req.blobs, blob)
	req.entries = append(req.entries,
		entry{object: p.Connector.ID, prop: connCrtc, value: uint64(p.Crtc.ID)},
		entry{object: p.Crtc.ID, prop: modeID, value: uint64(blob)},
		entry{object: p.Crtc.ID, prop: active, value: 1},
	)
	p.log.Debug().Uint32("blob", blob).Str("mode", p.Mode.String()).Msg("mode set added")
	return nil
}

// Commit submits req in one transaction. Assignments are grouped per
// object and the last value given to a property wins. A rejected commit
// leaves req uncommitted so the caller can release it and skip the
// frame. Test only commits never consume the request.
func (p *Pipeline) Commit(req *Request, flags Flags, userData uint64) error {
	if req.committed {
		return ErrRequestCommitted
	}
	set := flatten(req.entries)
	if err := p.dev.Atomic(uint32(flags), set, userData); err != nil {
		return fmt.Errorf("atomic commit (flags 0x%x, %d objects, %d properties): %w",
			uint32(flags), len(set.Objects), len(set.Props), err)
	}
	if flags&FlagTestOnly == 0 {
		req.committed = true
	}
	p.log.Debug().
		Uint32("flags", uint32(flags)).
		Int("objects", len(set.Objects)).
		Int("properties", len(set.Props)).
		Msg("atomic commit")
	return nil
}

// flatten groups entries by object in first seen order. Within an object
// properties keep their first seen position and take their last value.
func flatten(entries []entry) *mode.AtomicSet {
	type key struct{ object, prop uint32 }

	var (
		objects []uint32
		props   = map[uint32][]uint32{}
		values  = map[key]uint64{}
	)
	for _, e := range entries {
		k := key{e.object, e.prop}
		if _, seen := props[e.object]; !seen {
			objects = append(objects, e.object)
		}
		if _, seen := values[k]; !seen {
			props[e.object] = append(props[e.object], e.prop)
		}
		values[k] = e.value
	}

	set := &mode.AtomicSet{}
	for _, obj := range objects {
		set.Objects = append(set.Objects, obj)
		set.Counts = append(set.Counts, uint32(len(props[obj])))
		for _, prop := range props[obj] {
			set.Props = append(set.Props, prop)
			set.Values = append(set.Values, values[key{obj, prop}])
		}
	}
	return set
}
