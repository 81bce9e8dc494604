// Package atomic builds and commits atomic mode setting requests. KMS
// properties are addressed by name, the ids are resolved once per object
// when it is loaded.
package atomic

import (
	"fmt"

	"github.com/NeowayLabs/drmplanes/mode"
)

// PropertySource enumerates the properties of KMS objects.
type PropertySource interface {
	ObjectProperties(id, typ uint32) (*mode.ObjectProperties, error)
	Property(id uint32) (*mode.Property, error)
}

type property struct {
	name  string
	id    uint32
	flags uint32
	value uint64
}

// Object is a connector, CRTC or plane with its property table. The
// table is read only once loaded.
type Object struct {
	ID   uint32
	Type uint32

	props []property
}

// Load reads the properties of the object id of kind typ and resolves
// their names.
func Load(src PropertySource, id, typ uint32) (*Object, error) {
	op, err := src.ObjectProperties(id, typ)
	if err != nil {
		return nil, fmt.Errorf("get %s %d properties: %w", TypeName(typ), id, err)
	}
	obj := &Object{ID: id, Type: typ, props: make([]property, 0, len(op.Props))}
	for i, pid := range op.Props {
		p, err := src.Property(pid)
		if err != nil {
			return nil, fmt.Errorf("get %s %d property %d: %w", TypeName(typ), id, pid, err)
		}
		obj.props = append(obj.props, property{
			name:  p.Name,
			id:    pid,
			flags: p.Flags,
			value: op.Values[i],
		})
	}
	return obj, nil
}

func (o *Object) lookup(name string) (property, bool) {
	for _, p := range o.props {
		if p.name == name {
			return p, true
		}
	}
	return property{}, false
}

// PropertyID returns the id of the property called name.
func (o *Object) PropertyID(name string) (uint32, bool) {
	p, ok := o.lookup(name)
	return p.id, ok
}

// Value is the value the property had when the object was loaded.
func (o *Object) Value(name string) (uint64, bool) {
	p, ok := o.lookup(name)
	return p.value, ok
}

// Names lists the properties in the order the driver reported them.
func (o *Object) Names() []string {
	names := make([]string, len(o.props))
	for i, p := range o.props {
		names[i] = p.name
	}
	return names
}

func (o *Object) String() string {
	return fmt.Sprintf("%s %d", TypeName(o.Type), o.ID)
}

func TypeName(typ uint32) string {
	switch typ {
	case mode.ObjectCrtc:
		return "crtc"
	case mode.ObjectConnector:
		return "connector"
	case mode.ObjectPlane:
		return "plane"
	case mode.ObjectEncoder:
		return "encoder"
	}
	return fmt.Sprintf("object(0x%x)", typ)
}
