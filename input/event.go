// Package input reads Linux evdev devices and turns their event stream
// into key, pointer and touch callbacks.
package input

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event types, see linux/input-event-codes.h
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvRel = 0x02
	EvAbs = 0x03
)

const SynReport = 0x00

const (
	RelX = 0x00
	RelY = 0x01
)

const (
	AbsX            = 0x00
	AbsY            = 0x01
	AbsMTSlot       = 0x2f
	AbsMTPositionX  = 0x35
	AbsMTPositionY  = 0x36
	AbsMTTrackingID = 0x39
)

const (
	BtnLeft   = 0x110
	BtnRight  = 0x111
	BtnMiddle = 0x112
	BtnTouch  = 0x14a
)

// EventSize is the size of struct input_event for the running kernel
// ABI: a timeval followed by type, code and value.
var EventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

var ErrEventSize = errors.New("unsupported input event size")

// Event is one decoded input_event. The timestamp is dropped.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Decode splits buf into events of size bytes and returns the bytes of a
// trailing partial event.
func Decode(buf []byte, size int) ([]Event, []byte, error) {
	if size != 16 && size != 24 {
		return nil, buf, fmt.Errorf("%w: %d", ErrEventSize, size)
	}
	var events []Event
	for len(buf) >= size {
		ev := buf[size-8 : size]
		events = append(events, Event{
			Type:  binary.NativeEndian.Uint16(ev[0:]),
			Code:  binary.NativeEndian.Uint16(ev[2:]),
			Value: int32(binary.NativeEndian.Uint32(ev[4:])),
		})
		buf = buf[size:]
	}
	return events, buf, nil
}

// KeyState is the value of a key event.
type KeyState int32

const (
	Released KeyState = iota
	Pressed
	Repeated
	// Moved marks pointer events without a button change.
	Moved
)

func (s KeyState) String() string {
	switch s {
	case Released:
		return "released"
	case Pressed:
		return "pressed"
	case Repeated:
		return "repeated"
	case Moved:
		return "moved"
	}
	return fmt.Sprintf("keystate(%d)", int32(s))
}

// Pointer is a mouse or single touch report.
type Pointer struct {
	X, Y   int
	Button uint16
	State  KeyState
}

// TouchPoint is one contact of a multi touch report.
type TouchPoint struct {
	Slot int
	ID   int32
	X, Y int
}

type Handlers struct {
	Key     func(code uint16, state KeyState)
	Pointer func(p Pointer)
	Touch   func(points []TouchPoint)
}

// Dispatcher accumulates events until a SYN_REPORT and calls the
// handlers with the resulting state. Relative motion is clamped to
// Width x Height when both are set.
type Dispatcher struct {
	Handlers
	Width, Height int

	x, y    int
	moved   bool
	buttons []Pointer

	slot       int
	touches    map[int]*TouchPoint
	touchDirty bool
}

func NewDispatcher(h Handlers, width, height int) *Dispatcher {
	return &Dispatcher{Handlers: h, Width: width, Height: height, touches: map[int]*TouchPoint{}}
}

// Position is the current pointer position.
func (d *Dispatcher) Position() (int, int) { return d.x, d.y }

func (d *Dispatcher) Handle(ev Event) {
	switch ev.Type {
	case EvKey:
		d.key(ev.Code, KeyState(ev.Value))
	case EvRel:
		switch ev.Code {
		case RelX:
			d.x = d.clamp(d.x+int(ev.Value), d.Width)
			d.moved = true
		case RelY:
			d.y = d.clamp(d.y+int(ev.Value), d.Height)
			d.moved = true
		}
	case EvAbs:
		d.abs(ev.Code, ev.Value)
	case EvSyn:
		if ev.Code == SynReport {
			d.report()
		}
	}
}

func (d *Dispatcher) key(code uint16, state KeyState) {
	switch code {
	case BtnLeft, BtnRight, BtnMiddle:
		d.buttons = append(d.buttons, Pointer{Button: code, State: state})
	case BtnTouch:
		// contacts are reported through the position events
	default:
		if d.Key != nil {
			d.Key(code, state)
		}
	}
}

func (d *Dispatcher) abs(code uint16, value int32) {
	switch code {
	case AbsX:
		d.x = int(value)
		d.moved = true
	case AbsY:
		d.y = int(value)
		d.moved = true
	case AbsMTSlot:
		d.slot = int(value)
	case AbsMTTrackingID:
		if value < 0 {
			delete(d.touches, d.slot)
		} else {
			d.touches[d.slot] = &TouchPoint{Slot: d.slot, ID: value}
		}
		d.touchDirty = true
	case AbsMTPositionX, AbsMTPositionY:
		tp, ok := d.touches[d.slot]
		if !ok {
			return
		}
		if code == AbsMTPositionX {
			tp.X = int(value)
		} else {
			tp.Y = int(value)
		}
		d.touchDirty = true
	}
}

func (d *Dispatcher) report() {
	if d.Pointer != nil {
		for _, b := range d.buttons {
			b.X, b.Y = d.x, d.y
			d.Pointer(b)
		}
		if d.moved && len(d.buttons) == 0 {
			d.Pointer(Pointer{X: d.x, Y: d.y, State: Moved})
		}
	}
	d.buttons = d.buttons[:0]
	d.moved = false

	if d.touchDirty && d.Touch != nil {
		points := make([]TouchPoint, 0, len(d.touches))
		for _, tp := range d.touches {
			points = append(points, *tp)
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Slot < points[j].Slot })
		d.Touch(points)
	}
	d.touchDirty = false
}

func (d *Dispatcher) clamp(v, limit int) int {
	if limit <= 0 {
		return v
	}
	return min(max(v, 0), limit-1)
}
