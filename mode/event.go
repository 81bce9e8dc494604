package mode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DRM event types, see DRM_EVENT_* in drm.h
const (
	EventVBlank        = 0x01
	EventFlipComplete  = 0x02
	EventCrtcSequence  = 0x03
	eventHeaderLen     = 8
	vblankEventLen     = 32
	eventReadBufferLen = 1024
)

var ErrShortEvent = errors.New("short drm event")

// Event is a decoded drm_event_vblank, the payload of both vblank and
// flip complete events. Other event types only carry Type.
type Event struct {
	Type     uint32
	UserData uint64
	Sec      uint32
	Usec     uint32
	Sequence uint32
	CrtcID   uint32
}

// Time is the vblank timestamp carried by the event.
func (e Event) Time() time.Time {
	return time.Unix(int64(e.Sec), int64(e.Usec)*int64(time.Microsecond))
}

// ReadEvents reads the pending events of the device. It blocks when none
// is pending, callers wait for readability first.
func ReadEvents(file *os.File) ([]Event, error) {
	buf := make([]byte, eventReadBufferLen)
	for {
		n, err := unix.Read(int(file.Fd()), buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ParseEvents(buf[:n])
	}
}

// ParseEvents decodes a buffer read from the device. The kernel only
// writes whole events, a truncated one is an error.
func ParseEvents(buf []byte) ([]Event, error) {
	var events []Event
	for len(buf) > 0 {
		if len(buf) < eventHeaderLen {
			return events, fmt.Errorf("%w: %d bytes left", ErrShortEvent, len(buf))
		}
		typ := binary.NativeEndian.Uint32(buf[0:])
		length := int(binary.NativeEndian.Uint32(buf[4:]))
		if length < eventHeaderLen || length > len(buf) {
			return events, fmt.Errorf("%w: length %d with %d bytes left",
				ErrShortEvent, length, len(buf))
		}

		ev := Event{Type: typ}
		if (typ == EventVBlank || typ == EventFlipComplete) && length >= vblankEventLen {
			ev.UserData = binary.NativeEndian.Uint64(buf[8:])
			ev.Sec = binary.NativeEndian.Uint32(buf[16:])
			ev.Usec = binary.NativeEndian.Uint32(buf[20:])
			ev.Sequence = binary.NativeEndian.Uint32(buf[24:])
			ev.CrtcID = binary.NativeEndian.Uint32(buf[28:])
		}
		events = append(events, ev)
		buf = buf[length:]
	}
	return events, nil
}
