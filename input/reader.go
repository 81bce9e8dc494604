package input

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/NeowayLabs/drmplanes/ioctl"
)

var (
	// EVIOCGNAME(256)
	ioctlGetName = ioctl.IOR('E', 0x06, 256)

	// EVIOCGRAB
	ioctlGrab = ioctl.IOW('E', 0x90, unsafe.Sizeof(int32(0)))
)

// Open opens an event device, eg.: /dev/input/event0. With grab the
// device stops reporting to other readers.
func Open(path string, grab bool) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if grab {
		one := int32(1)
		if err := ioctl.Do(f.Fd(), uintptr(ioctlGrab), uintptr(unsafe.Pointer(&one))); err != nil {
			f.Close()
			return nil, fmt.Errorf("grab %s: %w", path, err)
		}
	}
	return f, nil
}

// Name returns the device name reported by the driver.
func Name(f *os.File) (string, error) {
	var buf [256]byte
	if err := ioctl.Do(f.Fd(), uintptr(ioctlGetName), uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf[:], 0); i >= 0 {
		return string(buf[:i]), nil
	}
	return string(buf[:]), nil
}

// Reader feeds an evdev stream to a Dispatcher.
type Reader struct {
	r    io.Reader
	d    *Dispatcher
	size int
	log  zerolog.Logger
}

func NewReader(r io.Reader, d *Dispatcher, logger zerolog.Logger) *Reader {
	return &Reader{r: r, d: d, size: EventSize, log: logger}
}

// Run dispatches events until the stream ends or ctx is done. A stream
// implementing io.Closer is closed when ctx ends to unblock the read.
func (r *Reader) Run(ctx context.Context) error {
	if c, ok := r.r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	buf := make([]byte, r.size*64)
	var pending []byte
	for {
		n, err := r.r.Read(buf)
		if n > 0 {
			var events []Event
			var derr error
			events, pending, derr = Decode(append(pending, buf[:n]...), r.size)
			if derr != nil {
				return derr
			}
			for _, ev := range events {
				r.log.Trace().
					Uint16("type", ev.Type).
					Uint16("code", ev.Code).
					Int32("value", ev.Value).
					Msg("input event")
				r.d.Handle(ev)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
	}
}
