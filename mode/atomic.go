package mode

import (
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	drm "github.com/NeowayLabs/drmplanes"
	"github.com/NeowayLabs/drmplanes/ioctl"
)

// Atomic commit flags, see DRM_MODE_ATOMIC_* in drm_mode.h
const (
	AtomicTestOnly     = 0x0100
	AtomicNonblock     = 0x0200
	AtomicAllowModeset = 0x0400
)

type (
	sysAtomic struct {
		flags         uint32
		countObjs     uint32
		objsPtr       uint64
		countPropsPtr uint64
		propsPtr      uint64
		propValuesPtr uint64
		reserved      uint64
		userData      uint64
	}

	// AtomicSet is the flattened form of an atomic request: Objects[i]
	// owns the next Counts[i] entries of Props/Values.
	AtomicSet struct {
		Objects []uint32
		Counts  []uint32
		Props   []uint32
		Values  []uint64
	}
)

var (
	// DRM_IOWR(0xBC, struct drm_mode_atomic)
	IOCTLModeAtomic = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysAtomic{})), drm.IOCTLBase, 0xBC)
)

// Atomic commits set in a single transaction. userData is echoed back in
// the flip event when PageFlipEvent is part of flags.
func Atomic(file *os.File, flags uint32, set *AtomicSet, userData uint64) error {
	if len(set.Objects) != len(set.Counts) || len(set.Props) != len(set.Values) {
		return unix.EINVAL
	}

	req := &sysAtomic{
		flags:     flags,
		countObjs: uint32(len(set.Objects)),
		userData:  userData,
	}
	if len(set.Objects) > 0 {
		req.objsPtr = ptr(&set.Objects[0])
		req.countPropsPtr = ptr(&set.Counts[0])
	}
	if len(set.Props) > 0 {
		req.propsPtr = ptr(&set.Props[0])
		req.propValuesPtr = ptr(&set.Values[0])
	}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeAtomic),
		uintptr(unsafe.Pointer(req)))
	runtime.KeepAlive(set)
	return err
}
