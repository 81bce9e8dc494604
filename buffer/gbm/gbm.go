// Package gbm allocates GPU scanout buffers with libgbm. The library is
// loaded at run time, no cgo involved.
package gbm

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/ebitengine/purego"
	"github.com/rs/zerolog"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/mode"
)

// Buffer usage flags, see enum gbm_bo_flags in gbm.h
const (
	BoUseScanout   = 1 << 0
	BoUseCursor    = 1 << 1
	BoUseRendering = 1 << 2
	BoUseWrite     = 1 << 3
	BoUseLinear    = 1 << 4
)

// Transfer flags of gbm_bo_map
const (
	transferRead  = 1 << 0
	transferWrite = 1 << 1
)

const libName = "libgbm.so.1"

var (
	ErrDeviceCreation  = errors.New("gbm device creation failed")
	ErrSurfaceCreation = errors.New("gbm surface creation failed")
	ErrLockFailed      = errors.New("gbm lock front buffer failed")
	ErrMapFailed       = errors.New("gbm buffer map failed")
)

var (
	loadOnce sync.Once
	loadErr  error

	gbmCreateDevice               func(fd int32) uintptr
	gbmDeviceDestroy              func(dev uintptr)
	gbmSurfaceCreate              func(dev uintptr, width, height, format, flags uint32) uintptr
	gbmSurfaceCreateWithModifiers func(dev uintptr, width, height, format uint32, modifiers *uint64, count uint32) uintptr
	gbmSurfaceDestroy             func(surface uintptr)
	gbmSurfaceLockFrontBuffer     func(surface uintptr) uintptr
	gbmSurfaceReleaseBuffer       func(surface, bo uintptr)
	gbmBoGetWidth                 func(bo uintptr) uint32
	gbmBoGetHeight                func(bo uintptr) uint32
	gbmBoGetFormat                func(bo uintptr) uint32
	gbmBoGetModifier              func(bo uintptr) uint64
	gbmBoGetPlaneCount            func(bo uintptr) int32
	gbmBoGetHandleForPlane        func(bo uintptr, plane int32) uint64
	gbmBoGetStrideForPlane        func(bo uintptr, plane int32) uint32
	gbmBoGetOffset                func(bo uintptr, plane int32) uint32
	gbmBoMap                      func(bo uintptr, x, y, width, height, flags uint32, stride *uint32, mapData *uintptr) uintptr
	gbmBoUnmap                    func(bo, mapData uintptr)
)

func load() error {
	loadOnce.Do(func() {
		lib, err := purego.Dlopen(libName, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			loadErr = fmt.Errorf("load %s: %w", libName, err)
			return
		}
		purego.RegisterLibFunc(&gbmCreateDevice, lib, "gbm_create_device")
		purego.RegisterLibFunc(&gbmDeviceDestroy, lib, "gbm_device_destroy")
		purego.RegisterLibFunc(&gbmSurfaceCreate, lib, "gbm_surface_create")
		purego.RegisterLibFunc(&gbmSurfaceCreateWithModifiers, lib, "gbm_surface_create_with_modifiers")
		purego.RegisterLibFunc(&gbmSurfaceDestroy, lib, "gbm_surface_destroy")
		purego.RegisterLibFunc(&gbmSurfaceLockFrontBuffer, lib, "gbm_surface_lock_front_buffer")
		purego.RegisterLibFunc(&gbmSurfaceReleaseBuffer, lib, "gbm_surface_release_buffer")
		purego.RegisterLibFunc(&gbmBoGetWidth, lib, "gbm_bo_get_width")
		purego.RegisterLibFunc(&gbmBoGetHeight, lib, "gbm_bo_get_height")
		purego.RegisterLibFunc(&gbmBoGetFormat, lib, "gbm_bo_get_format")
		purego.RegisterLibFunc(&gbmBoGetModifier, lib, "gbm_bo_get_modifier")
		purego.RegisterLibFunc(&gbmBoGetPlaneCount, lib, "gbm_bo_get_plane_count")
		purego.RegisterLibFunc(&gbmBoGetHandleForPlane, lib, "gbm_bo_get_handle_for_plane")
		purego.RegisterLibFunc(&gbmBoGetStrideForPlane, lib, "gbm_bo_get_stride_for_plane")
		purego.RegisterLibFunc(&gbmBoGetOffset, lib, "gbm_bo_get_offset")
		purego.RegisterLibFunc(&gbmBoMap, lib, "gbm_bo_map")
		purego.RegisterLibFunc(&gbmBoUnmap, lib, "gbm_bo_unmap")
	})
	return loadErr
}

// Device is a gbm_device on an open DRM card.
type Device struct {
	ptr uintptr
	log zerolog.Logger
}

var (
	_ buffer.Allocator = (*Device)(nil)
	_ buffer.Mapper    = (*Device)(nil)
)

// Open creates a gbm device on fd. The file must stay open while the
// device is in use.
func Open(fd uintptr, logger zerolog.Logger) (*Device, error) {
	if err := load(); err != nil {
		return nil, err
	}
	ptr := gbmCreateDevice(int32(fd))
	if ptr == 0 {
		return nil, ErrDeviceCreation
	}
	return &Device{ptr: ptr, log: logger}, nil
}

// Ptr is the native gbm_device, the EGL platform display.
func (d *Device) Ptr() uintptr { return d.ptr }

func (d *Device) Close() error {
	if d.ptr != 0 {
		gbmDeviceDestroy(d.ptr)
		d.ptr = 0
	}
	return nil
}

func (d *Device) NewSurface(width, height, format uint32, modifiers []uint64) (buffer.NativeSurface, error) {
	var ptr uintptr
	if len(modifiers) > 0 {
		ptr = gbmSurfaceCreateWithModifiers(d.ptr, width, height, format,
			&modifiers[0], uint32(len(modifiers)))
	} else {
		ptr = gbmSurfaceCreate(d.ptr, width, height, format, BoUseScanout|BoUseRendering)
	}
	if ptr == 0 {
		return nil, fmt.Errorf("%w: %dx%d %s, %d modifiers", ErrSurfaceCreation,
			width, height, mode.FourccString(format), len(modifiers))
	}
	d.log.Debug().
		Uint32("width", width).
		Uint32("height", height).
		Bool("modifiers", len(modifiers) > 0).
		Msg("gbm surface created")
	return &Surface{dev: d, ptr: ptr, objects: map[uintptr]*buffer.Object{}}, nil
}

// Map maps the whole buffer for writing.
func (d *Device) Map(bo *buffer.Object) (*buffer.Mapping, error) {
	native, ok := bo.Native().(uintptr)
	if !ok || native == 0 {
		return nil, buffer.ErrNotMappable
	}
	var (
		stride  uint32
		mapData uintptr
	)
	addr := gbmBoMap(native, 0, 0, bo.Width, bo.Height, transferRead|transferWrite, &stride, &mapData)
	if addr == 0 {
		return nil, ErrMapFailed
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(stride)*int(bo.Height))
	return buffer.NewMapping(data, stride, func() error {
		gbmBoUnmap(native, mapData)
		return nil
	}), nil
}

// Surface is a gbm_surface. It is the EGL native window, buffers become
// available for locking after each eglSwapBuffers.
type Surface struct {
	dev     *Device
	ptr     uintptr
	objects map[uintptr]*buffer.Object
}

// Ptr is the native gbm_surface.
func (s *Surface) Ptr() uintptr { return s.ptr }

func (s *Surface) LockFront() (*buffer.Object, error) {
	bo := gbmSurfaceLockFrontBuffer(s.ptr)
	if bo == 0 {
		return nil, ErrLockFailed
	}
	if obj, ok := s.objects[bo]; ok {
		return obj, nil
	}

	desc := buffer.Desc{
		Width:    gbmBoGetWidth(bo),
		Height:   gbmBoGetHeight(bo),
		Format:   gbmBoGetFormat(bo),
		Modifier: gbmBoGetModifier(bo),
	}
	planes := int(gbmBoGetPlaneCount(bo))
	for i := 0; i < planes && i < len(desc.Handles); i++ {
		desc.Handles[i] = uint32(gbmBoGetHandleForPlane(bo, int32(i)))
		desc.Strides[i] = gbmBoGetStrideForPlane(bo, int32(i))
		desc.Offsets[i] = gbmBoGetOffset(bo, int32(i))
	}

	s.dev.log.Debug().
		Uint32("handle", desc.Handles[0]).
		Uint32("stride", desc.Strides[0]).
		Int("planes", planes).
		Str("size", humanize.Bytes(uint64(desc.Strides[0])*uint64(desc.Height))).
		Msg("gbm buffer")

	obj := buffer.NewObject(desc, bo, s.dev)
	s.objects[bo] = obj
	return obj, nil
}

func (s *Surface) Release(bo *buffer.Object) error {
	native, ok := bo.Native().(uintptr)
	if !ok {
		return buffer.ErrUnknownBuffer
	}
	gbmSurfaceReleaseBuffer(s.ptr, native)
	return nil
}

func (s *Surface) Close() error {
	if s.ptr != 0 {
		gbmSurfaceDestroy(s.ptr)
		s.ptr = 0
	}
	s.objects = nil
	return nil
}
