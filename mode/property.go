package mode

import (
	"bytes"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	drm "github.com/NeowayLabs/drmplanes"
	"github.com/NeowayLabs/drmplanes/ioctl"
)

// Property flags, see DRM_MODE_PROP_* in drm_mode.h
const (
	PropPending   = 1 << 0
	PropRange     = 1 << 1
	PropImmutable = 1 << 2
	PropEnum      = 1 << 3
	PropBlob      = 1 << 4
	PropBitmask   = 1 << 5
	PropAtomic    = 0x80000000
)

type (
	sysObjGetProperties struct {
		propsPtr      uint64
		propValuesPtr uint64
		countProps    uint32
		objID         uint32
		objType       uint32
		pad           uint32
	}

	sysGetProperty struct {
		valuesPtr   uint64
		enumBlobPtr uint64

		propID uint32
		flags  uint32
		name   [PropNameLen]uint8

		countValues    uint32
		countEnumBlobs uint32
	}

	sysCreateBlob struct {
		data   uint64
		length uint32
		blobID uint32
	}

	sysDestroyBlob struct {
		blobID uint32
	}

	// ObjectProperties holds the property ids of a KMS object along with
	// the values they had when queried.
	ObjectProperties struct {
		ObjectID   uint32
		ObjectType uint32
		Props      []uint32
		Values     []uint64
	}

	Property struct {
		ID    uint32
		Flags uint32
		Name  string
	}
)

var (
	// DRM_IOWR(0xAA, struct drm_mode_get_property)
	IOCTLModeGetProperty = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysGetProperty{})), drm.IOCTLBase, 0xAA)

	// DRM_IOWR(0xB9, struct drm_mode_obj_get_properties)
	IOCTLModeObjGetProperties = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysObjGetProperties{})), drm.IOCTLBase, 0xB9)

	// DRM_IOWR(0xBD, struct drm_mode_create_blob)
	IOCTLModeCreatePropBlob = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCreateBlob{})), drm.IOCTLBase, 0xBD)

	// DRM_IOWR(0xBE, struct drm_mode_destroy_blob)
	IOCTLModeDestroyPropBlob = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysDestroyBlob{})), drm.IOCTLBase, 0xBE)
)

func GetObjectProperties(file *os.File, id, typ uint32) (*ObjectProperties, error) {
	req := &sysObjGetProperties{objID: id, objType: typ}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeObjGetProperties),
		uintptr(unsafe.Pointer(req)))
	if err != nil {
		return nil, err
	}

	ret := &ObjectProperties{ObjectID: id, ObjectType: typ}
	if req.countProps == 0 {
		return ret, nil
	}

	props := make([]uint32, req.countProps)
	values := make([]uint64, req.countProps)
	req.propsPtr = ptr(&props[0])
	req.propValuesPtr = ptr(&values[0])
	err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeObjGetProperties),
		uintptr(unsafe.Pointer(req)))
	runtime.KeepAlive(props)
	runtime.KeepAlive(values)
	if err != nil {
		return nil, err
	}

	n := min(len(props), int(req.countProps))
	ret.Props = props[:n]
	ret.Values = values[:n]
	return ret, nil
}

// GetProperty returns the property metadata. Enum values and blobs are
// not fetched.
func GetProperty(file *os.File, id uint32) (*Property, error) {
	prop := &sysGetProperty{propID: id}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeGetProperty),
		uintptr(unsafe.Pointer(prop)))
	if err != nil {
		return nil, err
	}
	return &Property{
		ID:    prop.propID,
		Flags: prop.flags,
		Name:  string(bytes.TrimRight(prop.name[:], "\x00")),
	}, nil
}

// CreatePropertyBlob uploads data as a property blob and returns its id.
func CreatePropertyBlob(file *os.File, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, unix.EINVAL
	}
	blob := &sysCreateBlob{
		data:   ptr(&data[0]),
		length: uint32(len(data)),
	}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeCreatePropBlob),
		uintptr(unsafe.Pointer(blob)))
	runtime.KeepAlive(data)
	if err != nil {
		return 0, err
	}
	return blob.blobID, nil
}

func DestroyPropertyBlob(file *os.File, id uint32) error {
	return ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeDestroyPropBlob),
		uintptr(unsafe.Pointer(&sysDestroyBlob{id})))
}

// Bytes returns a copy of the raw drm_mode_modeinfo layout of the mode,
// the content expected by a MODE_ID blob.
func (i Info) Bytes() []byte {
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&i)), unsafe.Sizeof(i))
	return append([]byte(nil), raw...)
}
