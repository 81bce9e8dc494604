package mode

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelStructSizes(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"drm_mode_card_res", unsafe.Sizeof(sysResources{}), 64},
		{"drm_mode_crtc", unsafe.Sizeof(sysCrtc{}), 104},
		{"drm_mode_modeinfo", unsafe.Sizeof(Info{}), 68},
		{"drm_mode_get_encoder", unsafe.Sizeof(sysGetEncoder{}), 20},
		{"drm_mode_get_connector", unsafe.Sizeof(sysGetConnector{}), 80},
		{"drm_mode_get_property", unsafe.Sizeof(sysGetProperty{}), 64},
		{"drm_mode_obj_get_properties", unsafe.Sizeof(sysObjGetProperties{}), 32},
		{"drm_mode_create_blob", unsafe.Sizeof(sysCreateBlob{}), 16},
		{"drm_mode_destroy_blob", unsafe.Sizeof(sysDestroyBlob{}), 4},
		{"drm_mode_atomic", unsafe.Sizeof(sysAtomic{}), 56},
		{"drm_mode_fb_cmd2", unsafe.Sizeof(sysFBCmd2{}), 104},
		{"drm_mode_crtc_page_flip", unsafe.Sizeof(sysPageFlip{}), 24},
		{"drm_mode_set_plane", unsafe.Sizeof(sysSetPlane{}), 48},
		{"drm_mode_get_plane_res", unsafe.Sizeof(sysGetPlaneRes{}), 16},
		{"drm_mode_get_plane", unsafe.Sizeof(sysGetPlane{}), 32},
		{"drm_mode_cursor", unsafe.Sizeof(sysCursor{}), 28},
		{"drm_mode_cursor2", unsafe.Sizeof(sysCursor2{}), 36},
		{"drm_mode_create_dumb", unsafe.Sizeof(sysCreateDumb{}), 32},
		{"drm_mode_map_dumb", unsafe.Sizeof(sysMapDumb{}), 16},
	} {
		assert.Equal(t, tc.want, tc.got, tc.name)
	}
}

func TestFB2ModifierOffset(t *testing.T) {
	assert.Equal(t, uintptr(72), unsafe.Offsetof(sysFBCmd2{}.modifier))
}

func TestIOCTLCodes(t *testing.T) {
	assert.Equal(t, uint32(0xc04064a0), IOCTLModeResources)
	assert.Equal(t, uint32(0xc03864bc), IOCTLModeAtomic)
	assert.Equal(t, uint32(0xc06864b8), IOCTLModeAddFB2)
	assert.Equal(t, uint32(0xc03064b7), IOCTLModeSetPlane)
	assert.Equal(t, uint32(0xc05064a7), IOCTLModeGetConnector)
}

func TestInfo(t *testing.T) {
	var m Info
	copy(m.Name[:], "3840x2160")
	m.Hdisplay = 3840
	m.Vdisplay = 2160
	m.Type = TypeDriver | TypePreferred

	assert.Equal(t, "3840x2160", m.String())
	assert.True(t, m.Preferred())

	raw := m.Bytes()
	require.Len(t, raw, 68)
	assert.Equal(t, uint16(3840), binary.NativeEndian.Uint16(raw[4:]))
	assert.Equal(t, uint16(2160), binary.NativeEndian.Uint16(raw[14:]))

	raw[4] = 0
	assert.Equal(t, uint16(3840), m.Hdisplay, "Bytes must return a copy")
}

func TestFourcc(t *testing.T) {
	f, err := ParseFourcc("AR24")
	require.NoError(t, err)
	assert.Equal(t, FormatARGB8888, f)
	assert.Equal(t, uint32(0x34325241), f)
	assert.Equal(t, "AR24", FourccString(f))

	f, err = ParseFourcc("Y8")
	require.NoError(t, err)
	assert.Equal(t, "Y8  ", FourccString(f))
	assert.Equal(t, Fourcc('Y', '8', ' ', ' '), f)

	for _, bad := range []string{"", "XRGB8888"} {
		_, err := ParseFourcc(bad)
		assert.ErrorIs(t, err, ErrInvalidFourcc, bad)
	}

	assert.Equal(t, uint32(32), BitsPerPixel(FormatXRGB8888))
	assert.Equal(t, uint32(24), Depth(FormatXRGB8888))
	assert.Zero(t, BitsPerPixel(Fourcc('N', 'V', '1', '2')))
}

func flipEvent(typ uint32, userData uint64, sec, usec, seq, crtc uint32) []byte {
	buf := make([]byte, vblankEventLen)
	binary.NativeEndian.PutUint32(buf[0:], typ)
	binary.NativeEndian.PutUint32(buf[4:], vblankEventLen)
	binary.NativeEndian.PutUint64(buf[8:], userData)
	binary.NativeEndian.PutUint32(buf[16:], sec)
	binary.NativeEndian.PutUint32(buf[20:], usec)
	binary.NativeEndian.PutUint32(buf[24:], seq)
	binary.NativeEndian.PutUint32(buf[28:], crtc)
	return buf
}

func TestParseEvents(t *testing.T) {
	buf := append(flipEvent(EventFlipComplete, 7, 10, 500, 42, 3),
		flipEvent(EventVBlank, 0, 11, 0, 43, 3)...)
	// unknown event type, header only
	unknown := make([]byte, 12)
	binary.NativeEndian.PutUint32(unknown[0:], 0x80000000)
	binary.NativeEndian.PutUint32(unknown[4:], 12)
	buf = append(buf, unknown...)

	events, err := ParseEvents(buf)
	require.NoError(t, err)

	want := []Event{
		{Type: EventFlipComplete, UserData: 7, Sec: 10, Usec: 500, Sequence: 42, CrtcID: 3},
		{Type: EventVBlank, Sec: 11, Sequence: 43, CrtcID: 3},
		{Type: 0x80000000},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(10), events[0].Time().Unix())
}

func TestParseEventsTruncated(t *testing.T) {
	buf := flipEvent(EventFlipComplete, 1, 0, 0, 0, 0)

	events, err := ParseEvents(append(buf, buf[:20]...))
	assert.ErrorIs(t, err, ErrShortEvent)
	assert.Len(t, events, 1)

	_, err = ParseEvents(buf[:4])
	assert.ErrorIs(t, err, ErrShortEvent)
}
