package mode

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidFourcc = errors.New("invalid fourcc")

// Fourcc packs a four character code the way drm_fourcc.h does.
func Fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var (
	FormatXRGB8888 = Fourcc('X', 'R', '2', '4')
	FormatARGB8888 = Fourcc('A', 'R', '2', '4')
	FormatXBGR8888 = Fourcc('X', 'B', '2', '4')
	FormatABGR8888 = Fourcc('A', 'B', '2', '4')
	FormatRGB565   = Fourcc('R', 'G', '1', '6')
)

// ParseFourcc maps a code like "AR24" to its format. Shorter codes are
// right padded with spaces, eg.: "Y8" is "Y8  ".
func ParseFourcc(s string) (uint32, error) {
	if s == "" || len(s) > 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFourcc, s)
	}
	s = s + strings.Repeat(" ", 4-len(s))
	return Fourcc(s[0], s[1], s[2], s[3]), nil
}

// FourccString is the inverse of ParseFourcc, padding included.
func FourccString(format uint32) string {
	return string([]byte{
		byte(format), byte(format >> 8), byte(format >> 16), byte(format >> 24),
	})
}

// BitsPerPixel of the packed RGB formats, 0 when unknown.
func BitsPerPixel(format uint32) uint32 {
	switch format {
	case FormatXRGB8888, FormatARGB8888, FormatXBGR8888, FormatABGR8888:
		return 32
	case FormatRGB565:
		return 16
	}
	return 0
}

// Depth is the legacy AddFB depth of the format, 0 when unknown.
func Depth(format uint32) uint32 {
	switch format {
	case FormatXRGB8888, FormatXBGR8888:
		return 24
	case FormatARGB8888, FormatABGR8888:
		return 32
	case FormatRGB565:
		return 16
	}
	return 0
}
