// Package render produces the content of scanout buffers. CPU painters
// write into mapped buffers, the gles sub-package draws with the GPU.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/NeowayLabs/drmplanes/buffer"
	"github.com/NeowayLabs/drmplanes/mode"
)

var ErrBufferFormatMismatch = errors.New("image does not match buffer layout")

// Source hands out buffers ready to be filled and takes back the ones
// that could not be used.
type Source interface {
	LockFront() (*buffer.Object, error)
	Release(bo *buffer.Object) error
}

// Producer returns a locked buffer holding a complete frame.
type Producer interface {
	Produce() (*buffer.Object, error)
}

// Painter writes a frame into a CPU mapping of a buffer.
type Painter interface {
	Paint(m *buffer.Mapping, desc buffer.Desc) error
}

// CPU produces frames by locking a buffer from Source and painting it.
type CPU struct {
	Source  Source
	Painter Painter
}

func (c CPU) Produce() (*buffer.Object, error) {
	bo, err := c.Source.LockFront()
	if err != nil {
		return nil, err
	}
	if err := c.paint(bo); err != nil {
		return nil, errors.Join(err, c.Source.Release(bo))
	}
	return bo, nil
}

func (c CPU) paint(bo *buffer.Object) error {
	m, err := bo.Map()
	if err != nil {
		return fmt.Errorf("map buffer: %w", err)
	}
	perr := c.Painter.Paint(m, bo.Desc)
	return errors.Join(perr, m.Close())
}

// Image paints a fixed picture. The picture must have the exact size of
// the buffer.
type Image struct {
	rgba *image.RGBA
}

// LoadPNG decodes a PNG file for painting.
func LoadPNG(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewImage(img), nil
}

// NewImage converts img to straight RGBA rows once, so painting is a
// per row copy.
func NewImage(img image.Image) *Image {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return &Image{rgba: rgba}
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Image{rgba: rgba}
}

func (i *Image) Bounds() image.Rectangle { return i.rgba.Bounds() }

func (i *Image) Paint(m *buffer.Mapping, desc buffer.Desc) error {
	w, h := i.rgba.Rect.Dx(), i.rgba.Rect.Dy()
	if uint32(w) != desc.Width || uint32(h) != desc.Height {
		return fmt.Errorf("%w: image %dx%d, buffer %dx%d", ErrBufferFormatMismatch,
			w, h, desc.Width, desc.Height)
	}
	swap, err := byteOrder(desc.Format)
	if err != nil {
		return err
	}
	if err := checkMapping(m, desc); err != nil {
		return err
	}

	stride := int(m.Stride)
	for y := 0; y < h; y++ {
		src := i.rgba.Pix[y*i.rgba.Stride : y*i.rgba.Stride+w*4]
		dst := m.Data[y*stride : y*stride+w*4]
		if !swap {
			copy(dst, src)
			continue
		}
		for x := 0; x < len(src); x += 4 {
			dst[x+0] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x+0]
			dst[x+3] = src[x+3]
		}
	}
	return nil
}

// Solid fills the whole buffer with one color.
type Solid struct {
	Color color.Color
}

var (
	Black = Solid{Color: color.RGBA{A: 0xff}}
	Red   = Solid{Color: color.RGBA{R: 0xff, A: 0xff}}
	Blue  = Solid{Color: color.RGBA{B: 0xff, A: 0xff}}
)

func (s Solid) Paint(m *buffer.Mapping, desc buffer.Desc) error {
	swap, err := byteOrder(desc.Format)
	if err != nil {
		return err
	}
	if err := checkMapping(m, desc); err != nil {
		return err
	}

	c := color.NRGBAModel.Convert(s.Color).(color.NRGBA)
	px := [4]byte{c.R, c.G, c.B, c.A}
	if swap {
		px = [4]byte{c.B, c.G, c.R, c.A}
	}
	stride := int(m.Stride)
	for y := 0; y < int(desc.Height); y++ {
		row := m.Data[y*stride : y*stride+int(desc.Width)*4]
		for x := 0; x < len(row); x += 4 {
			copy(row[x:x+4], px[:])
		}
	}
	return nil
}

// byteOrder reports whether the 32 bit format stores blue in the first
// byte. DRM formats are little endian: XRGB8888 is B, G, R, X in memory.
func byteOrder(format uint32) (swap bool, err error) {
	switch format {
	case mode.FormatXRGB8888, mode.FormatARGB8888:
		return true, nil
	case mode.FormatXBGR8888, mode.FormatABGR8888:
		return false, nil
	}
	return false, fmt.Errorf("%w: cannot paint %s", ErrBufferFormatMismatch, mode.FourccString(format))
}

func checkMapping(m *buffer.Mapping, desc buffer.Desc) error {
	row := int(desc.Width) * 4
	if int(m.Stride) < row {
		return fmt.Errorf("%w: stride %d shorter than a %d bytes row", ErrBufferFormatMismatch,
			m.Stride, row)
	}
	if desc.Height > 0 && len(m.Data) < int(m.Stride)*int(desc.Height-1)+row {
		return fmt.Errorf("%w: mapping of %d bytes too small", ErrBufferFormatMismatch, len(m.Data))
	}
	return nil
}
