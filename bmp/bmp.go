// Package bmp implements the imageio contracts for Windows BMP files on
// top of golang.org/x/image/bmp. BMP stores 8-bit samples only and has
// no native tiling; the writer still accepts tile-shaped writes by
// buffering the whole image and encoding it at close.
package bmp

import (
	"fmt"
	"image"
	"image/draw"
	"os"

	xbmp "golang.org/x/image/bmp"

	"github.com/deoncoke/oiio/imageio"
)

// Record returns the plugin record for explicit registration.
func Record() imageio.PluginRecord {
	return imageio.PluginRecord{
		Name:       "bmp",
		Version:    imageio.ProtocolVersion,
		Input:      func() imageio.ImageInput { return NewInput() },
		Output:     func() imageio.ImageOutput { return NewOutput() },
		Extensions: []string{"bmp", "dib"},
	}
}

func init() {
	imageio.Register(Record())
}

// Input reads BMP files. The whole image is decoded at Open and
// scanlines are served from memory.
type Input struct {
	spec *imageio.ImageSpec
	data []byte
}

// NewInput creates a closed BMP reader.
func NewInput() *Input {
	return &Input{}
}

// FormatName implements imageio.ImageInput.
func (in *Input) FormatName() string { return "bmp" }

// Probe implements imageio.Prober by checking the "BM" magic.
func (in *Input) Probe(name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [2]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		return false
	}
	return magic[0] == 'B' && magic[1] == 'M'
}

// Open implements imageio.ImageInput.
func (in *Input) Open(name string) (*imageio.ImageSpec, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bmp: %w", err)
	}
	defer f.Close()
	img, err := xbmp.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("bmp: %w", err)
	}
	in.spec, in.data = flatten(img)
	return in.spec.Copy(), nil
}

// Close implements imageio.ImageInput.
func (in *Input) Close() error {
	in.spec = nil
	in.data = nil
	return nil
}

// ReadNativeScanline implements imageio.ImageInput.
func (in *Input) ReadNativeScanline(y, z int, data []byte) error {
	if in.spec == nil {
		return imageio.ErrNotOpen
	}
	s := in.spec
	if y < 0 || y >= s.Height || z != 0 {
		return imageio.ErrOutOfRange
	}
	sb := s.ScanlineBytes()
	copy(data[:sb], in.data[y*sb:])
	return nil
}

// flatten converts a decoded image into the native uint8 layout: 1
// channel for grayscale, 3 for opaque color, 4 when alpha is present.
func flatten(img image.Image) (*imageio.ImageSpec, []byte) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if g, ok := img.(*image.Gray); ok {
		spec := imageio.NewImageSpec(w, h, 1, imageio.TypeUInt8)
		data := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(data[y*w:], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		return spec, data
	}

	// 8-bit BMPs decode as paletted; a grayscale palette means the image
	// really is single-channel.
	if p, ok := img.(*image.Paletted); ok {
		if lut, ok := grayLUT(p); ok {
			spec := imageio.NewImageSpec(w, h, 1, imageio.TypeUInt8)
			data := make([]byte, w*h)
			for y := 0; y < h; y++ {
				row := p.Pix[y*p.Stride:]
				for x := 0; x < w; x++ {
					data[y*w+x] = lut[row[x]]
				}
			}
			return spec, data
		}
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	nch := 4
	if nrgba.Opaque() {
		nch = 3
	}
	spec := imageio.NewImageSpec(w, h, nch, imageio.TypeUInt8)
	data := make([]byte, w*h*nch)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < w; x++ {
			copy(data[(y*w+x)*nch:], row[x*4:x*4+nch])
		}
	}
	return spec, data
}

// grayLUT maps palette indices to gray levels, failing if any entry is
// not a pure opaque gray.
func grayLUT(p *image.Paletted) ([256]byte, bool) {
	var lut [256]byte
	for i, c := range p.Palette {
		r, g, b, a := c.RGBA()
		if r != g || g != b || a != 0xFFFF {
			return lut, false
		}
		lut[i] = byte(r >> 8)
	}
	return lut, true
}

// Output writes BMP files, buffering the whole image in memory and
// encoding it when closed.
type Output struct {
	imageio.OutputBase
	path string
	gray *image.Gray
	rgba *image.NRGBA
	open bool
}

// NewOutput creates a closed BMP writer.
func NewOutput() *Output {
	return &Output{}
}

// FormatName implements imageio.ImageOutput.
func (out *Output) FormatName() string { return "bmp" }

// Supports implements imageio.ImageOutput. The codec round-trips no
// alpha, native tiling, subimages, volumes, or per-channel formats.
func (out *Output) Supports(feature string) bool {
	return false
}

// Open implements imageio.ImageOutput. A 4-channel spec is accepted but
// its alpha channel is dropped; the written file has 3 channels.
func (out *Output) Open(name string, spec *imageio.ImageSpec, mode imageio.OpenMode) error {
	if mode != imageio.Create {
		return fmt.Errorf("bmp: %w: single-image format cannot append", imageio.ErrUnsupported)
	}
	if spec.Depth > 1 {
		return fmt.Errorf("bmp: volumetric images not supported")
	}
	switch spec.NChannels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("bmp: cannot write %d channels", spec.NChannels)
	}

	committed := spec.Copy()
	committed.Format = imageio.TypeUInt8
	committed.ChannelFormats = nil

	if spec.NChannels == 1 {
		out.gray = image.NewGray(image.Rect(0, 0, spec.Width, spec.Height))
	} else {
		out.rgba = image.NewNRGBA(image.Rect(0, 0, spec.Width, spec.Height))
		// Opaque alpha for 3-channel images.
		for i := 3; i < len(out.rgba.Pix); i += 4 {
			out.rgba.Pix[i] = 0xFF
		}
	}
	out.path = name
	out.open = true
	out.Bind(committed)
	return nil
}

// Close encodes the buffered image and finalizes the file.
func (out *Output) Close() error {
	if !out.open {
		return nil
	}
	out.open = false
	var img image.Image
	if out.gray != nil {
		img = out.gray
	} else {
		img = out.rgba
	}
	out.gray, out.rgba = nil, nil
	defer out.Unbind()

	f, err := os.Create(out.path)
	if err != nil {
		return fmt.Errorf("bmp: %w", err)
	}
	if err := xbmp.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("bmp: %w", err)
	}
	return f.Close()
}

// WriteScanline implements imageio.ImageOutput.
func (out *Output) WriteScanline(y, z int, srcFormat imageio.TypeDesc, data []byte, xstride int) error {
	if !out.open {
		return imageio.ErrNotOpen
	}
	s := out.Spec
	if y < 0 || y >= s.Height || z != 0 {
		return imageio.ErrOutOfRange
	}
	native := out.ScanlineToNative(y, z, srcFormat, data, xstride)
	out.blitRow(0, y, s.Width, native)
	return nil
}

// WriteTile implements imageio.TileWriter by blitting into the buffered
// image; the format has no native tiles but tolerates tile-shaped calls.
func (out *Output) WriteTile(x, y, z int, srcFormat imageio.TypeDesc, data []byte, xstride, ystride, zstride int) error {
	if !out.open {
		return imageio.ErrNotOpen
	}
	s := out.Spec
	if z != 0 || x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return imageio.ErrOutOfRange
	}
	native := out.TileToNative(x, y, z, srcFormat, data, xstride, ystride, zstride)
	cw := min(s.TileWidth, s.Width-x)
	ch := min(s.TileHeight, s.Height-y)
	rowBytes := s.TileWidth * s.NChannels
	for ty := 0; ty < ch; ty++ {
		out.blitRow(x, y+ty, cw, native[ty*rowBytes:])
	}
	return nil
}

// blitRow copies n translated pixels into the buffered image at (x, y),
// keeping only RGB from 4-channel sources.
func (out *Output) blitRow(x, y, n int, native []byte) {
	nch := out.Spec.NChannels
	if out.gray != nil {
		copy(out.gray.Pix[y*out.gray.Stride+x:], native[:n])
		return
	}
	row := out.rgba.Pix[y*out.rgba.Stride:]
	for i := 0; i < n; i++ {
		copy(row[(x+i)*4:(x+i)*4+3], native[i*nch:])
	}
}
