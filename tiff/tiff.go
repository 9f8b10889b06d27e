// Package tiff implements the imageio contracts for TIFF files on top of
// golang.org/x/image/tiff. Both 8- and 16-bit samples are supported. The
// writer honors the "Compression" attribute and silently substitutes
// deflate, a lossless scheme, for any compression it cannot provide.
package tiff

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"os"

	xtiff "golang.org/x/image/tiff"

	"github.com/deoncoke/oiio/imageio"
)

// Record returns the plugin record for explicit registration.
func Record() imageio.PluginRecord {
	return imageio.PluginRecord{
		Name:       "tiff",
		Version:    imageio.ProtocolVersion,
		Input:      func() imageio.ImageInput { return NewInput() },
		Output:     func() imageio.ImageOutput { return NewOutput() },
		Extensions: []string{"tif", "tiff"},
	}
}

func init() {
	imageio.Register(Record())
}

// Input reads TIFF files, decoding the whole image at Open.
type Input struct {
	spec *imageio.ImageSpec
	data []byte
}

// NewInput creates a closed TIFF reader.
func NewInput() *Input {
	return &Input{}
}

// FormatName implements imageio.ImageInput.
func (in *Input) FormatName() string { return "tiff" }

// Probe implements imageio.Prober by checking both TIFF byte-order
// magics.
func (in *Input) Probe(name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [4]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		return false
	}
	le := magic == [4]byte{'I', 'I', 0x2A, 0x00}
	be := magic == [4]byte{'M', 'M', 0x00, 0x2A}
	return le || be
}

// Open implements imageio.ImageInput.
func (in *Input) Open(name string) (*imageio.ImageSpec, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("tiff: %w", err)
	}
	defer f.Close()
	img, err := xtiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("tiff: %w", err)
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

// ReadNativeScanlines implements imageio.NativeScanlinesReader; serving
// a whole run from the decoded buffer needs just one copy.
func (in *Input) ReadNativeScanlines(ybegin, yend, z int, data []byte) error {
	if in.spec == nil {
		return imageio.ErrNotOpen
	}
	s := in.spec
	if ybegin < 0 || yend > s.Height || ybegin > yend || z != 0 {
		return imageio.ErrOutOfRange
	}
	sb := s.ScanlineBytes()
	copy(data[:(yend-ybegin)*sb], in.data[ybegin*sb:])
	return nil
}

// flatten converts a decoded image into native layout: little-endian
// samples, 1/3/4 channels at 8 or 16 bits.
func flatten(img image.Image) (*imageio.ImageSpec, []byte) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch im := img.(type) {
	case *image.Gray:
		spec := imageio.NewImageSpec(w, h, 1, imageio.TypeUInt8)
		data := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(data[y*w:], im.Pix[y*im.Stride:y*im.Stride+w])
		}
		return spec, data
	case *image.Gray16:
		spec := imageio.NewImageSpec(w, h, 1, imageio.TypeUInt16)
		data := make([]byte, w*h*2)
		for y := 0; y < h; y++ {
			row := im.Pix[y*im.Stride:]
			for x := 0; x < w; x++ {
				v := uint16(row[2*x])<<8 | uint16(row[2*x+1])
				binary.LittleEndian.PutUint16(data[(y*w+x)*2:], v)
			}
		}
		return spec, data
	case *image.NRGBA64:
		return flatten64(im.Pix, im.Stride, w, h, im.Opaque())
	case *image.RGBA64:
		return flatten64(im.Pix, im.Stride, w, h, im.Opaque())
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

// flatten64 handles the 16-bit RGBA variants, whose Pix layout is
// big-endian RGBA16.
func flatten64(pix []byte, stride, w, h int, opaque bool) (*imageio.ImageSpec, []byte) {
	nch := 4
	if opaque {
		nch = 3
	}
	spec := imageio.NewImageSpec(w, h, nch, imageio.TypeUInt16)
	data := make([]byte, w*h*nch*2)
	for y := 0; y < h; y++ {
		row := pix[y*stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < nch; c++ {
				v := uint16(row[x*8+2*c])<<8 | uint16(row[x*8+2*c+1])
				binary.LittleEndian.PutUint16(data[((y*w+x)*nch+c)*2:], v)
			}
		}
	}
	return spec, data
}

// Output writes TIFF files, buffering the native image in memory and
// encoding it at close.
type Output struct {
	imageio.OutputBase
	path string
	data []byte
	comp xtiff.CompressionType
	open bool
}

// NewOutput creates a closed TIFF writer.
func NewOutput() *Output {
	return &Output{}
}

// FormatName implements imageio.ImageOutput.
func (out *Output) FormatName() string { return "tiff" }

// Supports implements imageio.ImageOutput.
func (out *Output) Supports(feature string) bool {
	return feature == imageio.FeatureAlpha
}

// Open implements imageio.ImageOutput.
func (out *Output) Open(name string, spec *imageio.ImageSpec, mode imageio.OpenMode) error {
	if mode != imageio.Create {
		return fmt.Errorf("tiff: %w: appending subimages is not supported", imageio.ErrUnsupported)
	}
	if spec.Depth > 1 {
		return fmt.Errorf("tiff: volumetric images not supported")
	}
	switch spec.NChannels {
	case 1, 3, 4:
	default:
		return fmt.Errorf("tiff: cannot write %d channels", spec.NChannels)
	}

	committed := spec.Copy()
	committed.ChannelFormats = nil
	committed.Format = closestFormat(spec)

	out.comp = compressionFor(spec.StringAttribute("Compression", "deflate"))
	out.path = name
	out.data = make([]byte, committed.ImageBytes())
	out.open = true
	out.Bind(committed)
	return nil
}

// closestFormat picks the representable sample type losing the least
// precision: everything wider than 8 bits, and all floats, become
// 16-bit; the rest stays 8-bit.
func closestFormat(spec *imageio.ImageSpec) imageio.TypeDesc {
	f := spec.Format
	for c := 0; c < spec.NChannels; c++ {
		if cf := spec.ChannelFormat(c); cf.Bits > f.Bits || cf.IsFloat() {
			f = cf
		}
	}
	if f.IsFloat() || f.Bits > 8 {
		return imageio.TypeUInt16
	}
	return imageio.TypeUInt8
}

// compressionFor maps a requested compression name onto what the encoder
// can do. The encoder writes uncompressed and deflate only, so every
// other request, lzw and the lossy schemes included, becomes deflate:
// substituting a lossy scheme is never acceptable, a lossless one
// silently is.
func compressionFor(name string) xtiff.CompressionType {
	switch name {
	case "none", "uncompressed":
		return xtiff.Uncompressed
	default:
		return xtiff.Deflate
	}
}

// Close encodes the buffered image and finalizes the file.
func (out *Output) Close() error {
	if !out.open {
		return nil
	}
	out.open = false
	img := out.assemble()
	out.data = nil
	defer out.Unbind()

	f, err := os.Create(out.path)
	if err != nil {
		return fmt.Errorf("tiff: %w", err)
	}
	opts := &xtiff.Options{Compression: out.comp}
	if err := xtiff.Encode(f, img, opts); err != nil {
		f.Close()
		return fmt.Errorf("tiff: %w", err)
	}
	return f.Close()
}

// assemble builds the stdlib image the encoder understands from the
// native buffer.
func (out *Output) assemble() image.Image {
	s := out.Spec
	w, h := s.Width, s.Height
	switch {
	case s.NChannels == 1 && s.Format.Bits == 8:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			copy(img.Pix[y*img.Stride:], out.data[y*w:y*w+w])
		}
		return img
	case s.NChannels == 1:
		img := image.NewGray16(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := binary.LittleEndian.Uint16(out.data[(y*w+x)*2:])
				img.Pix[y*img.Stride+2*x] = byte(v >> 8)
				img.Pix[y*img.Stride+2*x+1] = byte(v)
			}
		}
		return img
	case s.Format.Bits == 8:
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		nch := s.NChannels
		for i := 0; i < w*h; i++ {
			copy(img.Pix[i*4:], out.data[i*nch:i*nch+nch])
			if nch == 3 {
				img.Pix[i*4+3] = 0xFF
			}
		}
		return img
	default:
		img := image.NewNRGBA64(image.Rect(0, 0, w, h))
		nch := s.NChannels
		for i := 0; i < w*h; i++ {
			for c := 0; c < 4; c++ {
				v := uint16(0xFFFF)
				if c < nch {
					v = binary.LittleEndian.Uint16(out.data[(i*nch+c)*2:])
				}
				img.Pix[i*8+2*c] = byte(v >> 8)
				img.Pix[i*8+2*c+1] = byte(v)
			}
		}
		return img
	}
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
	sb := s.ScanlineBytes()
	copy(out.data[y*sb:], native[:sb])
	return nil
}

// WriteTile implements imageio.TileWriter via the buffered image; TIFF
// tiling itself is not produced by the encoder, but tile-shaped writes
// are accepted all the same.
func (out *Output) WriteTile(x, y, z int, srcFormat imageio.TypeDesc, data []byte, xstride, ystride, zstride int) error {
	if !out.open {
		return imageio.ErrNotOpen
	}
	s := out.Spec
	if z != 0 || x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return imageio.ErrOutOfRange
	}
	native := out.TileToNative(x, y, z, srcFormat, data, xstride, ystride, zstride)
	pb := s.PixelBytes()
	sb := s.ScanlineBytes()
	cw := min(s.TileWidth, s.Width-x)
	ch := min(s.TileHeight, s.Height-y)
	for ty := 0; ty < ch; ty++ {
		src := native[ty*s.TileWidth*pb:]
		copy(out.data[(y+ty)*sb+x*pb:(y+ty)*sb+(x+cw)*pb], src)
	}
	return nil
}
