package ztl

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/deoncoke/oiio/imageio"
)

// Output writes ztl files. Pixel data is buffered in scanline order and
// compressed into chunks when the subimage is closed, so scanline and
// tile writes may arrive in any order.
type Output struct {
	imageio.OutputBase
	f       *os.File
	data    []byte
	offsets []uint64
	level   zstd.EncoderLevel
	open    bool
}

// NewOutput creates a closed ztl writer.
func NewOutput() *Output {
	return &Output{}
}

// FormatName implements imageio.ImageOutput.
func (out *Output) FormatName() string { return "ztl" }

// Supports implements imageio.ImageOutput.
func (out *Output) Supports(feature string) bool {
	switch feature {
	case imageio.FeatureTiles,
		imageio.FeatureAlpha,
		imageio.FeatureNChannels,
		imageio.FeatureAppendSubimage,
		imageio.FeatureVolumes:
		return true
	}
	return false
}

// Open implements imageio.ImageOutput. AppendSubimage keeps every
// subimage already in the file and adds a new one after them.
func (out *Output) Open(name string, spec *imageio.ImageSpec, mode imageio.OpenMode) error {
	if !spec.Format.Valid() {
		return fmt.Errorf("ztl: invalid sample format")
	}
	if spec.NChannels < 1 || spec.NChannels > maxChannels {
		return fmt.Errorf("ztl: cannot write %d channels", spec.NChannels)
	}
	if spec.Width > maxDim || spec.Height > maxDim || spec.Depth > maxDim {
		return fmt.Errorf("ztl: cannot write %dx%dx%d image", spec.Width, spec.Height, spec.Depth)
	}

	committed := spec.Copy()
	committed.ChannelFormats = nil

	var f *os.File
	var offsets []uint64
	switch mode {
	case imageio.Create:
		var err error
		f, err = os.Create(name)
		if err != nil {
			return fmt.Errorf("ztl: %w", err)
		}
		ww := &wireWriter{w: f}
		ww.write([]byte(fileMagic))
		ww.u32(fileVersion)
		if ww.err != nil {
			f.Close()
			return fmt.Errorf("ztl: %w", ww.err)
		}
	case imageio.AppendSubimage:
		var err error
		f, offsets, err = openForAppend(name)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("ztl: %w: open mode %d", imageio.ErrUnsupported, mode)
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return fmt.Errorf("ztl: %w", err)
	}

	out.f = f
	out.offsets = append(offsets, uint64(end))
	out.data = make([]byte, committed.ImageBytes())
	out.level = zstd.SpeedDefault
	if lvl := spec.IntAttribute("CompressionLevel", 0); lvl > 0 {
		out.level = zstd.EncoderLevelFromZstd(lvl)
	}
	out.open = true
	out.Bind(committed)
	return nil
}

// openForAppend validates an existing file, reads its subimage
// directory and truncates the directory off so chunks can follow.
func openForAppend(name string) (*os.File, []uint64, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ztl: %w", err)
	}
	raw, err := readLayout(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	offsets := make([]uint64, len(raw))
	for i, o := range raw {
		offsets[i] = uint64(o)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("ztl: %w", err)
	}
	if err := f.Truncate(st.Size() - 8 - int64(len(offsets)*8)); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("ztl: %w", err)
	}
	return f, offsets, nil
}

// WriteScanline implements imageio.ImageOutput.
func (out *Output) WriteScanline(y, z int, srcFormat imageio.TypeDesc, data []byte, xstride int) error {
	if !out.open {
		return imageio.ErrNotOpen
	}
	s := out.Spec
	if y < 0 || y >= s.Height || z < 0 || z >= s.Depth {
		return imageio.ErrOutOfRange
	}
	native := out.ScanlineToNative(y, z, srcFormat, data, xstride)
	sb := s.ScanlineBytes()
	copy(out.data[(z*s.Height+y)*sb:], native[:sb])
	return nil
}

// WriteTile implements imageio.TileWriter, scattering the tile into the
// scanline-ordered buffer and clamping edge tiles.
func (out *Output) WriteTile(x, y, z int, srcFormat imageio.TypeDesc, data []byte, xstride, ystride, zstride int) error {
	if !out.open {
		return imageio.ErrNotOpen
	}
	s := out.Spec
	if !s.Tiled() {
		return imageio.ErrUnsupported
	}
	if x < 0 || y < 0 || z < 0 || x >= s.Width || y >= s.Height || z >= s.Depth {
		return imageio.ErrOutOfRange
	}
	native := out.TileToNative(x, y, z, srcFormat, data, xstride, ystride, zstride)
	td := s.TileDepth
	if td < 1 {
		td = 1
	}
	pb := s.PixelBytes()
	sb := s.ScanlineBytes()
	cw := min(s.TileWidth, s.Width-x)
	for tz := z; tz < min(z+td, s.Depth); tz++ {
		for ty := y; ty < min(y+s.TileHeight, s.Height); ty++ {
			src := native[((tz-z)*s.TileHeight+(ty-y))*s.TileWidth*pb:]
			dst := out.data[(tz*s.Height+ty)*sb+x*pb:]
			copy(dst[:cw*pb], src)
		}
	}
	return nil
}

// Close compresses the buffered subimage, writes it with a fresh
// directory and finalizes the file.
func (out *Output) Close() error {
	if !out.open {
		return nil
	}
	out.open = false
	defer out.Unbind()
	defer func() {
		out.f = nil
		out.data = nil
		out.offsets = nil
	}()

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(out.level))
	if err != nil {
		out.f.Close()
		return fmt.Errorf("ztl: %w", err)
	}
	defer enc.Close()

	ww := &wireWriter{w: out.f}
	writeSpec(ww, out.Spec)
	if out.Spec.Tiled() {
		out.writeTileChunks(ww, enc)
	} else {
		out.writeRowChunks(ww, enc)
	}
	for _, off := range out.offsets {
		ww.u64(off)
	}
	ww.u32(uint32(len(out.offsets)))
	ww.write([]byte(footerMagic))
	if ww.err != nil {
		out.f.Close()
		return fmt.Errorf("ztl: %w", ww.err)
	}
	return out.f.Close()
}

func (out *Output) writeRowChunks(ww *wireWriter, enc *zstd.Encoder) {
	s := out.Spec
	sb := s.ScanlineBytes()
	var buf []byte
	for i := 0; i < s.Height*s.Depth; i++ {
		buf = enc.EncodeAll(out.data[i*sb:(i+1)*sb], buf[:0])
		ww.u32(uint32(i))
		ww.u32(uint32(len(buf)))
		ww.write(buf)
	}
}

func (out *Output) writeTileChunks(ww *wireWriter, enc *zstd.Encoder) {
	s := out.Spec
	td := s.TileDepth
	if td < 1 {
		td = 1
	}
	pb := s.PixelBytes()
	sb := s.ScanlineBytes()
	tile := make([]byte, s.TileBytes())
	var buf []byte
	id := 0
	for z := 0; z < s.Depth; z += td {
		for y := 0; y < s.Height; y += s.TileHeight {
			for x := 0; x < s.Width; x += s.TileWidth {
				// Edge tiles carry zero padding past the image bounds.
				for i := range tile {
					tile[i] = 0
				}
				cw := min(s.TileWidth, s.Width-x)
				for tz := z; tz < min(z+td, s.Depth); tz++ {
					for ty := y; ty < min(y+s.TileHeight, s.Height); ty++ {
						dst := tile[((tz-z)*s.TileHeight+(ty-y))*s.TileWidth*pb:]
						src := out.data[(tz*s.Height+ty)*sb+x*pb:]
						copy(dst[:cw*pb], src)
					}
				}
				buf = enc.EncodeAll(tile, buf[:0])
				ww.u32(uint32(id))
				ww.u32(uint32(len(buf)))
				ww.write(buf)
				id++
			}
		}
	}
}
