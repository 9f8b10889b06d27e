// Package pnm implements the imageio contracts for binary portable
// anymap files: P5 (grayscale) and P6 (RGB), 8 bits per sample. The
// format has no alpha channel, no tiling, and a single image per file,
// which makes it the reference plugin for the framework's fallback and
// policy behavior.
package pnm

import (
	"fmt"
	"os"

	"github.com/deoncoke/oiio/imageio"
)

// Record returns the plugin record for explicit registration into a
// caller-owned registry.
func Record() imageio.PluginRecord {
	return imageio.PluginRecord{
		Name:       "pnm",
		Version:    imageio.ProtocolVersion,
		Input:      func() imageio.ImageInput { return NewInput() },
		Output:     func() imageio.ImageOutput { return NewOutput() },
		Extensions: []string{"ppm", "pgm", "pnm"},
	}
}

func init() {
	imageio.Register(Record())
}

// Input reads P5/P6 files.
type Input struct {
	f         *os.File
	spec      *imageio.ImageSpec
	dataStart int64
}

// NewInput creates a closed pnm reader.
func NewInput() *Input {
	return &Input{}
}

// FormatName implements imageio.ImageInput.
func (in *Input) FormatName() string { return "pnm" }

// Probe implements imageio.Prober by checking the two magic bytes.
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
	return magic[0] == 'P' && (magic[1] == '5' || magic[1] == '6')
}

// Open implements imageio.ImageInput.
func (in *Input) Open(name string) (*imageio.ImageSpec, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("pnm: %w", err)
	}
	spec, dataStart, err := parseHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	in.f = f
	in.spec = spec
	in.dataStart = dataStart
	return spec.Copy(), nil
}

// Close implements imageio.ImageInput.
func (in *Input) Close() error {
	if in.f == nil {
		return nil
	}
	err := in.f.Close()
	in.f = nil
	in.spec = nil
	return err
}

// ReadNativeScanline implements imageio.ImageInput.
func (in *Input) ReadNativeScanline(y, z int, data []byte) error {
	if in.f == nil {
		return imageio.ErrNotOpen
	}
	s := in.spec
	if y < 0 || y >= s.Height || z != 0 {
		return imageio.ErrOutOfRange
	}
	sb := s.ScanlineBytes()
	if _, err := in.f.ReadAt(data[:sb], in.dataStart+int64(y)*int64(sb)); err != nil {
		return fmt.Errorf("pnm: reading scanline %d: %w", y, err)
	}
	return nil
}

// parseHeader reads the magic, dimensions and maxval, skipping
// whitespace and '#' comments, and returns the spec together with the
// offset of the first pixel byte.
func parseHeader(f *os.File) (*imageio.ImageSpec, int64, error) {
	buf := make([]byte, 512)
	n, err := f.ReadAt(buf, 0)
	if n < 2 {
		return nil, 0, fmt.Errorf("pnm: truncated header: %w", err)
	}
	buf = buf[:n]
	if buf[0] != 'P' || (buf[1] != '5' && buf[1] != '6') {
		return nil, 0, fmt.Errorf("pnm: not a binary pnm file")
	}
	nch := 1
	if buf[1] == '6' {
		nch = 3
	}

	pos := 2
	fields := [3]int{}
	for i := 0; i < 3; i++ {
		// Skip whitespace and comment lines.
		for pos < len(buf) {
			c := buf[pos]
			if c == '#' {
				for pos < len(buf) && buf[pos] != '\n' {
					pos++
				}
				continue
			}
			if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
				break
			}
			pos++
		}
		start := pos
		for pos < len(buf) && buf[pos] >= '0' && buf[pos] <= '9' {
			fields[i] = fields[i]*10 + int(buf[pos]-'0')
			pos++
		}
		if pos == start {
			return nil, 0, fmt.Errorf("pnm: malformed header")
		}
	}
	if pos >= len(buf) {
		return nil, 0, fmt.Errorf("pnm: malformed header")
	}
	pos++ // single whitespace byte after maxval

	width, height, maxval := fields[0], fields[1], fields[2]
	if width <= 0 || height <= 0 {
		return nil, 0, fmt.Errorf("pnm: invalid dimensions %dx%d", width, height)
	}
	if maxval <= 0 || maxval > 255 {
		return nil, 0, fmt.Errorf("pnm: unsupported maxval %d", maxval)
	}
	spec := imageio.NewImageSpec(width, height, nch, imageio.TypeUInt8)
	spec.SetAttribute("pnm:MaxVal", maxval)
	return spec, int64(pos), nil
}

// Output writes P5/P6 files. All sample types are stored as 8-bit; a
// 4-channel spec is accepted with the alpha channel silently dropped,
// any other unsupported channel count fails Open.
type Output struct {
	imageio.OutputBase
	f         *os.File
	dataStart int64
	nch       int // channels on disk: 1 or 3
	rowBuf    []byte
}

// NewOutput creates a closed pnm writer.
func NewOutput() *Output {
	return &Output{}
}

// FormatName implements imageio.ImageOutput.
func (out *Output) FormatName() string { return "pnm" }

// Supports implements imageio.ImageOutput. pnm has no optional
// capabilities at all.
func (out *Output) Supports(feature string) bool { return false }

// Open implements imageio.ImageOutput.
func (out *Output) Open(name string, spec *imageio.ImageSpec, mode imageio.OpenMode) error {
	if mode != imageio.Create {
		return fmt.Errorf("pnm: %w: single-image format cannot append", imageio.ErrUnsupported)
	}
	if spec.Depth > 1 {
		return fmt.Errorf("pnm: volumetric images not supported")
	}
	switch spec.NChannels {
	case 1:
		out.nch = 1
	case 3:
		out.nch = 3
	case 4:
		// An alpha-less format accepts RGBA and drops the alpha.
		out.nch = 3
	default:
		return fmt.Errorf("pnm: cannot write %d channels", spec.NChannels)
	}

	committed := spec.Copy()
	committed.Format = imageio.TypeUInt8
	committed.ChannelFormats = nil

	magic := "P6"
	if out.nch == 1 {
		magic = "P5"
	}
	header := fmt.Sprintf("%s\n%d %d\n255\n", magic, spec.Width, spec.Height)

	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("pnm: %w", err)
	}
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return fmt.Errorf("pnm: %w", err)
	}
	out.f = f
	out.dataStart = int64(len(header))
	out.Bind(committed)
	return nil
}

// Close implements imageio.ImageOutput.
func (out *Output) Close() error {
	if out.f == nil {
		return nil
	}
	err := out.f.Close()
	out.f = nil
	out.Unbind()
	return err
}

// WriteScanline implements imageio.ImageOutput.
func (out *Output) WriteScanline(y, z int, srcFormat imageio.TypeDesc, data []byte, xstride int) error {
	if out.f == nil {
		return imageio.ErrNotOpen
	}
	s := out.Spec
	if y < 0 || y >= s.Height || z != 0 {
		return imageio.ErrOutOfRange
	}
	native := out.ScanlineToNative(y, z, srcFormat, data, xstride)
	row := native
	if out.nch != s.NChannels {
		if out.rowBuf == nil {
			out.rowBuf = make([]byte, s.Width*out.nch)
		}
		for x := 0; x < s.Width; x++ {
			copy(out.rowBuf[x*out.nch:], native[x*s.NChannels:x*s.NChannels+out.nch])
		}
		row = out.rowBuf
	}
	off := out.dataStart + int64(y)*int64(s.Width*out.nch)
	if _, err := out.f.WriteAt(row, off); err != nil {
		return fmt.Errorf("pnm: writing scanline %d: %w", y, err)
	}
	return nil
}
