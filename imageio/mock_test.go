package imageio_test

import (
	"fmt"

	"github.com/deoncoke/oiio/imageio"
)

// The "mem" test format stores images in a process-global map keyed by
// name, in native layout. It implements only the primitive contracts so
// the Reader/Writer fallback chains are what the tests exercise.

type memFile struct {
	spec *imageio.ImageSpec
	data []byte
}

var memFS = map[string]*memFile{}

type memInput struct {
	file          *memFile
	scanlineCalls int
}

func (m *memInput) FormatName() string { return "mem" }

func (m *memInput) Open(name string) (*imageio.ImageSpec, error) {
	f, ok := memFS[name]
	if !ok {
		return nil, fmt.Errorf("mem: %q does not exist", name)
	}
	m.file = f
	return f.spec.Copy(), nil
}

func (m *memInput) Close() error {
	m.file = nil
	return nil
}

func (m *memInput) ReadNativeScanline(y, z int, data []byte) error {
	if m.file == nil {
		return imageio.ErrNotOpen
	}
	s := m.file.spec
	if y < 0 || y >= s.Height {
		return imageio.ErrOutOfRange
	}
	m.scanlineCalls++
	sb := s.ScanlineBytes()
	copy(data[:sb], m.file.data[(z*s.Height+y)*sb:])
	return nil
}

// batchInput adds a native multi-scanline path so tests can verify the
// fallback is bypassed.
type batchInput struct {
	memInput
	batchCalls int
}

func (m *batchInput) ReadNativeScanlines(ybegin, yend, z int, data []byte) error {
	m.batchCalls++
	sb := m.file.spec.ScanlineBytes()
	for y := ybegin; y < yend; y++ {
		if err := m.ReadNativeScanline(y, z, data[(y-ybegin)*sb:]); err != nil {
			return err
		}
	}
	return nil
}

// tiledInput serves a tiled mem image one tile at a time.
type tiledInput struct {
	memInput
	tileCalls int
}

func (m *tiledInput) ReadNativeTile(x, y, z int, data []byte) error {
	if m.file == nil {
		return imageio.ErrNotOpen
	}
	s := m.file.spec
	tw, th := s.TileWidth, s.TileHeight
	pb := s.PixelBytes()
	m.tileCalls++
	di := 0
	for ty := y; ty < y+th; ty++ {
		src := m.file.data[(ty*s.Width+x)*pb:]
		copy(data[di:di+tw*pb], src)
		di += tw * pb
	}
	return nil
}

// memOutput writes through the translation engine into the mem map.
type memOutput struct {
	imageio.OutputBase
	file *memFile
}

func (m *memOutput) FormatName() string { return "mem" }

func (m *memOutput) Supports(feature string) bool {
	switch feature {
	case imageio.FeatureAlpha, imageio.FeatureNChannels:
		return true
	}
	return false
}

func (m *memOutput) Open(name string, spec *imageio.ImageSpec, mode imageio.OpenMode) error {
	if mode != imageio.Create {
		return imageio.ErrUnsupported
	}
	s := spec.Copy()
	m.file = &memFile{spec: s, data: make([]byte, s.ImageBytes())}
	memFS[name] = m.file
	m.Bind(s)
	return nil
}

func (m *memOutput) Close() error {
	m.Unbind()
	m.file = nil
	return nil
}

func (m *memOutput) WriteScanline(y, z int, srcFormat imageio.TypeDesc, data []byte, xstride int) error {
	if m.file == nil {
		return imageio.ErrNotOpen
	}
	s := m.file.spec
	if y < 0 || y >= s.Height {
		return imageio.ErrOutOfRange
	}
	native := m.ScanlineToNative(y, z, srcFormat, data, xstride)
	sb := s.ScanlineBytes()
	copy(m.file.data[(z*s.Height+y)*sb:], native)
	return nil
}

// tiledOutput adds a native tile path on top of memOutput.
type tiledOutput struct {
	memOutput
	tileCalls int
}

func (m *tiledOutput) WriteTile(x, y, z int, srcFormat imageio.TypeDesc, data []byte, xstride, ystride, zstride int) error {
	if m.file == nil {
		return imageio.ErrNotOpen
	}
	s := m.file.spec
	m.tileCalls++
	native := m.TileToNative(x, y, z, srcFormat, data, xstride, ystride, zstride)
	tw, th := s.TileWidth, s.TileHeight
	pb := s.PixelBytes()
	si := 0
	for ty := y; ty < y+th; ty++ {
		copy(m.file.data[(ty*s.Width+x)*pb:(ty*s.Width+x+tw)*pb], native[si:])
		si += tw * pb
	}
	return nil
}

func fillMem(name string, spec *imageio.ImageSpec) *memFile {
	f := &memFile{spec: spec, data: make([]byte, spec.ImageBytes())}
	for i := range f.data {
		f.data[i] = byte(i * 31)
	}
	memFS[name] = f
	return f
}
