// Package ztl implements a simple tiled image container compressed with
// zstandard. A file starts with a fixed header and carries one or more
// subimages back to back; a directory of subimage offsets sits at the
// end of the file so subimages can be appended without rewriting
// earlier ones.
//
// Each subimage serializes its geometry, a single sample format, its
// integer, float and string attributes, and a sequence of independently
// compressed chunks. Tiled subimages store one chunk per tile; untiled
// subimages store one chunk per scanline.
package ztl

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/deoncoke/oiio/imageio"
)

const (
	fileMagic   = "zTIL"
	footerMagic = "zEND"
	fileVersion = 1

	attrInt    = 0
	attrFloat  = 1
	attrString = 2
	attrBytes  = 3

	// Geometry limits, shared by the writer and the header parser so a
	// corrupt header cannot demand absurd allocations.
	maxDim      = 1 << 20
	maxChannels = 1024
)

// Record returns the plugin record for explicit registration.
func Record() imageio.PluginRecord {
	return imageio.PluginRecord{
		Name:       "ztl",
		Version:    imageio.ProtocolVersion,
		Input:      func() imageio.ImageInput { return NewInput() },
		Output:     func() imageio.ImageOutput { return NewOutput() },
		Extensions: []string{"ztl"},
	}
}

func init() {
	imageio.Register(Record())
}

type wireWriter struct {
	w   io.Writer
	err error
}

func (ww *wireWriter) u8(v uint8)  { ww.write([]byte{v}) }
func (ww *wireWriter) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	ww.write(b[:])
}

func (ww *wireWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	ww.write(b[:])
}

func (ww *wireWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	ww.write(b[:])
}

func (ww *wireWriter) str(s string) {
	if len(s) > math.MaxUint16 {
		ww.err = fmt.Errorf("ztl: string too long (%d bytes)", len(s))
		return
	}
	ww.u16(uint16(len(s)))
	ww.write([]byte(s))
}

func (ww *wireWriter) write(b []byte) {
	if ww.err != nil {
		return
	}
	_, ww.err = ww.w.Write(b)
}

type wireReader struct {
	r   io.Reader
	err error
}

func (wr *wireReader) u8() uint8 {
	var b [1]byte
	wr.read(b[:])
	return b[0]
}

func (wr *wireReader) u16() uint16 {
	var b [2]byte
	wr.read(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

func (wr *wireReader) u32() uint32 {
	var b [4]byte
	wr.read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (wr *wireReader) u64() uint64 {
	var b [8]byte
	wr.read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

func (wr *wireReader) str() string {
	n := wr.u16()
	b := make([]byte, n)
	wr.read(b)
	return string(b)
}

func (wr *wireReader) read(b []byte) {
	if wr.err != nil {
		return
	}
	_, wr.err = io.ReadFull(wr.r, b)
}

// writeSpec serializes geometry, format and the serializable attributes
// of a subimage.
func writeSpec(ww *wireWriter, spec *imageio.ImageSpec) {
	ww.u32(uint32(spec.Width))
	ww.u32(uint32(spec.Height))
	ww.u32(uint32(spec.Depth))
	ww.u32(uint32(spec.NChannels))
	ww.u8(uint8(spec.Format.Kind))
	ww.u8(uint8(spec.Format.Bits))
	ww.u16(0)
	ww.u32(uint32(spec.TileWidth))
	ww.u32(uint32(spec.TileHeight))
	ww.u32(uint32(spec.TileDepth))

	type wireAttr struct {
		name string
		kind uint8
		i    int64
		f    float64
		s    string
		b    []byte
	}
	var attrs []wireAttr
	for _, p := range spec.Attributes() {
		a := wireAttr{name: p.Name}
		switch v := p.Value.(type) {
		case int:
			a.kind, a.i = attrInt, int64(v)
		case int64:
			a.kind, a.i = attrInt, v
		case float32:
			a.kind, a.f = attrFloat, float64(v)
		case float64:
			a.kind, a.f = attrFloat, v
		case string:
			a.kind, a.s = attrString, v
		case []byte:
			a.kind, a.b = attrBytes, v
		default:
			continue
		}
		attrs = append(attrs, a)
	}
	ww.u32(uint32(len(attrs)))
	for _, a := range attrs {
		ww.str(a.name)
		ww.u8(a.kind)
		switch a.kind {
		case attrInt:
			ww.u64(uint64(a.i))
		case attrFloat:
			ww.u64(math.Float64bits(a.f))
		case attrString:
			ww.str(a.s)
		case attrBytes:
			ww.u32(uint32(len(a.b)))
			ww.write(a.b)
		}
	}
}

// readSpec parses what writeSpec produced.
func readSpec(wr *wireReader) (*imageio.ImageSpec, error) {
	spec := &imageio.ImageSpec{
		Width:     int(wr.u32()),
		Height:    int(wr.u32()),
		Depth:     int(wr.u32()),
		NChannels: int(wr.u32()),
	}
	spec.Format = imageio.TypeDesc{Kind: imageio.Kind(wr.u8()), Bits: int(wr.u8())}
	wr.u16()
	spec.TileWidth = int(wr.u32())
	spec.TileHeight = int(wr.u32())
	spec.TileDepth = int(wr.u32())
	if wr.err != nil {
		return nil, wr.err
	}
	if !spec.Format.Valid() {
		return nil, fmt.Errorf("ztl: invalid sample format %d/%d", spec.Format.Kind, spec.Format.Bits)
	}
	if spec.Width <= 0 || spec.Height <= 0 || spec.Depth <= 0 || spec.NChannels <= 0 {
		return nil, fmt.Errorf("ztl: invalid geometry")
	}
	if spec.Width > maxDim || spec.Height > maxDim || spec.Depth > maxDim ||
		spec.NChannels > maxChannels {
		return nil, fmt.Errorf("ztl: implausible geometry %dx%dx%d, %d channels",
			spec.Width, spec.Height, spec.Depth, spec.NChannels)
	}

	nattrs := wr.u32()
	for i := uint32(0); i < nattrs && wr.err == nil; i++ {
		name := wr.str()
		switch wr.u8() {
		case attrInt:
			spec.SetAttribute(name, int(int64(wr.u64())))
		case attrFloat:
			spec.SetAttribute(name, math.Float64frombits(wr.u64()))
		case attrString:
			spec.SetAttribute(name, wr.str())
		case attrBytes:
			b := make([]byte, wr.u32())
			wr.read(b)
			spec.SetAttribute(name, b)
		default:
			return nil, fmt.Errorf("ztl: unknown attribute type for %q", name)
		}
	}
	return spec, wr.err
}

// chunkCount is the number of compressed chunks a subimage stores.
func chunkCount(spec *imageio.ImageSpec) int {
	if spec.Tiled() {
		tx := (spec.Width + spec.TileWidth - 1) / spec.TileWidth
		ty := (spec.Height + spec.TileHeight - 1) / spec.TileHeight
		td := spec.TileDepth
		if td <= 0 {
			td = 1
		}
		tz := (spec.Depth + td - 1) / td
		return tx * ty * tz
	}
	return spec.Height * spec.Depth
}
