package ztl

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/deoncoke/oiio/imageio"
)

type chunkRef struct {
	off  int64
	size int
}

// Input reads ztl files. Chunks are decompressed on demand and the most
// recently used tile is cached, so reading scanlines in order touches
// each tile row once per tile.
type Input struct {
	f       *os.File
	dec     *zstd.Decoder
	offsets []int64
	spec    *imageio.ImageSpec
	chunks  []chunkRef

	cacheID   int
	cacheData []byte
}

// NewInput creates a closed ztl reader.
func NewInput() *Input {
	return &Input{cacheID: -1}
}

// FormatName implements imageio.ImageInput.
func (in *Input) FormatName() string { return "ztl" }

// Probe implements imageio.Prober.
func (in *Input) Probe(name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return string(magic[:]) == fileMagic
}

// Open implements imageio.ImageInput.
func (in *Input) Open(name string) (*imageio.ImageSpec, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("ztl: %w", err)
	}
	offsets, err := readLayout(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ztl: %w", err)
	}
	in.f, in.dec, in.offsets = f, dec, offsets
	spec, err := in.SeekSubimage(0)
	if err != nil {
		in.Close()
		return nil, err
	}
	return spec, nil
}

// readLayout validates the file header and returns the subimage offsets
// from the trailing directory.
func readLayout(f *os.File) ([]int64, error) {
	var head [8]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return nil, fmt.Errorf("ztl: short header: %w", err)
	}
	if string(head[:4]) != fileMagic {
		return nil, fmt.Errorf("ztl: bad magic")
	}
	if v := le32(head[4:]); v != fileVersion {
		return nil, fmt.Errorf("ztl: unsupported file version %d", v)
	}

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("ztl: %w", err)
	}
	var tail [8]byte
	if st.Size() < 16 {
		return nil, fmt.Errorf("ztl: truncated file")
	}
	if _, err := f.ReadAt(tail[:], st.Size()-8); err != nil {
		return nil, fmt.Errorf("ztl: %w", err)
	}
	if string(tail[4:]) != footerMagic {
		return nil, fmt.Errorf("ztl: missing directory")
	}
	count := int(le32(tail[:4]))
	if count < 1 || st.Size() < int64(16+count*8) {
		return nil, fmt.Errorf("ztl: corrupt directory")
	}

	dir := make([]byte, count*8)
	if _, err := f.ReadAt(dir, st.Size()-8-int64(len(dir))); err != nil {
		return nil, fmt.Errorf("ztl: %w", err)
	}
	offsets := make([]int64, count)
	for i := range offsets {
		offsets[i] = int64(le64(dir[i*8:]))
	}
	return offsets, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	return uint64(le32(b)) | uint64(le32(b[4:]))<<32
}

// SeekSubimage implements imageio.SubimageSeeker.
func (in *Input) SeekSubimage(index int) (*imageio.ImageSpec, error) {
	if in.f == nil {
		return nil, imageio.ErrNotOpen
	}
	if index < 0 || index >= len(in.offsets) {
		return nil, fmt.Errorf("ztl: %w: subimage %d of %d", imageio.ErrOutOfRange, index, len(in.offsets))
	}
	if _, err := in.f.Seek(in.offsets[index], io.SeekStart); err != nil {
		return nil, fmt.Errorf("ztl: %w", err)
	}
	wr := &wireReader{r: in.f}
	spec, err := readSpec(wr)
	if err != nil {
		return nil, err
	}

	n := chunkCount(spec)
	chunks := make([]chunkRef, n)
	for i := 0; i < n; i++ {
		id := int(wr.u32())
		size := int(wr.u32())
		if wr.err != nil {
			return nil, fmt.Errorf("ztl: %w", wr.err)
		}
		if id < 0 || id >= n {
			return nil, fmt.Errorf("ztl: chunk id %d out of range", id)
		}
		pos, err := in.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("ztl: %w", err)
		}
		chunks[id] = chunkRef{off: pos, size: size}
		if _, err := in.f.Seek(int64(size), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("ztl: %w", err)
		}
	}

	in.spec = spec
	in.chunks = chunks
	in.cacheID = -1
	in.cacheData = nil
	return spec.Copy(), nil
}

// Close implements imageio.ImageInput.
func (in *Input) Close() error {
	if in.dec != nil {
		in.dec.Close()
		in.dec = nil
	}
	in.spec = nil
	in.chunks = nil
	in.cacheData = nil
	in.cacheID = -1
	if in.f == nil {
		return nil
	}
	err := in.f.Close()
	in.f = nil
	return err
}

// chunk decompresses chunk id, serving repeats from the one-entry cache.
func (in *Input) chunk(id int) ([]byte, error) {
	if id == in.cacheID {
		return in.cacheData, nil
	}
	ref := in.chunks[id]
	raw := make([]byte, ref.size)
	if _, err := in.f.ReadAt(raw, ref.off); err != nil {
		return nil, fmt.Errorf("ztl: %w", err)
	}
	out, err := in.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("ztl: chunk %d: %w", id, err)
	}
	in.cacheID, in.cacheData = id, out
	return out, nil
}

// ReadNativeScanline implements imageio.ImageInput.
func (in *Input) ReadNativeScanline(y, z int, data []byte) error {
	if in.spec == nil {
		return imageio.ErrNotOpen
	}
	s := in.spec
	if y < 0 || y >= s.Height || z < 0 || z >= s.Depth {
		return imageio.ErrOutOfRange
	}
	sb := s.ScanlineBytes()
	if !s.Tiled() {
		row, err := in.chunk(z*s.Height + y)
		if err != nil {
			return err
		}
		if len(row) < sb {
			return fmt.Errorf("ztl: scanline chunk too short")
		}
		copy(data[:sb], row)
		return nil
	}

	pb := s.PixelBytes()
	td := s.TileDepth
	if td <= 0 {
		td = 1
	}
	xtiles := (s.Width + s.TileWidth - 1) / s.TileWidth
	ytiles := (s.Height + s.TileHeight - 1) / s.TileHeight
	ty, tz := y/s.TileHeight, z/td
	ly, lz := y%s.TileHeight, z%td
	for tx := 0; tx < xtiles; tx++ {
		tile, err := in.chunk((tz*ytiles+ty)*xtiles + tx)
		if err != nil {
			return err
		}
		x0 := tx * s.TileWidth
		cw := min(s.TileWidth, s.Width-x0)
		src := tile[((lz*s.TileHeight)+ly)*s.TileWidth*pb:]
		copy(data[x0*pb:x0*pb+cw*pb], src)
	}
	return nil
}

// ReadNativeTile implements imageio.TileReader.
func (in *Input) ReadNativeTile(x, y, z int, data []byte) error {
	if in.spec == nil {
		return imageio.ErrNotOpen
	}
	s := in.spec
	if !s.Tiled() {
		return imageio.ErrUnsupported
	}
	if x < 0 || y < 0 || z < 0 || x >= s.Width || y >= s.Height || z >= s.Depth {
		return imageio.ErrOutOfRange
	}
	td := s.TileDepth
	if td <= 0 {
		td = 1
	}
	xtiles := (s.Width + s.TileWidth - 1) / s.TileWidth
	ytiles := (s.Height + s.TileHeight - 1) / s.TileHeight
	id := ((z/td)*ytiles+y/s.TileHeight)*xtiles + x/s.TileWidth
	tile, err := in.chunk(id)
	if err != nil {
		return err
	}
	copy(data[:len(tile)], tile)
	return nil
}
