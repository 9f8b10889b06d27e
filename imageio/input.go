package imageio

// ImageInput is the primitive read-side contract every format plugin must
// implement: identify the format, open a named resource (populating an
// ImageSpec), read one native-layout scanline, and close. A fresh
// instance starts closed; Close is idempotent and the instance may be
// re-opened afterwards, starting a fresh session.
//
// Scanline data returned by ReadNativeScanline is in the plugin's native
// layout as described by the spec returned from Open. Within one open
// instance the caller must serialize calls; distinct instances are
// independent.
type ImageInput interface {
	// FormatName returns the plugin's format name, e.g. "tiff".
	FormatName() string

	// Open opens the named resource and returns its populated spec.
	// Failure covers a missing file, a file of some other format, and a
	// malformed file alike.
	Open(name string) (*ImageSpec, error)

	// Close releases the open resource. Closing an already-closed
	// instance is a no-op.
	Close() error

	// ReadNativeScanline reads row y of depth slice z into data, which
	// must hold at least ScanlineBytes of the open spec.
	ReadNativeScanline(y, z int, data []byte) error
}

// Optional read-side capabilities. A plugin implements one of these only
// when it has a faster path than the generic fallback in Reader.

// NativeScanlinesReader reads a contiguous run of scanlines in one call.
type NativeScanlinesReader interface {
	ReadNativeScanlines(ybegin, yend, z int, data []byte) error
}

// TileReader reads the full tile with origin (x, y, z). Only meaningful
// when the open spec declares tile dimensions.
type TileReader interface {
	ReadNativeTile(x, y, z int, data []byte) error
}

// NativeTilesReader reads a tile-aligned rectangle of tiles in one call.
type NativeTilesReader interface {
	ReadNativeTiles(xbegin, xend, ybegin, yend, zbegin, zend int, data []byte) error
}

// Prober cheaply checks whether the named resource appears to be this
// plugin's format, without the cost of a full open.
type Prober interface {
	Probe(name string) bool
}

// SubimageSeeker positions a multi-image reader at the given subimage and
// returns its spec. Single-subimage formats never implement it.
type SubimageSeeker interface {
	SeekSubimage(index int) (*ImageSpec, error)
}

// DeepScanlineReader reads deep (variable-sample) scanline data.
type DeepScanlineReader interface {
	ReadNativeDeepScanlines(ybegin, yend, z int, dd *DeepData) error
}

// DeepTileReader reads deep (variable-sample) tile data.
type DeepTileReader interface {
	ReadNativeDeepTiles(xbegin, xend, ybegin, yend, zbegin, zend int, dd *DeepData) error
}

// Reader wraps an ImageInput and layers the default behavior for every
// optional operation: batch reads loop the primitive single-unit reads,
// channel-subset reads go through a temporary full-channel buffer, the
// probe falls back to open-and-discard, and subimage seeking and deep
// reads report ErrUnsupported. Whenever the wrapped plugin implements the
// corresponding capability interface the fallback is bypassed in favor of
// the plugin's own path.
type Reader struct {
	impl    ImageInput
	spec    *ImageSpec
	scratch []byte
}

// NewReader wraps a plugin-provided input instance.
func NewReader(impl ImageInput) *Reader {
	return &Reader{impl: impl}
}

// Impl returns the wrapped plugin instance.
func (r *Reader) Impl() ImageInput { return r.impl }

// FormatName returns the wrapped plugin's format name.
func (r *Reader) FormatName() string { return r.impl.FormatName() }

// Open opens the named resource and records its spec.
func (r *Reader) Open(name string) (*ImageSpec, error) {
	spec, err := r.impl.Open(name)
	if err != nil {
		return nil, err
	}
	r.spec = spec
	return spec, nil
}

// Spec returns the spec of the open image, or nil when closed.
func (r *Reader) Spec() *ImageSpec { return r.spec }

// Close closes the underlying instance. Safe to call repeatedly.
func (r *Reader) Close() error {
	r.spec = nil
	return r.impl.Close()
}

// Probe reports whether the named resource appears readable by this
// plugin. Without a plugin-native probe it opens and discards. Only call
// it on a closed instance.
func (r *Reader) Probe(name string) bool {
	if p, ok := r.impl.(Prober); ok {
		return p.Probe(name)
	}
	if _, err := r.impl.Open(name); err != nil {
		return false
	}
	r.impl.Close()
	return true
}

// ReadScanline reads one native-layout scanline.
func (r *Reader) ReadScanline(y, z int, data []byte) error {
	if r.spec == nil {
		return ErrNotOpen
	}
	return r.impl.ReadNativeScanline(y, z, data)
}

// ReadScanlines reads rows [ybegin, yend) of slice z into data, packed
// one scanline after another.
func (r *Reader) ReadScanlines(ybegin, yend, z int, data []byte) error {
	if r.spec == nil {
		return ErrNotOpen
	}
	if m, ok := r.impl.(NativeScanlinesReader); ok {
		return m.ReadNativeScanlines(ybegin, yend, z, data)
	}
	sb := r.spec.ScanlineBytes()
	for y := ybegin; y < yend; y++ {
		if err := r.impl.ReadNativeScanline(y, z, data[(y-ybegin)*sb:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadTile reads the full tile with origin (x, y, z). Formats without
// native tiles report ErrUnsupported.
func (r *Reader) ReadTile(x, y, z int, data []byte) error {
	if r.spec == nil {
		return ErrNotOpen
	}
	t, ok := r.impl.(TileReader)
	if !ok || !r.spec.Tiled() {
		return ErrUnsupported
	}
	return t.ReadNativeTile(x, y, z, data)
}

// ReadTiles reads the tile-aligned rectangle of tiles covering
// [xbegin,xend) x [ybegin,yend) x [zbegin,zend) into data, tiles packed
// in x-then-y-then-z order.
func (r *Reader) ReadTiles(xbegin, xend, ybegin, yend, zbegin, zend int, data []byte) error {
	if r.spec == nil {
		return ErrNotOpen
	}
	if m, ok := r.impl.(NativeTilesReader); ok {
		return m.ReadNativeTiles(xbegin, xend, ybegin, yend, zbegin, zend, data)
	}
	s := r.spec
	if !s.Tiled() {
		return ErrUnsupported
	}
	td := s.TileDepth
	if td < 1 {
		td = 1
	}
	tb := s.TileBytes()
	off := 0
	for z := zbegin; z < zend; z += td {
		for y := ybegin; y < yend; y += s.TileHeight {
			for x := xbegin; x < xend; x += s.TileWidth {
				if err := r.ReadTile(x, y, z, data[off:]); err != nil {
					return err
				}
				off += tb
			}
		}
	}
	return nil
}

// ReadChannels reads rows [ybegin, yend) of slice z, keeping only
// channels [chbegin, chend). The default path reads full pixels into an
// internal buffer and copies the requested channel bytes out.
func (r *Reader) ReadChannels(ybegin, yend, z, chbegin, chend int, data []byte) error {
	if r.spec == nil {
		return ErrNotOpen
	}
	s := r.spec
	if chbegin == 0 && chend == s.NChannels {
		return r.ReadScanlines(ybegin, yend, z, data)
	}
	nrows := yend - ybegin
	sb := s.ScanlineBytes()
	tmp := growScratch(&r.scratch, nrows*sb)
	if err := r.ReadScanlines(ybegin, yend, z, tmp); err != nil {
		return err
	}
	// Byte offsets of the requested channel range within one pixel.
	lo, hi := 0, 0
	for c := 0; c < chend; c++ {
		if c < chbegin {
			lo += s.ChannelFormat(c).Size()
		}
		hi += s.ChannelFormat(c).Size()
	}
	pb := s.PixelBytes()
	sub := hi - lo
	di := 0
	for i := 0; i < nrows*s.Width; i++ {
		copy(data[di:di+sub], tmp[i*pb+lo:])
		di += sub
	}
	return nil
}

// ReadImage reads the entire image in native layout into data, in
// scanline order regardless of the format's storage. Tiled formats are
// read tile by tile and scattered into place, clamping tiles that
// overhang the image edge.
func (r *Reader) ReadImage(data []byte) error {
	if r.spec == nil {
		return ErrNotOpen
	}
	s := r.spec
	d := s.Depth
	if d < 1 {
		d = 1
	}
	if !s.Tiled() {
		for z := 0; z < d; z++ {
			if err := r.ReadScanlines(0, s.Height, z, data[z*s.Height*s.ScanlineBytes():]); err != nil {
				return err
			}
		}
		return nil
	}
	td := s.TileDepth
	if td < 1 {
		td = 1
	}
	pb := s.PixelBytes()
	sb := s.ScanlineBytes()
	tile := growScratch(&r.scratch, s.TileBytes())
	for z := 0; z < d; z += td {
		for y := 0; y < s.Height; y += s.TileHeight {
			for x := 0; x < s.Width; x += s.TileWidth {
				if err := r.ReadTile(x, y, z, tile); err != nil {
					return err
				}
				cw := min(s.TileWidth, s.Width-x)
				for tz := z; tz < min(z+td, d); tz++ {
					for ty := y; ty < min(y+s.TileHeight, s.Height); ty++ {
						src := tile[((tz-z)*s.TileHeight+(ty-y))*s.TileWidth*pb:]
						dst := data[tz*s.Height*sb+ty*sb+x*pb:]
						copy(dst[:cw*pb], src)
					}
				}
			}
		}
	}
	return nil
}

// SeekSubimage positions the reader at the given subimage. Formats that
// store a single image report ErrUnsupported.
func (r *Reader) SeekSubimage(index int) (*ImageSpec, error) {
	if r.spec == nil {
		return nil, ErrNotOpen
	}
	s, ok := r.impl.(SubimageSeeker)
	if !ok {
		return nil, ErrUnsupported
	}
	spec, err := s.SeekSubimage(index)
	if err != nil {
		return nil, err
	}
	r.spec = spec
	return spec, nil
}

// ReadDeepScanlines reads deep scanline data, ErrUnsupported unless the
// plugin handles deep data natively.
func (r *Reader) ReadDeepScanlines(ybegin, yend, z int, dd *DeepData) error {
	if r.spec == nil {
		return ErrNotOpen
	}
	if dr, ok := r.impl.(DeepScanlineReader); ok {
		return dr.ReadNativeDeepScanlines(ybegin, yend, z, dd)
	}
	return ErrUnsupported
}

// ReadDeepTiles reads deep tile data, ErrUnsupported unless the plugin
// handles deep data natively.
func (r *Reader) ReadDeepTiles(xbegin, xend, ybegin, yend, zbegin, zend int, dd *DeepData) error {
	if r.spec == nil {
		return ErrNotOpen
	}
	if dr, ok := r.impl.(DeepTileReader); ok {
		return dr.ReadNativeDeepTiles(xbegin, xend, ybegin, yend, zbegin, zend, dd)
	}
	return ErrUnsupported
}
