package imageio

// OpenMode selects how ImageOutput.Open treats the target resource.
type OpenMode int

const (
	// Create opens a fresh image, discarding any existing contents.
	Create OpenMode = iota
	// AppendSubimage appends another subimage to an existing file.
	// Only formats that answer Supports("appendsubimage") accept it.
	AppendSubimage
)

// Feature names understood by ImageOutput.Supports. Plugins answer false
// for any name they do not recognize.
const (
	FeatureTiles          = "tiles"          // native tiled storage
	FeatureAlpha          = "alpha"          // a fourth, alpha channel
	FeatureNChannels      = "nchannels"      // arbitrary channel counts
	FeatureAppendSubimage = "appendsubimage" // multi-image files
	FeatureChannelFormats = "channelformats" // per-channel sample types
	FeatureVolumes        = "volumes"        // depth > 1
)

// ImageOutput is the primitive write-side contract every format plugin
// must implement. Open commits the target ImageSpec for the life of the
// open instance; WriteScanline accepts data in the caller's layout and
// must run it through the translation engine before storage. Close is
// idempotent and finalizes the file.
//
// Policy obligations carried by implementations, verified by conformance
// tests rather than enforced here: a sample type the format cannot store
// is silently replaced by the closest representable one that loses the
// least precision; an unsupported channel count fails Open, except that
// a 4-channel request against an alpha-less format may drop the fourth
// channel; an unsupported compression request is silently replaced by a
// lossless alternative, never a lossy one.
type ImageOutput interface {
	// FormatName returns the plugin's format name, e.g. "tiff".
	FormatName() string

	// Supports answers a capability query for one of the Feature names.
	Supports(feature string) bool

	// Open prepares the named resource for writing an image with the
	// given spec.
	Open(name string, spec *ImageSpec, mode OpenMode) error

	// Close finalizes and releases the resource. Closing an
	// already-closed instance is a no-op.
	Close() error

	// WriteScanline writes row y of depth slice z. data holds one
	// scanline of srcFormat samples with the given x stride
	// (AutoStride for densely packed).
	WriteScanline(y, z int, srcFormat TypeDesc, data []byte, xstride int) error
}

// Optional write-side capabilities, bypassing the Writer fallbacks.

// ScanlinesWriter writes a contiguous run of scanlines in one call.
type ScanlinesWriter interface {
	WriteScanlines(ybegin, yend, z int, srcFormat TypeDesc, data []byte, xstride, ystride int) error
}

// TileWriter writes the full tile with origin (x, y, z).
type TileWriter interface {
	WriteTile(x, y, z int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) error
}

// TilesWriter writes a tile-aligned rectangle of tiles in one call.
type TilesWriter interface {
	WriteTiles(xbegin, xend, ybegin, yend, zbegin, zend int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) error
}

// RectangleWriter writes an arbitrary axis-aligned region.
type RectangleWriter interface {
	WriteRectangle(xbegin, xend, ybegin, yend, zbegin, zend int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) error
}

// DeepScanlineWriter writes deep (variable-sample) scanline data.
type DeepScanlineWriter interface {
	WriteDeepScanlines(ybegin, yend, z int, dd *DeepData) error
}

// DeepTileWriter writes deep (variable-sample) tile data.
type DeepTileWriter interface {
	WriteDeepTiles(xbegin, xend, ybegin, yend, zbegin, zend int, dd *DeepData) error
}

// Writer wraps an ImageOutput and layers the default behavior for the
// optional batch operations: multi-scanline and multi-tile writes loop
// the single-unit primitives, rectangle and deep writes report
// ErrUnsupported, and WriteImage loops scanlines or tiles according to
// the committed spec. A plugin implementing the matching capability
// interface takes over from the fallback.
type Writer struct {
	impl    ImageOutput
	spec    *ImageSpec
	scratch []byte
}

// NewWriter wraps a plugin-provided output instance.
func NewWriter(impl ImageOutput) *Writer {
	return &Writer{impl: impl}
}

// Impl returns the wrapped plugin instance.
func (w *Writer) Impl() ImageOutput { return w.impl }

// FormatName returns the wrapped plugin's format name.
func (w *Writer) FormatName() string { return w.impl.FormatName() }

// Supports answers the wrapped plugin's capability query.
func (w *Writer) Supports(feature string) bool { return w.impl.Supports(feature) }

// Open opens the named resource for writing and records the spec.
func (w *Writer) Open(name string, spec *ImageSpec, mode OpenMode) error {
	if err := w.impl.Open(name, spec, mode); err != nil {
		return err
	}
	w.spec = spec
	return nil
}

// Spec returns the committed spec, or nil when closed.
func (w *Writer) Spec() *ImageSpec { return w.spec }

// Close finalizes the file. Safe to call repeatedly.
func (w *Writer) Close() error {
	w.spec = nil
	return w.impl.Close()
}

// WriteScanline writes one scanline of caller-layout data.
func (w *Writer) WriteScanline(y, z int, srcFormat TypeDesc, data []byte, xstride int) error {
	if w.spec == nil {
		return ErrNotOpen
	}
	return w.impl.WriteScanline(y, z, srcFormat, data, xstride)
}

// WriteScanlines writes rows [ybegin, yend) of slice z.
func (w *Writer) WriteScanlines(ybegin, yend, z int, srcFormat TypeDesc, data []byte, xstride, ystride int) error {
	if w.spec == nil {
		return ErrNotOpen
	}
	if m, ok := w.impl.(ScanlinesWriter); ok {
		return m.WriteScanlines(ybegin, yend, z, srcFormat, data, xstride, ystride)
	}
	if xstride == AutoStride {
		xstride = w.spec.NChannels * srcFormat.Size()
	}
	if ystride == AutoStride {
		ystride = w.spec.Width * xstride
	}
	for y := ybegin; y < yend; y++ {
		if err := w.impl.WriteScanline(y, z, srcFormat, data[(y-ybegin)*ystride:], xstride); err != nil {
			return err
		}
	}
	return nil
}

// WriteTile writes one full tile. Formats without a tile path (native or
// buffered) report ErrUnsupported.
func (w *Writer) WriteTile(x, y, z int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) error {
	if w.spec == nil {
		return ErrNotOpen
	}
	t, ok := w.impl.(TileWriter)
	if !ok || !w.spec.Tiled() {
		return ErrUnsupported
	}
	return t.WriteTile(x, y, z, srcFormat, data, xstride, ystride, zstride)
}

// WriteTiles writes the tile-aligned rectangle of tiles covering the
// given bounds, data packed one full tile after another in x-then-y
// then-z order.
func (w *Writer) WriteTiles(xbegin, xend, ybegin, yend, zbegin, zend int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) error {
	if w.spec == nil {
		return ErrNotOpen
	}
	if m, ok := w.impl.(TilesWriter); ok {
		return m.WriteTiles(xbegin, xend, ybegin, yend, zbegin, zend, srcFormat, data, xstride, ystride, zstride)
	}
	s := w.spec
	if !s.Tiled() {
		return ErrUnsupported
	}
	td := s.TileDepth
	if td < 1 {
		td = 1
	}
	tileBytes := s.TileWidth * s.TileHeight * td * s.NChannels * srcFormat.Size()
	off := 0
	for z := zbegin; z < zend; z += td {
		for y := ybegin; y < yend; y += s.TileHeight {
			for x := xbegin; x < xend; x += s.TileWidth {
				if err := w.WriteTile(x, y, z, srcFormat, data[off:], xstride, ystride, zstride); err != nil {
					return err
				}
				off += tileBytes
			}
		}
	}
	return nil
}

// WriteRectangle writes an arbitrary region, ErrUnsupported unless the
// plugin implements RectangleWriter.
func (w *Writer) WriteRectangle(xbegin, xend, ybegin, yend, zbegin, zend int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) error {
	if w.spec == nil {
		return ErrNotOpen
	}
	if m, ok := w.impl.(RectangleWriter); ok {
		return m.WriteRectangle(xbegin, xend, ybegin, yend, zbegin, zend, srcFormat, data, xstride, ystride, zstride)
	}
	return ErrUnsupported
}

// WriteImage writes the entire image from data, which is in scanline
// order with the given strides. Tiled specs are written tile by tile,
// gathering each tile from the scanline-ordered source and zero-padding
// tiles that overhang the image edge.
func (w *Writer) WriteImage(srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) error {
	if w.spec == nil {
		return ErrNotOpen
	}
	s := w.spec
	d := s.Depth
	if d < 1 {
		d = 1
	}
	if xstride == AutoStride {
		xstride = s.NChannels * srcFormat.Size()
	}
	if ystride == AutoStride {
		ystride = s.Width * xstride
	}
	if zstride == AutoStride {
		zstride = s.Height * ystride
	}
	if !s.Tiled() {
		for z := 0; z < d; z++ {
			if err := w.WriteScanlines(0, s.Height, z, srcFormat, data[z*zstride:], xstride, ystride); err != nil {
				return err
			}
		}
		return nil
	}
	td := s.TileDepth
	if td < 1 {
		td = 1
	}
	srcPixel := s.NChannels * srcFormat.Size()
	tile := growScratch(&w.scratch, s.TileWidth*s.TileHeight*td*srcPixel)
	for z := 0; z < d; z += td {
		for y := 0; y < s.Height; y += s.TileHeight {
			for x := 0; x < s.Width; x += s.TileWidth {
				for i := range tile {
					tile[i] = 0
				}
				cw := min(s.TileWidth, s.Width-x)
				for tz := z; tz < min(z+td, d); tz++ {
					for ty := y; ty < min(y+s.TileHeight, s.Height); ty++ {
						src := data[tz*zstride+ty*ystride+x*xstride:]
						dst := tile[((tz-z)*s.TileHeight+(ty-y))*s.TileWidth*srcPixel:]
						if xstride == srcPixel {
							copy(dst[:cw*srcPixel], src)
						} else {
							for i := 0; i < cw; i++ {
								copy(dst[i*srcPixel:(i+1)*srcPixel], src[i*xstride:])
							}
						}
					}
				}
				if err := w.WriteTile(x, y, z, srcFormat, tile, AutoStride, AutoStride, AutoStride); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// WriteDeepScanlines writes deep scanline data, ErrUnsupported unless
// the plugin handles deep data natively.
func (w *Writer) WriteDeepScanlines(ybegin, yend, z int, dd *DeepData) error {
	if w.spec == nil {
		return ErrNotOpen
	}
	if dw, ok := w.impl.(DeepScanlineWriter); ok {
		return dw.WriteDeepScanlines(ybegin, yend, z, dd)
	}
	return ErrUnsupported
}

// WriteDeepTiles writes deep tile data, ErrUnsupported unless the plugin
// handles deep data natively.
func (w *Writer) WriteDeepTiles(xbegin, xend, ybegin, yend, zbegin, zend int, dd *DeepData) error {
	if w.spec == nil {
		return ErrNotOpen
	}
	if dw, ok := w.impl.(DeepTileWriter); ok {
		return dw.WriteDeepTiles(xbegin, xend, ybegin, yend, zbegin, zend, dd)
	}
	return ErrUnsupported
}

// OutputBase carries the state every write-side plugin needs: the
// committed spec, the dither seed taken from the spec's "dither"
// attribute, and a per-instance scratch buffer for the translation
// engine. Plugins embed it and call Bind from their Open.
type OutputBase struct {
	Spec    *ImageSpec
	seed    uint32
	scratch []byte
}

// Bind commits the spec for this open session. The spec's integer
// "dither" attribute, when nonzero, seeds dithering for every narrowing
// conversion to 8-bit samples.
func (b *OutputBase) Bind(spec *ImageSpec) {
	b.Spec = spec
	b.seed = uint32(spec.IntAttribute("dither", 0))
}

// Unbind clears the committed spec at close.
func (b *OutputBase) Unbind() {
	b.Spec = nil
}

// ScanlineToNative translates one caller-layout scanline into the
// committed native layout.
func (b *OutputBase) ScanlineToNative(y, z int, srcFormat TypeDesc, data []byte, xstride int) []byte {
	return ToNativeScanline(b.Spec, y, z, srcFormat, data, xstride, b.seed, &b.scratch)
}

// TileToNative translates one caller-layout tile into the committed
// native layout.
func (b *OutputBase) TileToNative(x, y, z int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) []byte {
	return ToNativeTile(b.Spec, x, y, z, srcFormat, data, xstride, ystride, zstride, b.seed, &b.scratch)
}

// RectToNative translates an arbitrary caller-layout rectangle into the
// committed native layout.
func (b *OutputBase) RectToNative(xbegin, xend, ybegin, yend, zbegin, zend int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int) []byte {
	return ToNativeRectangle(b.Spec, xbegin, xend, ybegin, yend, zbegin, zend, srcFormat, data, xstride, ystride, zstride, b.seed, &b.scratch)
}
