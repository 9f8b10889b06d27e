package imageio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AutoStride asks the translation engine to compute a stride from the
// pixel size and region width, assuming densely packed data.
const AutoStride = 0

// ToNativeScanline converts one scanline of caller-layout pixels (row y,
// depth slice z, x starting at 0) into the open image's native layout.
// See ToNativeRectangle for the conversion rules and the scratch buffer
// contract.
func ToNativeScanline(spec *ImageSpec, y, z int, srcFormat TypeDesc, data []byte, xstride int, ditherSeed uint32, scratch *[]byte) []byte {
	return ToNativeRectangle(spec, 0, spec.Width, y, y+1, z, z+1,
		srcFormat, data, xstride, AutoStride, AutoStride, ditherSeed, scratch)
}

// ToNativeTile converts one full tile whose origin is (x, y, z) into the
// native layout. The spec must declare tile dimensions.
func ToNativeTile(spec *ImageSpec, x, y, z int, srcFormat TypeDesc, data []byte, xstride, ystride, zstride int, ditherSeed uint32, scratch *[]byte) []byte {
	td := spec.TileDepth
	if td < 1 {
		td = 1
	}
	return ToNativeRectangle(spec, x, x+spec.TileWidth, y, y+spec.TileHeight, z, z+td,
		srcFormat, data, xstride, ystride, zstride, ditherSeed, scratch)
}

// ToNativeRectangle converts an axis-aligned box of pixels from the
// caller's layout (srcFormat samples, spec.NChannels channels, the given
// byte strides) into the contiguous native layout implied by spec's
// channel formats, returning a slice holding the result.
//
// If the source already is in native layout and densely packed, the input
// slice itself is returned and no copy is made. Otherwise the result is
// written into *scratch, which is grown as needed and reused across
// calls; the caller owns it and must supply a distinct scratch per
// concurrent call. The engine keeps no state of its own.
//
// Sample conversion rules: widening an integer to a wider integer of the
// same kind is an exact left shift; converting float to an integer maps
// the unit range onto the full destination range with round-to-nearest;
// every other pairing scales round-to-nearest between the two ranges.
// When ditherSeed is nonzero and a sample narrows to an 8-bit integer, a
// per-pixel offset keyed by (ditherSeed, absolute x, y, z) is added
// before the final clamp. The rectangle bounds are absolute coordinates,
// so a dither pattern stays aligned regardless of how the image is
// split into rectangles.
//
// Requesting a sample type for which TypeDesc.Valid is false is a
// contract violation and panics.
func ToNativeRectangle(spec *ImageSpec, xbegin, xend, ybegin, yend, zbegin, zend int,
	srcFormat TypeDesc, data []byte, xstride, ystride, zstride int,
	ditherSeed uint32, scratch *[]byte) []byte {

	w := xend - xbegin
	h := yend - ybegin
	d := zend - zbegin

	srcPixel := spec.NChannels * srcFormat.Size()
	if xstride == AutoStride {
		xstride = srcPixel
	}
	if ystride == AutoStride {
		ystride = w * xstride
	}
	if zstride == AutoStride {
		zstride = h * ystride
	}

	native, uniform := spec.uniformFormat()
	dstPixel := spec.PixelBytes()
	packed := xstride == srcPixel && ystride == w*xstride && zstride == h*ystride

	// Fast path: nothing to convert, nothing to gather.
	if uniform && srcFormat == native && packed {
		return data[:d*h*w*dstPixel]
	}

	out := growScratch(scratch, d*h*w*dstPixel)

	// Row copy path: same format, rows just need gathering.
	if uniform && srcFormat == native && xstride == srcPixel {
		rowBytes := w * srcPixel
		di := 0
		for z := 0; z < d; z++ {
			for y := 0; y < h; y++ {
				row := data[z*zstride+y*ystride:]
				copy(out[di:di+rowBytes], row)
				di += rowBytes
			}
		}
		return out
	}

	// Element-wise conversion.
	type chanDst struct {
		format TypeDesc
		size   int
		dither bool
	}
	chans := make([]chanDst, spec.NChannels)
	anyDither := false
	for c := range chans {
		cf := spec.ChannelFormat(c)
		if !cf.Valid() || !srcFormat.Valid() {
			panic(fmt.Sprintf("imageio: unsupported sample conversion %v to %v", srcFormat, cf))
		}
		dith := ditherSeed != 0 && !cf.IsFloat() && cf.Bits == 8 &&
			(srcFormat.IsFloat() || srcFormat.Bits > 8)
		chans[c] = chanDst{format: cf, size: cf.Size(), dither: dith}
		anyDither = anyDither || dith
	}

	srcSize := srcFormat.Size()
	di := 0
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			row := data[z*zstride+y*ystride:]
			for x := 0; x < w; x++ {
				px := row[x*xstride:]
				var offset float64
				if anyDither {
					offset = DitherOffset(ditherSeed, xbegin+x, ybegin+y, zbegin+z)
				}
				for c := range chans {
					ch := &chans[c]
					dith := 0.0
					if ch.dither {
						dith = offset
					}
					convertSample(out[di:], ch.format, px[c*srcSize:], srcFormat, dith)
					di += ch.size
				}
			}
		}
	}
	return out
}

// uniformFormat returns the single sample type shared by all channels,
// or false if channels differ.
func (s *ImageSpec) uniformFormat() (TypeDesc, bool) {
	if len(s.ChannelFormats) == 0 {
		return s.Format, true
	}
	f := s.ChannelFormats[0]
	for _, cf := range s.ChannelFormats[1:] {
		if cf != f {
			return TypeDesc{}, false
		}
	}
	return f, true
}

// growScratch resizes *scratch to exactly n bytes, reallocating only when
// capacity is insufficient, and returns the resized slice.
func growScratch(scratch *[]byte, n int) []byte {
	if cap(*scratch) < n {
		*scratch = make([]byte, n)
	}
	*scratch = (*scratch)[:n]
	return *scratch
}

// convertSample converts a single sample from st to dt. dither is the
// pre-computed perturbation for this pixel, zero when not applicable.
func convertSample(dst []byte, dt TypeDesc, src []byte, st TypeDesc, dither float64) {
	if st == dt {
		copy(dst[:dt.Size()], src[:dt.Size()])
		return
	}
	switch {
	case st.IsFloat() && dt.IsFloat():
		writeFloat(dst, dt, readFloat(src, st))
	case st.IsFloat():
		x := readFloat(src, st)*float64(intMax(dt)) + dither
		writeInt(dst, dt, clampRound(x, dt))
	case dt.IsFloat():
		writeFloat(dst, dt, float64(readInt(src, st))/float64(intMax(st)))
	case st.Kind == dt.Kind:
		v := readInt(src, st)
		if shift := dt.Bits - st.Bits; shift >= 0 {
			// Exact widening.
			writeInt(dst, dt, v<<uint(shift))
		} else {
			x := float64(v)/float64(int64(1)<<uint(-shift)) + dither
			writeInt(dst, dt, clampRound(x, dt))
		}
	default:
		// Signedness change: scale between the two ranges.
		v := readInt(src, st)
		x := float64(v)*float64(intMax(dt))/float64(intMax(st)) + dither
		writeInt(dst, dt, clampRound(x, dt))
	}
}

func clampRound(x float64, t TypeDesc) int64 {
	v := int64(math.Round(x))
	if lo := intMin(t); v < lo {
		return lo
	}
	if hi := intMax(t); v > hi {
		return hi
	}
	return v
}

func intMax(t TypeDesc) int64 {
	if t.Kind == KindUInt {
		return int64(1)<<uint(t.Bits) - 1
	}
	return int64(1)<<uint(t.Bits-1) - 1
}

func intMin(t TypeDesc) int64 {
	if t.Kind == KindUInt {
		return 0
	}
	return -(int64(1) << uint(t.Bits-1))
}

func readInt(b []byte, t TypeDesc) int64 {
	switch t.Kind {
	case KindUInt:
		switch t.Bits {
		case 8:
			return int64(b[0])
		case 16:
			return int64(binary.LittleEndian.Uint16(b))
		case 32:
			return int64(binary.LittleEndian.Uint32(b))
		}
	case KindInt:
		switch t.Bits {
		case 8:
			return int64(int8(b[0]))
		case 16:
			return int64(int16(binary.LittleEndian.Uint16(b)))
		case 32:
			return int64(int32(binary.LittleEndian.Uint32(b)))
		}
	}
	panic(fmt.Sprintf("imageio: unsupported sample type %v", t))
}

func writeInt(b []byte, t TypeDesc, v int64) {
	switch t.Bits {
	case 8:
		b[0] = byte(v)
		return
	case 16:
		binary.LittleEndian.PutUint16(b, uint16(v))
		return
	case 32:
		binary.LittleEndian.PutUint32(b, uint32(v))
		return
	}
	panic(fmt.Sprintf("imageio: unsupported sample type %v", t))
}

func readFloat(b []byte, t TypeDesc) float64 {
	switch t.Bits {
	case 32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case 64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	panic(fmt.Sprintf("imageio: unsupported sample type %v", t))
}

func writeFloat(b []byte, t TypeDesc, f float64) {
	switch t.Bits {
	case 32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
		return
	case 64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
		return
	}
	panic(fmt.Sprintf("imageio: unsupported sample type %v", t))
}
