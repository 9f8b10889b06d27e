package imageio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/deoncoke/oiio/imageio"
)

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getU16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

func TestZeroCopyFastPath(t *testing.T) {
	spec := imageio.NewImageSpec(16, 4, 3, imageio.TypeUInt8)
	src := make([]byte, 16*4*3)
	for i := range src {
		src[i] = byte(i)
	}
	var scratch []byte
	got := imageio.ToNativeRectangle(spec, 0, 16, 0, 4, 0, 1,
		imageio.TypeUInt8, src, imageio.AutoStride, imageio.AutoStride, imageio.AutoStride,
		0, &scratch)
	if &got[0] != &src[0] {
		t.Error("matching layout and packed strides must return the input buffer itself")
	}
	if scratch != nil {
		t.Error("fast path must not grow the scratch buffer")
	}
}

func TestWideningIsExactShift(t *testing.T) {
	spec := imageio.NewImageSpec(256, 1, 1, imageio.TypeUInt16)
	src := make([]byte, 256)
	for i := range src {
		src[i] = byte(i)
	}
	var scratch []byte
	wide := imageio.ToNativeScanline(spec, 0, 0, imageio.TypeUInt8, src, imageio.AutoStride, 0, &scratch)
	for i := 0; i < 256; i++ {
		want := uint16(i) << 8
		if got := getU16(wide[2*i:]); got != want {
			t.Fatalf("sample %d: widened to %#04x, want %#04x", i, got, want)
		}
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		from, to imageio.TypeDesc
	}{
		{"uint8_via_uint16", imageio.TypeUInt8, imageio.TypeUInt16},
		{"uint8_via_uint32", imageio.TypeUInt8, imageio.TypeUInt32},
		{"uint16_via_uint32", imageio.TypeUInt16, imageio.TypeUInt32},
		{"int8_via_int16", imageio.TypeInt8, imageio.TypeInt16},
		{"int16_via_int32", imageio.TypeInt16, imageio.TypeInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const n = 256
			src := make([]byte, n*tt.from.Size())
			for i := 0; i < n*tt.from.Size(); i++ {
				src[i] = byte(i * 37)
			}
			wideSpec := imageio.NewImageSpec(n, 1, 1, tt.to)
			var s1, s2 []byte
			wide := imageio.ToNativeScanline(wideSpec, 0, 0, tt.from, src, imageio.AutoStride, 0, &s1)
			backSpec := imageio.NewImageSpec(n, 1, 1, tt.from)
			back := imageio.ToNativeScanline(backSpec, 0, 0, tt.to, wide, imageio.AutoStride, 0, &s2)
			if !bytes.Equal(back, src) {
				t.Errorf("widen-then-narrow did not reproduce the original buffer")
			}
		})
	}
}

func TestFloatToUInt8Mapping(t *testing.T) {
	tests := []struct {
		in   float32
		want byte
	}{
		{0.0, 0},
		{1.0, 255},
		{0.5, 128}, // 127.5 rounds away from zero
		{1.0 / 255, 1},
		{-0.25, 0},  // clamped
		{1.75, 255}, // clamped
	}
	spec := imageio.NewImageSpec(len(tests), 1, 1, imageio.TypeUInt8)
	src := make([]byte, 4*len(tests))
	for i, tt := range tests {
		putF32(src[4*i:], tt.in)
	}
	var scratch []byte
	got := imageio.ToNativeScanline(spec, 0, 0, imageio.TypeFloat, src, imageio.AutoStride, 0, &scratch)
	for i, tt := range tests {
		if got[i] != tt.want {
			t.Errorf("%v -> %d, want %d", tt.in, got[i], tt.want)
		}
	}
}

// Float-to-integer narrowing must land within one quantization step of
// the exact value, and converting back must stay within one step too.
func TestFloatRoundTripQuantization(t *testing.T) {
	const n = 1000
	src := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		putF32(src[4*i:], float32(i)/float32(n-1))
	}
	u16Spec := imageio.NewImageSpec(n, 1, 1, imageio.TypeUInt16)
	var s1, s2 []byte
	quant := imageio.ToNativeScanline(u16Spec, 0, 0, imageio.TypeFloat, src, imageio.AutoStride, 0, &s1)
	fSpec := imageio.NewImageSpec(n, 1, 1, imageio.TypeFloat)
	back := imageio.ToNativeScanline(fSpec, 0, 0, imageio.TypeUInt16, quant, imageio.AutoStride, 0, &s2)
	for i := 0; i < n; i++ {
		orig := float64(i) / float64(n-1)
		got := float64(math.Float32frombits(binary.LittleEndian.Uint32(back[4*i:])))
		if math.Abs(got-orig) > 1.0/65535 {
			t.Fatalf("sample %d: %v came back as %v, off by more than one quantum", i, orig, got)
		}
	}
}

func TestStridedSourceGather(t *testing.T) {
	// 4x2 single-channel uint8 image with 2 padding bytes after every
	// pixel and 3 after every row.
	spec := imageio.NewImageSpec(4, 2, 1, imageio.TypeUInt8)
	xstride, ystride := 3, 4*3+3
	src := make([]byte, 2*ystride)
	want := make([]byte, 0, 8)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			v := byte(10*y + x)
			src[y*ystride+x*xstride] = v
			want = append(want, v)
		}
	}
	var scratch []byte
	got := imageio.ToNativeRectangle(spec, 0, 4, 0, 2, 0, 1,
		imageio.TypeUInt8, src, xstride, ystride, imageio.AutoStride, 0, &scratch)
	if !bytes.Equal(got, want) {
		t.Errorf("gathered %v, want %v", got, want)
	}
	if &got[0] == &src[0] {
		t.Error("strided source must be copied, not aliased")
	}
}

func TestPerChannelFormats(t *testing.T) {
	spec := imageio.NewImageSpec(1, 1, 2, imageio.TypeUnknown)
	spec.ChannelFormats = []imageio.TypeDesc{imageio.TypeUInt8, imageio.TypeUInt16}
	src := make([]byte, 8)
	putF32(src[0:], 1.0)
	putF32(src[4:], 0.5)
	var scratch []byte
	got := imageio.ToNativeScanline(spec, 0, 0, imageio.TypeFloat, src, imageio.AutoStride, 0, &scratch)
	if len(got) != 3 {
		t.Fatalf("native pixel is %d bytes, want 3", len(got))
	}
	if got[0] != 255 {
		t.Errorf("channel 0: %d, want 255", got[0])
	}
	if v := getU16(got[1:]); v != 32768 {
		t.Errorf("channel 1: %d, want 32768", v)
	}
}

// A dither pattern is keyed by absolute coordinates, so converting an
// image whole or in separate rectangles must produce identical bytes.
func TestDitherRectangleAlignment(t *testing.T) {
	const w, h = 8, 8
	spec := imageio.NewImageSpec(w, h, 1, imageio.TypeUInt8)
	src := make([]byte, 4*w*h)
	for i := 0; i < w*h; i++ {
		putF32(src[4*i:], float32(i)/(w*h))
	}
	const seed = 42
	var s1, s2, s3 []byte
	whole := imageio.ToNativeRectangle(spec, 0, w, 0, h, 0, 1,
		imageio.TypeFloat, src, imageio.AutoStride, imageio.AutoStride, imageio.AutoStride, seed, &s1)
	top := imageio.ToNativeRectangle(spec, 0, w, 0, h/2, 0, 1,
		imageio.TypeFloat, src, imageio.AutoStride, imageio.AutoStride, imageio.AutoStride, seed, &s2)
	bottom := imageio.ToNativeRectangle(spec, 0, w, h/2, h, 0, 1,
		imageio.TypeFloat, src[4*w*h/2:], imageio.AutoStride, imageio.AutoStride, imageio.AutoStride, seed, &s3)
	split := append(append([]byte(nil), top...), bottom...)
	if !bytes.Equal(whole, split) {
		t.Error("split conversion does not match whole-image conversion under dithering")
	}
}

func TestDitherOnlyOnEightBitNarrowing(t *testing.T) {
	const n = 64
	src := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		putF32(src[4*i:], float32(i)/n)
	}

	// uint16 destination: dither seed must be ignored.
	spec16 := imageio.NewImageSpec(n, 1, 1, imageio.TypeUInt16)
	var s1, s2 []byte
	a := imageio.ToNativeScanline(spec16, 0, 0, imageio.TypeFloat, src, imageio.AutoStride, 0, &s1)
	b := imageio.ToNativeScanline(spec16, 0, 0, imageio.TypeFloat, src, imageio.AutoStride, 77, &s2)
	if !bytes.Equal(a, b) {
		t.Error("dither must not apply to 16-bit destinations")
	}

	// uint8 destination: a nonzero seed must perturb at least one sample.
	spec8 := imageio.NewImageSpec(n, 1, 1, imageio.TypeUInt8)
	var s3, s4 []byte
	c := imageio.ToNativeScanline(spec8, 0, 0, imageio.TypeFloat, src, imageio.AutoStride, 0, &s3)
	d := imageio.ToNativeScanline(spec8, 0, 0, imageio.TypeFloat, src, imageio.AutoStride, 77, &s4)
	if bytes.Equal(c, d) {
		t.Error("nonzero dither seed changed nothing on an 8-bit narrowing")
	}
	for i := range c {
		diff := int(c[i]) - int(d[i])
		if diff < -1 || diff > 1 {
			t.Fatalf("sample %d: dither moved value by %d, more than one step", i, diff)
		}
	}
}

func TestScratchReuse(t *testing.T) {
	spec := imageio.NewImageSpec(32, 1, 1, imageio.TypeUInt16)
	src := make([]byte, 32)
	var scratch []byte
	a := imageio.ToNativeScanline(spec, 0, 0, imageio.TypeUInt8, src, imageio.AutoStride, 0, &scratch)
	b := imageio.ToNativeScanline(spec, 0, 0, imageio.TypeUInt8, src, imageio.AutoStride, 0, &scratch)
	if &a[0] != &b[0] {
		t.Error("second conversion of equal size must reuse the scratch allocation")
	}
}

func TestUnsupportedPairingPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("converting to an invalid sample type must panic")
		}
	}()
	spec := imageio.NewImageSpec(1, 1, 1, imageio.TypeDesc{Kind: imageio.KindUInt, Bits: 64})
	var scratch []byte
	imageio.ToNativeScanline(spec, 0, 0, imageio.TypeUInt8, []byte{1}, imageio.AutoStride, 0, &scratch)
}
