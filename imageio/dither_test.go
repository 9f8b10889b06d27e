package imageio_test

import (
	"testing"

	"github.com/deoncoke/oiio/imageio"
)

func TestDitherDeterminism(t *testing.T) {
	coords := [][3]int{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {511, 12, 3}, {1024, 768, 0}}
	for _, c := range coords {
		a := imageio.DitherOffset(7, c[0], c[1], c[2])
		b := imageio.DitherOffset(7, c[0], c[1], c[2])
		if a != b {
			t.Errorf("DitherOffset(7, %v) not deterministic: %v != %v", c, a, b)
		}
	}
}

func TestDitherZeroSeed(t *testing.T) {
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			if got := imageio.DitherOffset(0, x, y, 0); got != 0 {
				t.Fatalf("DitherOffset(0, %d, %d, 0) = %v, want 0", x, y, got)
			}
		}
	}
}

func TestDitherRange(t *testing.T) {
	for x := 0; x < 256; x++ {
		for y := 0; y < 256; y++ {
			v := imageio.DitherOffset(1, x, y, 0)
			if v < -0.5 || v >= 0.5 {
				t.Fatalf("DitherOffset(1, %d, %d, 0) = %v, outside [-0.5, 0.5)", x, y, v)
			}
		}
	}
}

// Neighboring coordinates must not produce a sweeping gradient; a hash,
// not a counter. Check that offsets along a scanline are not monotonic
// and straddle zero.
func TestDitherUncorrelated(t *testing.T) {
	neg, pos, increasing := 0, 0, 0
	prev := imageio.DitherOffset(99, 0, 0, 0)
	for x := 1; x < 1000; x++ {
		v := imageio.DitherOffset(99, x, 0, 0)
		if v < 0 {
			neg++
		} else {
			pos++
		}
		if v > prev {
			increasing++
		}
		prev = v
	}
	if neg < 300 || pos < 300 {
		t.Errorf("offset signs badly skewed: %d negative, %d positive", neg, pos)
	}
	if increasing < 300 || increasing > 700 {
		t.Errorf("offsets look ordered along x: %d of 999 increasing", increasing)
	}
}

func TestDitherSeedsDiffer(t *testing.T) {
	same := 0
	for x := 0; x < 100; x++ {
		if imageio.DitherOffset(1, x, 5, 0) == imageio.DitherOffset(2, x, 5, 0) {
			same++
		}
	}
	if same > 2 {
		t.Errorf("seeds 1 and 2 agreed at %d of 100 coordinates", same)
	}
}
