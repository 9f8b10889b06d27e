package imageio

// DeepData holds pixel data for formats where every pixel carries a
// variable number of samples rather than a fixed channel count. It covers
// one rectangle of pixels in row-major order.
type DeepData struct {
	NPixels   int
	NChannels int

	// SampleCounts has one entry per pixel.
	SampleCounts []uint32

	// Values holds, per channel, the concatenation of every pixel's
	// samples in pixel order.
	Values [][]float32
}

// Samples returns the total number of samples across all pixels.
func (d *DeepData) Samples() int {
	n := 0
	for _, c := range d.SampleCounts {
		n += int(c)
	}
	return n
}
