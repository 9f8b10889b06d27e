package imageio

// DitherOffset returns a small deterministic perturbation in [-0.5, 0.5)
// for the sample at absolute coordinates (x, y, z), used to break up
// banding when quantizing high-precision data down to 8 bits. The value
// depends only on the arguments, and neighboring coordinates produce
// statistically uncorrelated offsets. A zero seed disables dithering and
// always returns 0.
func DitherOffset(seed uint32, x, y, z int) float64 {
	if seed == 0 {
		return 0
	}
	h := ditherHash(seed, x, y, z)
	return float64(h)/(1<<32) - 0.5
}

// ditherHash mixes the seed and coordinates through a murmur-style
// finalizer so that adjacent coordinates land far apart.
func ditherHash(seed uint32, x, y, z int) uint32 {
	h := seed
	h = h*0x9e3779b1 + uint32(x)
	h = h*0x85ebca6b + uint32(y)
	h = h*0xc2b2ae35 + uint32(z)
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
