// Package thumbnail generates reduced preview images and stores them as
// image attributes, so any container able to carry byte-blob attributes
// keeps the preview alongside the full-resolution pixels.
//
// The preview is always 8-bit NRGBA, held in four attributes:
// thumbnail_width, thumbnail_height, thumbnail_nchannels and
// thumbnail_image.
package thumbnail

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/deoncoke/oiio/imageio"
)

// FromNative builds an 8-bit stdlib image from one depth slice of a
// native pixel buffer, narrowing wider sample types. Per-channel
// formats and channel counts above four are not handled.
func FromNative(spec *imageio.ImageSpec, native []byte) (image.Image, error) {
	if len(spec.ChannelFormats) > 0 {
		return nil, fmt.Errorf("thumbnail: %w: per-channel formats", imageio.ErrUnsupported)
	}
	if spec.NChannels < 1 || spec.NChannels > 4 {
		return nil, fmt.Errorf("thumbnail: %w: %d channels", imageio.ErrUnsupported, spec.NChannels)
	}

	flat := spec.Copy()
	flat.Depth = 1
	flat.TileWidth, flat.TileHeight, flat.TileDepth = 0, 0, 0
	flat.Format = imageio.TypeUInt8
	var scratch []byte
	pix := imageio.ToNativeRectangle(flat, 0, spec.Width, 0, spec.Height, 0, 1,
		spec.Format, native, imageio.AutoStride, imageio.AutoStride, imageio.AutoStride,
		0, &scratch)

	w, h, nch := spec.Width, spec.Height, spec.NChannels
	if nch == 1 {
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, pix)
		return img, nil
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		px := img.Pix[i*4 : i*4+4]
		px[3] = 0xFF
		switch nch {
		case 2:
			px[0], px[1], px[2] = pix[i*2], pix[i*2], pix[i*2]
			px[3] = pix[i*2+1]
		case 3:
			copy(px, pix[i*3:i*3+3])
		case 4:
			copy(px, pix[i*4:i*4+4])
		}
	}
	return img, nil
}

// Attach resizes img to fit within maxDim on its longer side and stores
// the result in spec's thumbnail attributes. Images already small
// enough are stored as they are.
func Attach(spec *imageio.ImageSpec, img image.Image, maxDim int) error {
	if maxDim < 1 {
		return fmt.Errorf("thumbnail: max dimension %d", maxDim)
	}
	thumb := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	w, h := thumb.Rect.Dx(), thumb.Rect.Dy()
	if w < 1 || h < 1 {
		return fmt.Errorf("thumbnail: empty source image")
	}

	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		copy(pix[y*w*4:(y+1)*w*4], thumb.Pix[y*thumb.Stride:])
	}
	spec.SetAttribute("thumbnail_width", w)
	spec.SetAttribute("thumbnail_height", h)
	spec.SetAttribute("thumbnail_nchannels", 4)
	spec.SetAttribute("thumbnail_image", pix)
	return nil
}

// Image reconstructs the stored preview, or reports false when spec
// carries none.
func Image(spec *imageio.ImageSpec) (*image.NRGBA, bool) {
	w := spec.IntAttribute("thumbnail_width", 0)
	h := spec.IntAttribute("thumbnail_height", 0)
	raw, ok := spec.Attribute("thumbnail_image")
	if !ok || w < 1 || h < 1 {
		return nil, false
	}
	pix, ok := raw.([]byte)
	if !ok || len(pix) < w*h*4 {
		return nil, false
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	return img, true
}
