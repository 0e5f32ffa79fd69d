// Package compositor implements the pure averaging function behind the
// worker's Compose RPC: decode N aligned rasters, accumulate a
// weighted sum, and re-encode. The master core never depends on its codec
// fidelity beyond the round-trip invariant that re-encoding a decoded image
// preserves dimensions.
package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
)

// Image names one input to Compose: its encoded bytes, the encoding those
// bytes are in, and its accumulation weight.
type Image struct {
	Content   []byte
	ImageType modules.ImageType
	Weight    float64
}

// rgba128 is a linear, unclamped RGBA accumulator with float64 channels,
// used so that averaging does not lose precision to 8-bit rounding between
// decode and encode.
type rgba128 struct {
	r, g, b, a float64
}

// decode turns an encoded image into a bounds-normalized grid of rgba128
// samples in [0,1] per channel.
func decode(content []byte, imageType modules.ImageType) (int, int, []rgba128, error) {
	switch imageType {
	case modules.ImagePNG:
		return decodePNG(content)
	case modules.ImageJPEG:
		return decodeJPEG(content)
	case modules.ImageEXR:
		return decodeEXR(content)
	default:
		return 0, 0, nil, errors.Extend(modules.ErrUnimplemented, errors.New(string(imageType)))
	}
}

func decodePNG(content []byte) (int, int, []rgba128, error) {
	img, err := png.Decode(bytes.NewReader(content))
	if err != nil {
		return 0, 0, nil, errors.Extend(modules.ErrInternal, err)
	}
	return samplesFromImage(img)
}

func decodeJPEG(content []byte) (int, int, []rgba128, error) {
	img, err := jpeg.Decode(bytes.NewReader(content))
	if err != nil {
		return 0, 0, nil, errors.Extend(modules.ErrInternal, err)
	}
	return samplesFromImage(img)
}

// samplesFromImage normalizes any image.Image into row-major rgba128 samples
// with 8-bit-derived channels in [0,1]; JPEG's missing alpha is treated as
// fully opaque.
func samplesFromImage(img image.Image) (int, int, []rgba128, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	samples := make([]rgba128, w*h)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			samples[i] = rgba128{
				r: float64(c.R) / 255,
				g: float64(c.G) / 255,
				b: float64(c.B) / 255,
				a: float64(c.A) / 255,
			}
			i++
		}
	}
	return w, h, samples, nil
}

// encode re-encodes a width x height grid of rgba128 samples as imageType.
func encode(width, height int, samples []rgba128, imageType modules.ImageType) ([]byte, error) {
	switch imageType {
	case modules.ImagePNG:
		return encodePNG(width, height, samples)
	case modules.ImageJPEG:
		return encodeJPEG(width, height, samples)
	case modules.ImageEXR:
		return encodeEXR(width, height, samples)
	default:
		return nil, errors.Extend(modules.ErrUnimplemented, errors.New(string(imageType)))
	}
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func imageFromSamples(width, height int, samples []rgba128) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			s := samples[i]
			img.SetRGBA(x, y, color.RGBA{R: clamp8(s.r), G: clamp8(s.g), B: clamp8(s.b), A: clamp8(s.a)})
			i++
		}
	}
	return img
}

func encodePNG(width, height int, samples []rgba128) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, imageFromSamples(width, height, samples)); err != nil {
		return nil, errors.Extend(modules.ErrInternal, err)
	}
	return buf.Bytes(), nil
}

func encodeJPEG(width, height int, samples []rgba128) ([]byte, error) {
	var buf bytes.Buffer
	// JPEG has no alpha channel; drop it.
	if err := jpeg.Encode(&buf, imageFromSamples(width, height, samples), &jpeg.Options{Quality: 90}); err != nil {
		return nil, errors.Extend(modules.ErrInternal, err)
	}
	return buf.Bytes(), nil
}

// Compose averages images, weighted, into a single raster encoded as
// outputType. All inputs must decode to the same width x height (else
// modules.ErrInternal); weights must be non-negative and sum to more than
// zero (else modules.ErrInvalidArgument).
func Compose(images []Image, outputType modules.ImageType) ([]byte, error) {
	if len(images) == 0 {
		return nil, errors.Extend(modules.ErrInvalidArgument, errors.New("compose requires at least one image"))
	}

	var totalWeight float64
	for _, im := range images {
		if im.Weight < 0 {
			return nil, errors.Extend(modules.ErrInvalidArgument, errors.New("weights must be non-negative"))
		}
		totalWeight += im.Weight
	}
	if totalWeight <= 0 {
		return nil, errors.Extend(modules.ErrInvalidArgument, errors.New("sum of weights must be greater than zero"))
	}

	var width, height int
	var acc []rgba128
	for n, im := range images {
		w, h, samples, err := decode(im.Content, im.ImageType)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			width, height = w, h
			acc = make([]rgba128, w*h)
		} else if w != width || h != height {
			return nil, errors.Extend(modules.ErrInternal, errors.New("compose inputs have mismatched geometry"))
		}
		for i, s := range samples {
			acc[i].r += s.r * im.Weight
			acc[i].g += s.g * im.Weight
			acc[i].b += s.b * im.Weight
			acc[i].a += s.a * im.Weight
		}
	}
	for i := range acc {
		acc[i].r /= totalWeight
		acc[i].g /= totalWeight
		acc[i].b /= totalWeight
		acc[i].a /= totalWeight
	}

	return encode(width, height, acc, outputType)
}
