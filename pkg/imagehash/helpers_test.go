package imagehash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/busquepet/imagehash/pkg/pixel"
)

// fill returns a width×height source where every pixel is f(x, y) in grey.
func fill(width, height int, f func(x, y int) uint8) *pixel.Image {
	src := pixel.New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := f(x, y)
			src.Set(x, y, v, v, v)
		}
	}
	return src
}

func flat(width, height int, v uint8) *pixel.Image {
	return fill(width, height, func(int, int) uint8 { return v })
}

// textured is a deterministic image with structure at several scales.
func textured(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx, fy := float64(x), float64(y)
			r := 128 + 100*math.Sin(fx/17)*math.Cos(fy/23)
			g := 128 + 90*math.Cos((fx+fy)/29)
			b := 128 + 80*math.Sin(fy/11)
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255})
		}
	}
	return img
}

// ramp is a horizontal grey ramp with a dark rectangle in the middle.
// Reversed ramps run bright to dark.
func ramp(width, height int, reversed bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / (width - 1))
			if reversed {
				v = 255 - v
			}
			if x > width/3 && x < width/2 && y > height/3 && y < 2*height/3 {
				v /= 4
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)))
	return buf.Bytes()
}

func allImplementations(t *testing.T) []Implementation {
	t.Helper()
	var out []Implementation
	for _, cfg := range []Config{
		{Algorithm: Average},
		{Algorithm: Difference},
		{Algorithm: Perceptual, Comparison: CompareAverage},
		{Algorithm: Perceptual, Comparison: CompareMedian},
		{Algorithm: Block, Size: 8, Mode: Quick},
		{Algorithm: Block, Size: 8, Mode: Precise},
		{Algorithm: Block},
	} {
		impl, err := New(cfg)
		require.NoError(t, err)
		out = append(out, impl)
	}
	return out
}

func invert(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Rect)
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			out.SetNRGBA(x, y, color.NRGBA{R: 255 - c.R, G: 255 - c.G, B: 255 - c.B, A: c.A})
		}
	}
	return out
}
