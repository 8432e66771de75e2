// Package pixel defines the read-only pixel source consumed by the hashing
// algorithms and an implementation backed by the imaging library.
package pixel

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Source is a read-only RGB pixel buffer that can produce resized copies.
type Source interface {
	Width() int
	Height() int
	// RGB returns the channel values at (x, y), 0 <= x < Width, 0 <= y < Height.
	RGB(x, y int) (r, g, b uint8)
	// Resize returns a new source with the given dimensions. The receiver is
	// never modified.
	Resize(width, height int) Source
}

// DefaultFilter is the resampling filter used when none is configured.
var DefaultFilter = imaging.Linear

// Image is a Source backed by an NRGBA buffer with a zero origin.
type Image struct {
	img    *image.NRGBA
	filter imaging.ResampleFilter
}

// FromImage copies img into a new Source that resamples with filter.
func FromImage(img image.Image, filter imaging.ResampleFilter) *Image {
	return &Image{img: imaging.Clone(img), filter: filter}
}

// New returns a blank (transparent black) source of the given size.
func New(width, height int) *Image {
	return &Image{
		img:    image.NewNRGBA(image.Rect(0, 0, width, height)),
		filter: DefaultFilter,
	}
}

// Width implements Source.
func (p *Image) Width() int {
	return p.img.Rect.Dx()
}

// Height implements Source.
func (p *Image) Height() int {
	return p.img.Rect.Dy()
}

// RGB implements Source.
func (p *Image) RGB(x, y int) (r, g, b uint8) {
	i := p.img.PixOffset(x, y)
	s := p.img.Pix[i : i+3 : i+3]
	return s[0], s[1], s[2]
}

// Set writes an opaque pixel. It is meant for building synthetic sources
// before they are handed to a hasher.
func (p *Image) Set(x, y int, r, g, b uint8) {
	p.img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 0xff})
}

// Resize implements Source. Resizing to the current dimensions returns the
// receiver.
func (p *Image) Resize(width, height int) Source {
	if width == p.Width() && height == p.Height() {
		return p
	}
	return &Image{
		img:    imaging.Resize(p.img, width, height, p.filter),
		filter: p.filter,
	}
}

// NRGBA exposes the underlying buffer.
func (p *Image) NRGBA() *image.NRGBA {
	return p.img
}
