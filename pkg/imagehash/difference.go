package imagehash

import (
	"fmt"

	"github.com/busquepet/imagehash/pkg/bithash"
	"github.com/busquepet/imagehash/pkg/pixel"
)

// DifferenceHash encodes the sign of the horizontal luma gradient of a
// (size+1)×size thumbnail: a bit is 1 when a pixel is brighter than its right
// neighbour.
type DifferenceHash struct {
	size int
}

// NewDifferenceHash returns a DifferenceHash producing size*size bits.
func NewDifferenceHash(size int) (*DifferenceHash, error) {
	if err := checkSize("difference", size, 1); err != nil {
		return nil, err
	}
	return &DifferenceHash{size: size}, nil
}

// Size returns the number of rows (and bits per row).
func (h *DifferenceHash) Size() int { return h.size }

// Signature implements Implementation.
func (h *DifferenceHash) Signature() string {
	return fmt.Sprintf("%s:%d", Difference, h.size)
}

// Hash implements Implementation.
func (h *DifferenceHash) Hash(src pixel.Source) bithash.Hash {
	width, height := h.size+1, h.size
	resized := src.Resize(width, height)

	bits := make([]bool, 0, h.size*h.size)
	for y := 0; y < height; y++ {
		left := pixel.LumaAt(resized, 0, y)
		for x := 1; x < width; x++ {
			right := pixel.LumaAt(resized, x, y)
			bits = append(bits, left > right)
			left = right
		}
	}
	return bithash.New(bits)
}
