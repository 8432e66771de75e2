package imagehash

import (
	"fmt"

	"github.com/busquepet/imagehash/pkg/bithash"
	"github.com/busquepet/imagehash/pkg/pixel"
)

// AverageHash sets one bit per pixel of a size×size thumbnail: 1 when the
// pixel's luma is strictly above the mean luma. A flat image hashes to zero.
type AverageHash struct {
	size int
}

// NewAverageHash returns an AverageHash producing size*size bits.
func NewAverageHash(size int) (*AverageHash, error) {
	if err := checkSize("average", size, 1); err != nil {
		return nil, err
	}
	return &AverageHash{size: size}, nil
}

// Size returns the thumbnail edge length.
func (h *AverageHash) Size() int { return h.size }

// Signature implements Implementation.
func (h *AverageHash) Signature() string {
	return fmt.Sprintf("%s:%d", Average, h.size)
}

// Hash implements Implementation.
func (h *AverageHash) Hash(src pixel.Source) bithash.Hash {
	resized := src.Resize(h.size, h.size)

	lumas := make([]int, 0, h.size*h.size)
	sum := 0
	for y := 0; y < h.size; y++ {
		for x := 0; x < h.size; x++ {
			l := pixel.LumaAt(resized, x, y)
			lumas = append(lumas, l)
			sum += l
		}
	}
	mean := sum / len(lumas)

	bits := make([]bool, len(lumas))
	for i, l := range lumas {
		bits[i] = l > mean
	}
	return bithash.New(bits)
}
