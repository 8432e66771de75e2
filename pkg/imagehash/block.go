package imagehash

import (
	"fmt"
	"math"

	"github.com/busquepet/imagehash/pkg/bithash"
	"github.com/busquepet/imagehash/pkg/pixel"
)

// BlockMode selects how BlockHash partitions images whose dimensions are not
// a multiple of the grid size.
type BlockMode string

const (
	// Quick uses integer block extents and drops the remainder pixels on the
	// right and bottom edges.
	Quick BlockMode = "quick"
	// Precise uses fractional block extents and splits straddling pixels
	// between neighbouring blocks by area.
	Precise BlockMode = "precise"
)

// bands is the number of horizontal bands the block grid is split into, each
// thresholded against its own median.
const bands = 4

// BlockHash sums R+G+B over a size×size grid of blocks of the full-resolution
// image and compares every block with the median of its band.
type BlockHash struct {
	size int
	mode BlockMode
}

// NewBlockHash returns a BlockHash producing size*size bits. size must be a
// positive multiple of 4.
func NewBlockHash(size int, mode BlockMode) (*BlockHash, error) {
	if size <= 0 || size%4 != 0 {
		return nil, fmt.Errorf("%w: block size must be a positive multiple of 4, got %d", ErrInvalidConfiguration, size)
	}
	if mode != Quick && mode != Precise {
		return nil, fmt.Errorf("%w: unknown block mode %q", ErrInvalidConfiguration, mode)
	}
	return &BlockHash{size: size, mode: mode}, nil
}

// Size returns the grid edge length.
func (h *BlockHash) Size() int { return h.size }

// Mode returns the partition mode.
func (h *BlockHash) Mode() BlockMode { return h.mode }

// Signature implements Implementation.
func (h *BlockHash) Signature() string {
	return fmt.Sprintf("%s:%d:%s", Block, h.size, h.mode)
}

// Hash implements Implementation.
func (h *BlockHash) Hash(src pixel.Source) bithash.Hash {
	if h.mode == Quick {
		return h.quick(src)
	}
	return h.precise(src)
}

func pixelValue(src pixel.Source, x, y int) float64 {
	r, g, b := src.RGB(x, y)
	return float64(int(r) + int(g) + int(b))
}

func (h *BlockHash) quick(src pixel.Source) bithash.Hash {
	blockWidth := src.Width() / h.size
	blockHeight := src.Height() / h.size

	blocks := make([]float64, 0, h.size*h.size)
	for by := 0; by < h.size; by++ {
		for bx := 0; bx < h.size; bx++ {
			sum := 0
			for iy := 0; iy < blockHeight; iy++ {
				for ix := 0; ix < blockWidth; ix++ {
					r, g, b := src.RGB(bx*blockWidth+ix, by*blockHeight+iy)
					sum += int(r) + int(g) + int(b)
				}
			}
			blocks = append(blocks, float64(sum))
		}
	}
	return blocksToHash(blocks, float64(blockWidth*blockHeight))
}

// span describes how one pixel coordinate along an axis is shared between
// two adjacent blocks. first and second may be the same block.
type span struct {
	first, second   int
	wFirst, wSecond float64
}

// partition computes the span of every coordinate along an axis of the
// given extent split into size blocks.
func partition(extent, size int) []span {
	spans := make([]span, extent)
	blockExtent := float64(extent) / float64(size)
	even := extent%size == 0

	for c := range spans {
		lower := clampIndex(int(math.Floor(float64(c)/blockExtent)), size)
		if even {
			spans[c] = span{first: lower, second: lower, wFirst: 1, wSecond: 0}
			continue
		}

		// Float modulus, not integer %: truncating blockExtent would never
		// leave a fractional remainder to split a pixel across two blocks.
		mod := math.Mod(float64(c+1), blockExtent)
		frac := mod - math.Floor(mod)
		whole := mod - frac

		s := span{first: lower, second: lower, wFirst: 1 - frac, wSecond: frac}
		// whole is zero on block boundaries and on the last coordinate.
		if whole <= 0 && c+1 != extent {
			s.second = clampIndex(int(math.Ceil(float64(c)/blockExtent)), size)
		}
		spans[c] = s
	}
	return spans
}

func clampIndex(i, size int) int {
	if i >= size {
		return size - 1
	}
	return i
}

func (h *BlockHash) precise(src pixel.Source) bithash.Hash {
	width, height := src.Width(), src.Height()
	xs := partition(width, h.size)
	ys := partition(height, h.size)

	grid := make([][]float64, h.size)
	for i := range grid {
		grid[i] = make([]float64, h.size)
	}

	for y := 0; y < height; y++ {
		sy := ys[y]
		for x := 0; x < width; x++ {
			sx := xs[x]
			v := pixelValue(src, x, y)

			grid[sy.first][sx.first] += float64(v * sy.wFirst * sx.wFirst)
			grid[sy.first][sx.second] += float64(v * sy.wFirst * sx.wSecond)
			grid[sy.second][sx.first] += float64(v * sy.wSecond * sx.wFirst)
			grid[sy.second][sx.second] += float64(v * sy.wSecond * sx.wSecond)
		}
	}

	blocks := make([]float64, 0, h.size*h.size)
	for _, row := range grid {
		blocks = append(blocks, row...)
	}
	blockWidth := float64(width) / float64(h.size)
	blockHeight := float64(height) / float64(h.size)
	return blocksToHash(blocks, blockWidth*blockHeight)
}

// blocksToHash thresholds each band of blocks against its median. Blocks
// equal to the median count as set when the median lies in the upper half of
// the possible range, so black- or white-dominated bands do not collapse to
// all zeros or all ones.
func blocksToHash(blocks []float64, pixelsPerBlock float64) bithash.Hash {
	halfBlockValue := pixelsPerBlock * 256 * 3 / 2
	bandSize := len(blocks) / bands

	bits := make([]bool, len(blocks))
	for i := 0; i < bands; i++ {
		band := blocks[i*bandSize : (i+1)*bandSize]
		median := pixel.Median(band)
		for j, v := range band {
			bits[i*bandSize+j] = v > median || (math.Abs(v-median) < 1 && median > halfBlockValue)
		}
	}
	return bithash.New(bits)
}
