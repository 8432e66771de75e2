package imagehash

import (
	"fmt"
	"math"

	"github.com/busquepet/imagehash/pkg/bithash"
	"github.com/busquepet/imagehash/pkg/pixel"
)

// ComparisonMethod selects the threshold PerceptualHash compares the DCT
// coefficients against.
type ComparisonMethod string

const (
	// CompareAverage uses the mean of the low-frequency block without the DC
	// term.
	CompareAverage ComparisonMethod = "average"
	// CompareMedian uses the median of the whole low-frequency block.
	CompareMedian ComparisonMethod = "median"
)

// lowFrequencySize is the edge of the coefficient block kept from the DCT.
const lowFrequencySize = 8

var invSqrt2 = 1 / math.Sqrt(2)

// PerceptualHash applies a 2-D type-II DCT to a size×size luma thumbnail and
// hashes the 8×8 lowest-frequency coefficients against a threshold.
type PerceptualHash struct {
	size   int
	method ComparisonMethod
	// cos[k][j] = cos(pi*k*(j+0.5)/size)
	cos   [][]float64
	scale float64
}

// NewPerceptualHash returns a PerceptualHash producing 64 bits. size must be
// at least 8.
func NewPerceptualHash(size int, method ComparisonMethod) (*PerceptualHash, error) {
	if err := checkSize("perceptual", size, lowFrequencySize); err != nil {
		return nil, err
	}
	if method != CompareAverage && method != CompareMedian {
		return nil, fmt.Errorf("%w: unknown comparison method %q", ErrInvalidConfiguration, method)
	}

	table := make([][]float64, size)
	for k := range table {
		table[k] = make([]float64, size)
		for j := range table[k] {
			table[k][j] = math.Cos(float64(k) * math.Pi * (float64(j) + 0.5) / float64(size))
		}
	}
	return &PerceptualHash{
		size:   size,
		method: method,
		cos:    table,
		scale:  math.Sqrt(2 / float64(size)),
	}, nil
}

// Size returns the thumbnail edge length.
func (h *PerceptualHash) Size() int { return h.size }

// Method returns the configured comparison method.
func (h *PerceptualHash) Method() ComparisonMethod { return h.method }

// Signature implements Implementation.
func (h *PerceptualHash) Signature() string {
	return fmt.Sprintf("%s:%d:%s", Perceptual, h.size, h.method)
}

// Hash implements Implementation.
func (h *PerceptualHash) Hash(src pixel.Source) bithash.Hash {
	resized := src.Resize(h.size, h.size)

	rows := make([][]float64, h.size)
	row := make([]float64, h.size)
	for y := 0; y < h.size; y++ {
		for x := 0; x < h.size; x++ {
			row[x] = float64(pixel.LumaAt(resized, x, y))
		}
		rows[y] = h.dct(row)
	}

	// matrix[x] holds the transform of column x of the row-transformed
	// matrix, so matrix[u][v] is horizontal frequency u, vertical frequency v.
	matrix := make([][]float64, h.size)
	col := make([]float64, h.size)
	for x := 0; x < h.size; x++ {
		for y := 0; y < h.size; y++ {
			col[y] = rows[y][x]
		}
		matrix[x] = h.dct(col)
	}

	coefs := make([]float64, 0, lowFrequencySize*lowFrequencySize)
	for u := 0; u < lowFrequencySize; u++ {
		coefs = append(coefs, matrix[u][:lowFrequencySize]...)
	}

	var threshold float64
	if h.method == CompareMedian {
		threshold = pixel.Median(coefs)
	} else {
		threshold = meanWithoutDC(coefs)
	}

	bits := make([]bool, len(coefs))
	for i, c := range coefs {
		bits[i] = c > threshold
	}
	return bithash.New(bits)
}

// dct returns the 1-D type-II DCT of in with orthonormal scaling.
func (h *PerceptualHash) dct(in []float64) []float64 {
	out := make([]float64, len(in))
	for k := range out {
		sum := 0.0
		for j, v := range in {
			sum += float64(v * h.cos[k][j])
		}
		sum *= h.scale
		if k == 0 {
			sum *= invSqrt2
		}
		out[k] = sum
	}
	return out
}

// meanWithoutDC averages every coefficient except the first, which carries
// the overall brightness and dwarfs the rest.
func meanWithoutDC(coefs []float64) float64 {
	sum := 0.0
	for _, c := range coefs[1:] {
		sum += c
	}
	return sum / float64(len(coefs)-1)
}
