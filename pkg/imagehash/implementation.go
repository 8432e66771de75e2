package imagehash

import (
	"fmt"
	"strings"

	"github.com/busquepet/imagehash/pkg/bithash"
	"github.com/busquepet/imagehash/pkg/pixel"
)

// Implementation turns a pixel source into a hash. Implementations are
// immutable after construction and safe for concurrent use.
type Implementation interface {
	Hash(src pixel.Source) bithash.Hash
	// Signature identifies the algorithm and its parameters, e.g.
	// "block:16:precise". Equal signatures produce comparable hashes.
	Signature() string
}

// Algorithm names a hashing strategy.
type Algorithm string

const (
	Average    Algorithm = "average"
	Difference Algorithm = "difference"
	Perceptual Algorithm = "perceptual"
	Block      Algorithm = "block"
)

// Algorithms lists every supported strategy.
var Algorithms = []Algorithm{Average, Difference, Perceptual, Block}

// Default grid sizes.
const (
	DefaultAverageSize    = 8
	DefaultDifferenceSize = 8
	DefaultPerceptualSize = 32
	DefaultBlockSize      = 16
)

// Config selects and parameterises an algorithm. Zero values fall back to
// the algorithm defaults; Comparison only applies to Perceptual and Mode only
// to Block.
type Config struct {
	Algorithm  Algorithm
	Size       int
	Comparison ComparisonMethod
	Mode       BlockMode
}

// New builds the Implementation described by cfg.
func New(cfg Config) (Implementation, error) {
	switch Algorithm(strings.ToLower(string(cfg.Algorithm))) {
	case Average:
		return NewAverageHash(orDefault(cfg.Size, DefaultAverageSize))
	case Difference:
		return NewDifferenceHash(orDefault(cfg.Size, DefaultDifferenceSize))
	case Perceptual:
		method := cfg.Comparison
		if method == "" {
			method = CompareAverage
		}
		return NewPerceptualHash(orDefault(cfg.Size, DefaultPerceptualSize), method)
	case Block:
		mode := cfg.Mode
		if mode == "" {
			mode = Precise
		}
		return NewBlockHash(orDefault(cfg.Size, DefaultBlockSize), mode)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfiguration, cfg.Algorithm)
	}
}

func orDefault(size, def int) int {
	if size == 0 {
		return def
	}
	return size
}

func checkSize(name string, size, minSize int) error {
	if size < minSize {
		return fmt.Errorf("%w: %s size must be at least %d, got %d", ErrInvalidConfiguration, name, minSize, size)
	}
	return nil
}
