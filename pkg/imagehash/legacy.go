package imagehash

import (
	"fmt"
	"image"
	"strings"

	"github.com/corona10/goimagehash"

	"github.com/busquepet/imagehash/pkg/bithash"
)

// Legacy hash dimensions used by the earlier goimagehash-based pipeline.
const (
	LegacyWidth  = 16
	LegacyHeight = 16
)

// LegacyPerceptionHash computes goimagehash's extended perception hash and
// returns it as a bithash.Hash so hashes stored by the earlier pipeline stay
// comparable with Distance.
func LegacyPerceptionHash(img image.Image, width, height int) (bithash.Hash, error) {
	if img == nil {
		return bithash.Hash{}, fmt.Errorf("%w: image is nil", ErrUnreadableImage)
	}
	hash, err := goimagehash.ExtPerceptionHash(img, width, height)
	if err != nil {
		return bithash.Hash{}, fmt.Errorf("legacy perception hash: %w", err)
	}
	return ParseLegacy(hash.ToString())
}

// ParseLegacy parses a goimagehash string, with or without its "p:" kind
// prefix.
func ParseLegacy(s string) (bithash.Hash, error) {
	if _, hexPart, ok := strings.Cut(s, ":"); ok {
		s = hexPart
	}
	return bithash.ParseHex(s)
}
