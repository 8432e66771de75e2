package imagehash

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/busquepet/imagehash/pkg/bithash"
	"github.com/busquepet/imagehash/pkg/pixel"
)

// Engine resolves images into pixel sources and hashes them with a single
// Implementation. It holds no mutable state.
type Engine struct {
	impl       Implementation
	filter     imaging.ResampleFilter
	autoOrient bool
	logger     *zap.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithResampleFilter sets the filter used when algorithms shrink the image.
func WithResampleFilter(filter imaging.ResampleFilter) Option {
	return func(e *Engine) { e.filter = filter }
}

// WithAutoOrientation toggles applying the EXIF orientation tag on decode.
func WithAutoOrientation(enabled bool) Option {
	return func(e *Engine) { e.autoOrient = enabled }
}

// WithLogger attaches a logger for decode diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine builds an Engine around impl. A nil impl selects a DifferenceHash
// of the default size.
func NewEngine(impl Implementation, opts ...Option) *Engine {
	if impl == nil {
		def, err := NewDifferenceHash(DefaultDifferenceSize)
		if err != nil {
			panic(err)
		}
		impl = def
	}
	e := &Engine{
		impl:       impl,
		filter:     pixel.DefaultFilter,
		autoOrient: true,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Implementation returns the configured algorithm.
func (e *Engine) Implementation() Implementation {
	return e.impl
}

// Signature returns the signature of the configured algorithm.
func (e *Engine) Signature() string {
	return e.impl.Signature()
}

// Fingerprint identifies every setting that affects the engine's output:
// the algorithm signature, the resample filter and orientation handling,
// e.g. "difference:8:linear:orient". Hashes stored under one fingerprint
// must not be served for another.
func (e *Engine) Fingerprint() string {
	orient := "orient"
	if !e.autoOrient {
		orient = "noorient"
	}
	return e.impl.Signature() + ":" + pixel.FilterName(e.filter) + ":" + orient
}

// HashSource hashes an already decoded pixel source.
func (e *Engine) HashSource(src pixel.Source) bithash.Hash {
	return e.impl.Hash(src)
}

// HashImage hashes a decoded image.
func (e *Engine) HashImage(img image.Image) (bithash.Hash, error) {
	if img == nil {
		return bithash.Hash{}, fmt.Errorf("%w: image is nil", ErrUnreadableImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return bithash.Hash{}, fmt.Errorf("%w: empty image %dx%d", ErrUnreadableImage, b.Dx(), b.Dy())
	}
	return e.impl.Hash(pixel.FromImage(img, e.filter)), nil
}

// HashReader decodes an image from r and hashes it.
func (e *Engine) HashReader(r io.Reader) (bithash.Hash, error) {
	img, err := e.Decode(r)
	if err != nil {
		return bithash.Hash{}, err
	}
	return e.HashImage(img)
}

// HashBytes decodes the provided buffer and hashes it.
func (e *Engine) HashBytes(data []byte) (bithash.Hash, error) {
	return e.HashReader(bytes.NewReader(data))
}

// HashFile loads an image from disk and hashes it.
func (e *Engine) HashFile(path string) (bithash.Hash, error) {
	img, err := pixel.Open(path, e.autoOrient)
	if err != nil {
		e.logger.Debug("image decode failed", zap.String("path", path), zap.Error(err))
		return bithash.Hash{}, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, path, err)
	}
	return e.HashImage(img)
}

// Decode reads an image with the engine's orientation setting. Failures wrap
// ErrUnreadableImage.
func (e *Engine) Decode(r io.Reader) (image.Image, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: reader is nil", ErrUnreadableImage)
	}
	img, err := pixel.Decode(r, e.autoOrient)
	if err != nil {
		e.logger.Debug("image decode failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return img, nil
}

// CompareImages hashes both images and returns their Hamming distance.
func (e *Engine) CompareImages(a, b image.Image) (int, error) {
	return e.compare(
		func() (bithash.Hash, error) { return e.HashImage(a) },
		func() (bithash.Hash, error) { return e.HashImage(b) },
	)
}

// CompareFiles hashes both files and returns their Hamming distance.
func (e *Engine) CompareFiles(a, b string) (int, error) {
	return e.compare(
		func() (bithash.Hash, error) { return e.HashFile(a) },
		func() (bithash.Hash, error) { return e.HashFile(b) },
	)
}

// CompareBytes hashes both buffers and returns their Hamming distance.
func (e *Engine) CompareBytes(a, b []byte) (int, error) {
	return e.compare(
		func() (bithash.Hash, error) { return e.HashBytes(a) },
		func() (bithash.Hash, error) { return e.HashBytes(b) },
	)
}

func (e *Engine) compare(first, second func() (bithash.Hash, error)) (int, error) {
	h1, err := first()
	if err != nil {
		return 0, err
	}
	h2, err := second()
	if err != nil {
		return 0, err
	}
	return e.Distance(h1, h2), nil
}

// Distance returns the Hamming distance between two hashes.
func (e *Engine) Distance(a, b bithash.Hash) int {
	return a.Distance(b)
}

// IsUnreadable reports whether err stems from an input that could not be
// decoded.
func IsUnreadable(err error) bool {
	return errors.Is(err, ErrUnreadableImage)
}
