package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/busquepet/imagehash/pkg/imagehash"
	"github.com/busquepet/imagehash/pkg/pixel"
)

// Prefix is prepended to every environment variable read by Load.
const Prefix = "IMAGEHASH"

// Config groups every environment-driven setting required by the Go services.
type Config struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RedisURL       string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	NATSURL        string        `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	StorageDir     string        `envconfig:"STORAGE_DIR" default:"./uploads"`
	MaxImageMB     int64         `envconfig:"MAX_IMAGE_MB" default:"12"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"48h"`

	Algorithm            string `envconfig:"ALGORITHM" default:"difference"`
	AverageSize          int    `envconfig:"AVERAGE_SIZE" default:"8"`
	DifferenceSize       int    `envconfig:"DIFFERENCE_SIZE" default:"8"`
	PerceptualSize       int    `envconfig:"PERCEPTUAL_SIZE" default:"32"`
	PerceptualComparison string `envconfig:"PERCEPTUAL_COMPARISON" default:"average"`
	BlockSize            int    `envconfig:"BLOCK_SIZE" default:"16"`
	BlockMode            string `envconfig:"BLOCK_MODE" default:"precise"`
	ResampleFilter       string `envconfig:"RESAMPLE_FILTER" default:"linear"`
	AutoOrient           bool   `envconfig:"AUTO_ORIENT" default:"true"`
}

// Load builds the Config from environment variables and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every algorithm can be built from the configured
// parameters and that the default algorithm is one of them.
func (c Config) Validate() error {
	if _, err := pixel.ParseFilter(c.ResampleFilter); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MaxImageMB <= 0 {
		return fmt.Errorf("config: MAX_IMAGE_MB must be positive, got %d", c.MaxImageMB)
	}
	if _, err := c.Engines(nil); err != nil {
		return err
	}
	if _, ok := c.HashConfig(imagehash.Algorithm(strings.ToLower(c.Algorithm))); !ok {
		return fmt.Errorf("config: %w: unknown algorithm %q", imagehash.ErrInvalidConfiguration, c.Algorithm)
	}
	return nil
}

// HashConfig returns the configured parameters for algo.
func (c Config) HashConfig(algo imagehash.Algorithm) (imagehash.Config, bool) {
	switch algo {
	case imagehash.Average:
		return imagehash.Config{Algorithm: algo, Size: c.AverageSize}, true
	case imagehash.Difference:
		return imagehash.Config{Algorithm: algo, Size: c.DifferenceSize}, true
	case imagehash.Perceptual:
		return imagehash.Config{
			Algorithm:  algo,
			Size:       c.PerceptualSize,
			Comparison: imagehash.ComparisonMethod(strings.ToLower(c.PerceptualComparison)),
		}, true
	case imagehash.Block:
		return imagehash.Config{
			Algorithm: algo,
			Size:      c.BlockSize,
			Mode:      imagehash.BlockMode(strings.ToLower(c.BlockMode)),
		}, true
	default:
		return imagehash.Config{}, false
	}
}

// Engines builds one engine per algorithm, keyed by algorithm name, sharing
// the configured resample filter and orientation handling.
func (c Config) Engines(logger *zap.Logger) (map[imagehash.Algorithm]*imagehash.Engine, error) {
	filter, err := pixel.ParseFilter(c.ResampleFilter)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	engines := make(map[imagehash.Algorithm]*imagehash.Engine, len(imagehash.Algorithms))
	for _, algo := range imagehash.Algorithms {
		hc, _ := c.HashConfig(algo)
		impl, err := imagehash.New(hc)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", algo, err)
		}
		engines[algo] = imagehash.NewEngine(impl,
			imagehash.WithResampleFilter(filter),
			imagehash.WithAutoOrientation(c.AutoOrient),
			imagehash.WithLogger(logger),
		)
	}
	return engines, nil
}

// DefaultAlgorithm returns the configured default algorithm name.
func (c Config) DefaultAlgorithm() imagehash.Algorithm {
	return imagehash.Algorithm(strings.ToLower(c.Algorithm))
}
