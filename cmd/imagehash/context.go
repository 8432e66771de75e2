package main

import (
	"go.uber.org/zap"

	"github.com/busquepet/imagehash/pkg/imagehash"
	"github.com/busquepet/imagehash/pkg/logger"
	"github.com/busquepet/imagehash/pkg/pixel"
)

// commandContext carries the persistent flags shared by every subcommand.
type commandContext struct {
	algorithm  string
	size       int
	mode       string
	comparison string
	filter     string
	autoOrient bool
	jsonOutput bool
	verbose    bool
}

func (c *commandContext) logger() (*zap.Logger, error) {
	if !c.verbose {
		return zap.NewNop(), nil
	}
	return logger.NewDevelopment()
}

// engine builds the engine selected by the flags.
func (c *commandContext) engine() (*imagehash.Engine, error) {
	impl, err := imagehash.New(imagehash.Config{
		Algorithm:  imagehash.Algorithm(c.algorithm),
		Size:       c.size,
		Comparison: imagehash.ComparisonMethod(c.comparison),
		Mode:       imagehash.BlockMode(c.mode),
	})
	if err != nil {
		return nil, err
	}
	filter, err := pixel.ParseFilter(c.filter)
	if err != nil {
		return nil, err
	}
	log, err := c.logger()
	if err != nil {
		return nil, err
	}
	return imagehash.NewEngine(impl,
		imagehash.WithResampleFilter(filter),
		imagehash.WithAutoOrientation(c.autoOrient),
		imagehash.WithLogger(log),
	), nil
}
