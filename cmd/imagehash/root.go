package main

import (
	"github.com/spf13/cobra"

	"github.com/busquepet/imagehash/pkg/imagehash"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "imagehash",
		Short:         "Perceptual image hashing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.algorithm, "algorithm", "a", string(imagehash.Difference), "Hash algorithm: average, difference, perceptual or block")
	flags.IntVarP(&ctx.size, "size", "s", 0, "Grid size (0 selects the algorithm default)")
	flags.StringVar(&ctx.mode, "mode", string(imagehash.Precise), "Block hash mode: quick or precise")
	flags.StringVar(&ctx.comparison, "comparison", string(imagehash.CompareAverage), "Perceptual hash threshold: average or median")
	flags.StringVar(&ctx.filter, "filter", "linear", "Resample filter: nearest, box, linear, catmullrom or lanczos")
	flags.BoolVar(&ctx.autoOrient, "auto-orient", true, "Apply the EXIF orientation tag before hashing")
	flags.BoolVar(&ctx.jsonOutput, "json", false, "Write JSON output")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "Log decode diagnostics to stderr")

	rootCmd.AddCommand(newHashCommand(ctx))
	rootCmd.AddCommand(newCompareCommand(ctx))
	rootCmd.AddCommand(newDistanceCommand(ctx))

	return rootCmd
}
