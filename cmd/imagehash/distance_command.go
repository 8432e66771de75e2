package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/busquepet/imagehash/pkg/bithash"
)

func newDistanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "distance <hex> <hex>",
		Short: "Print the Hamming distance between two hex hashes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bithash.ParseHex(args[0])
			if err != nil {
				return err
			}
			b, err := bithash.ParseHex(args[1])
			if err != nil {
				return err
			}
			distance := a.Distance(b)
			if ctx.jsonOutput {
				return writeJSON(cmd, map[string]any{"distance": distance, "equal": a.Equal(b)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), distance)
			return nil
		},
	}
}
