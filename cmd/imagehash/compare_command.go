package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// defaultThreshold is the distance below which two images are usually the
// same picture.
const defaultThreshold = 10

type compareOutput struct {
	A         string `json:"a"`
	B         string `json:"b"`
	HashA     string `json:"hash_a"`
	HashB     string `json:"hash_b"`
	Distance  int    `json:"distance"`
	Similar   bool   `json:"similar"`
	Algorithm string `json:"algorithm"`
}

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var threshold int

	cmd := &cobra.Command{
		Use:   "compare <a> <b>",
		Short: "Hash two images and print their Hamming distance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}
			a, err := engine.HashFile(args[0])
			if err != nil {
				return err
			}
			b, err := engine.HashFile(args[1])
			if err != nil {
				return err
			}

			distance := engine.Distance(a, b)
			out := compareOutput{
				A:         args[0],
				B:         args[1],
				HashA:     a.Hex(),
				HashB:     b.Hex(),
				Distance:  distance,
				Similar:   distance < threshold,
				Algorithm: engine.Signature(),
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, out)
			}
			verdict := "different"
			if out.Similar {
				verdict = "similar"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", distance, verdict)
			return nil
		},
	}
	cmd.Flags().IntVarP(&threshold, "threshold", "t", defaultThreshold, "Distances below this are reported as similar")
	return cmd
}
