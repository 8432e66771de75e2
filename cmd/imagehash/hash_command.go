package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type hashOutput struct {
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	Bits      int    `json:"bits"`
	Algorithm string `json:"algorithm"`
}

func newHashCommand(ctx *commandContext) *cobra.Command {
	var showBits bool

	cmd := &cobra.Command{
		Use:   "hash <file>...",
		Short: "Print the hash of each image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine()
			if err != nil {
				return err
			}

			outputs := make([]hashOutput, 0, len(args))
			for _, path := range args {
				hash, err := engine.HashFile(path)
				if err != nil {
					return err
				}
				value := hash.Hex()
				if showBits {
					value = hash.Bits()
				}
				outputs = append(outputs, hashOutput{
					Path:      path,
					Hash:      value,
					Bits:      hash.Len(),
					Algorithm: engine.Signature(),
				})
			}

			if ctx.jsonOutput {
				return writeJSON(cmd, outputs)
			}
			for _, out := range outputs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", out.Hash, out.Path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showBits, "bits", false, "Print hashes as bit strings instead of hex")
	return cmd
}
