package main

import (
	"fmt"

	"github.com/cvf2grid/cvf2tiles/internal/diag"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.cvf2>",
	Short: "Print a CVF2 file's header fields without decoding any row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := diag.Inspect(args[0])
		if err != nil {
			return fmt.Errorf("inspect %s: %w", args[0], err)
		}
		fmt.Println(s.String())
		return nil
	},
}
