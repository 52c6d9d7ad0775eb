package main

import (
	"fmt"
	"os"

	"github.com/cvf2grid/cvf2tiles/internal/diag"
	"github.com/spf13/cobra"
)

var csvOut string

var csvCmd = &cobra.Command{
	Use:   "csv <file.cvf2>",
	Short: "Dump a CVF2 file's defined cells as x,y,value CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadCVF2Grid(args[0])
		if err != nil {
			return fmt.Errorf("load %s: %w", args[0], err)
		}

		out := os.Stdout
		if csvOut != "" {
			f, err := os.Create(csvOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", csvOut, err)
			}
			defer f.Close()
			out = f
		}
		return diag.ExportCSV(out, g)
	},
}

func init() {
	csvCmd.Flags().StringVar(&csvOut, "out", "", "output file (default stdout)")
}
