package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/spf13/cobra"
)

var (
	encWidth, encHeight   int
	encSRID               int
	encMinX, encMinY      float64
	encMaxX, encMaxY      float64
	encMinDigits          int
	encMaxDigits          int
)

var encodeCmd = &cobra.Command{
	Use:   "encode <cells.csv> <out.cvf2>",
	Short: "Encode an x,y,value CSV stream (as produced by csv/export) into a CVF2 file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer src.Close()

		w, err := cvf2.Open(args[1], cvf2.WriterOptions{
			Width: encWidth, Height: encHeight, SRID: int32(encSRID),
			BBox: cvf2.BBox{
				MinX: cvf2.Fix(encMinX), MinY: cvf2.Fix(encMinY),
				MaxX: cvf2.Fix(encMaxX), MaxY: cvf2.Fix(encMaxY),
			},
			MinDigits: encMinDigits, MaxDigits: encMaxDigits,
		})
		if err != nil {
			return fmt.Errorf("open writer %s: %w", args[1], err)
		}

		values := make([]int64, encWidth*encHeight)
		for i := range values {
			values[i] = cvf2.Undefined
		}
		if err := scanCellsCSV(src, encWidth, values); err != nil {
			w.Abort()
			return err
		}
		for _, v := range values {
			if err := w.PushValue(v); err != nil {
				w.Abort()
				return err
			}
		}
		if err := w.Finish(); err != nil {
			return fmt.Errorf("finish %s: %w", args[1], err)
		}
		logger.Printf("encode: wrote %s (%dx%d)", args[1], encWidth, encHeight)
		return nil
	},
}

// scanCellsCSV parses "x,y,value" lines (a header line is tolerated and
// skipped) into a row-major width*height buffer already seeded with
// Undefined.
func scanCellsCSV(r io.Reader, width int, out []int64) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return fmt.Errorf("line %d: expected x,y,value, got %q", lineNo, line)
		}
		x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
		y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errX != nil || errY != nil {
			if lineNo == 1 {
				continue // header row
			}
			return fmt.Errorf("line %d: bad x/y: %q", lineNo, line)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: bad value: %q", lineNo, line)
		}
		out[y*width+x] = v
	}
	return sc.Err()
}

func init() {
	encodeCmd.Flags().IntVar(&encWidth, "width", 0, "grid width")
	encodeCmd.MarkFlagRequired("width")
	encodeCmd.Flags().IntVar(&encHeight, "height", 0, "grid height")
	encodeCmd.MarkFlagRequired("height")
	encodeCmd.Flags().IntVar(&encSRID, "srid", 4326, "spatial reference identifier")
	encodeCmd.Flags().Float64Var(&encMinX, "min-x", 0, "bbox min x")
	encodeCmd.Flags().Float64Var(&encMinY, "min-y", 0, "bbox min y")
	encodeCmd.Flags().Float64Var(&encMaxX, "max-x", 0, "bbox max x")
	encodeCmd.Flags().Float64Var(&encMaxY, "max-y", 0, "bbox max y")
	encodeCmd.Flags().IntVar(&encMinDigits, "min-digits", 2, "minimum nibble digits per row")
	encodeCmd.Flags().IntVar(&encMaxDigits, "max-digits", 8, "maximum nibble digits per row")
}
