package main

import (
	"context"
	"fmt"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/diag"
	"github.com/cvf2grid/cvf2tiles/internal/manager"
	"github.com/cvf2grid/cvf2tiles/internal/valuegrid"
	"github.com/spf13/cobra"
)

var (
	renderTileWidth  int
	renderTileHeight int
	renderPoolCap    int
	renderDstSRID    int
	renderWidth      int
	renderHeight     int
	renderAA         int
	renderMinLon     float64
	renderMinLat     float64
	renderMaxLon     float64
	renderMaxLat     float64
	renderOut        string
	renderAsCVF2     bool
)

var renderCmd = &cobra.Command{
	Use:   "render <tile-dir>",
	Short: "Render a WGS84 bounding box from a scanned tile directory into a grid, written as CSV or CVF2",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := manager.New(manager.Config{
			Dir: args[0], TileWidth: renderTileWidth, TileHeight: renderTileHeight,
			PoolCapacity: renderPoolCap,
		}, logger, nil)
		defer m.Close()

		ctx := context.Background()
		if err := m.Scan(ctx); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if err := m.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		eng, err := m.Engine()
		if err != nil {
			return err
		}

		out := valuegrid.New[int64](renderWidth, renderHeight)
		out.SetInvalidValue(cvf2.Undefined)
		bbox := cvf2.BBox{
			MinX: cvf2.Fix(renderMinLon), MinY: cvf2.Fix(renderMinLat),
			MaxX: cvf2.Fix(renderMaxLon), MaxY: cvf2.Fix(renderMaxLat),
		}
		if err := eng.RenderToValueGrid(int32(renderDstSRID), bbox, renderAA, out); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		out.SetGeoInfo(valuegrid.GeoInfo{SRID: 4326, BBox: bbox})

		if renderAsCVF2 {
			if err := valuegrid.WriteCVF2(renderOut, out, cvf2.WriterOptions{SRID: int32(renderDstSRID), MinDigits: 2, MaxDigits: 8}); err != nil {
				return fmt.Errorf("write %s: %w", renderOut, err)
			}
			logger.Printf("render: wrote %s (%dx%d)", renderOut, renderWidth, renderHeight)
			return nil
		}

		f, err := createOrStdout(renderOut)
		if err != nil {
			return err
		}
		defer f.Close()
		return diag.ExportCSV(f, out)
	},
}

func init() {
	renderCmd.Flags().IntVar(&renderTileWidth, "tile-width", 0, "expected tile width in cells")
	renderCmd.MarkFlagRequired("tile-width")
	renderCmd.Flags().IntVar(&renderTileHeight, "tile-height", 0, "expected tile height in cells")
	renderCmd.MarkFlagRequired("tile-height")
	renderCmd.Flags().IntVar(&renderPoolCap, "pool-capacity", 16, "LRU open-file pool capacity")
	renderCmd.Flags().IntVar(&renderDstSRID, "dst-srid", 3857, "destination spatial reference identifier")
	renderCmd.Flags().IntVar(&renderWidth, "width", 256, "output grid width")
	renderCmd.Flags().IntVar(&renderHeight, "height", 256, "output grid height")
	renderCmd.Flags().IntVar(&renderAA, "aa", 1, "anti-aliasing supersample factor, clamped to [1,16]")
	renderCmd.Flags().Float64Var(&renderMinLon, "min-lon", -180, "bbox min longitude")
	renderCmd.Flags().Float64Var(&renderMinLat, "min-lat", -85, "bbox min latitude")
	renderCmd.Flags().Float64Var(&renderMaxLon, "max-lon", 180, "bbox max longitude")
	renderCmd.Flags().Float64Var(&renderMaxLat, "max-lat", 85, "bbox max latitude")
	renderCmd.Flags().StringVar(&renderOut, "out", "", "output path (default stdout for CSV)")
	renderCmd.Flags().BoolVar(&renderAsCVF2, "cvf2", false, "write a CVF2 file instead of CSV (requires --out)")
}
