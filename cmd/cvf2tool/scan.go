package main

import (
	"context"
	"fmt"

	"github.com/cvf2grid/cvf2tiles/internal/metrics"
	"github.com/cvf2grid/cvf2tiles/internal/tileindex"
	"github.com/spf13/cobra"
)

var (
	scanTileWidth  int
	scanTileHeight int
	scanMaxTiles   int
	scanConcurrency int
)

var scanCmd = &cobra.Command{
	Use:   "scan <tile-dir>",
	Short: "Scan a directory of CVF2 tiles and print the derived tile grid and union bbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := metrics.NewSet(reg, "cvf2tool")
		maybeServeMetrics(metricsAddr)
		cfg := tileindex.Config{
			Dir: args[0], TileWidth: scanTileWidth, TileHeight: scanTileHeight,
			MaxTiles: scanMaxTiles, Concurrency: scanConcurrency, Metrics: m,
		}
		res, err := tileindex.Scan(context.Background(), cfg)
		if err != nil {
			return fmt.Errorf("scan %s: %w", args[0], err)
		}
		fmt.Printf("files=%d srid=%d tiles=%dx%d union_bbox=[%d,%d,%d,%d] wrong_dimension=%d undef=%d min=%d max=%d\n",
			len(res.Files), res.SRID, res.XTileCount, res.YTileCount,
			res.UnionBBox.MinX, res.UnionBBox.MinY, res.UnionBBox.MaxX, res.UnionBBox.MaxY,
			res.WrongDimension, res.UndefCount, res.MinValue, res.MaxValue)
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanTileWidth, "tile-width", 0, "expected tile width in cells")
	scanCmd.MarkFlagRequired("tile-width")
	scanCmd.Flags().IntVar(&scanTileHeight, "tile-height", 0, "expected tile height in cells")
	scanCmd.MarkFlagRequired("tile-height")
	scanCmd.Flags().IntVar(&scanMaxTiles, "max-tiles", 0, "abort if the derived tile grid would exceed this many tiles (0 = unbounded)")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 0, "bounded worker pool size (0 = errgroup default)")
}
