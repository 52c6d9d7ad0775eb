package main

import (
	"context"
	"fmt"

	"github.com/cvf2grid/cvf2tiles/internal/coord"
	"github.com/cvf2grid/cvf2tiles/internal/manager"
	"github.com/cvf2grid/cvf2tiles/internal/metrics"
	"github.com/cvf2grid/cvf2tiles/internal/pyramid"
	"github.com/spf13/cobra"
)

var (
	pyrTileWidth    int
	pyrTileHeight   int
	pyrPoolCap      int
	pyrDstDir       string
	pyrMinZoom      int
	pyrMaxZoom      int
	pyrAutoZoom     bool
	pyrMetaTileSize int
	pyrAA           int
	pyrConcurrency  int
	pyrFailFast     bool
)

var pyramidCmd = &cobra.Command{
	Use:   "pyramid <tile-dir>",
	Short: "Build a meta-tile pyramid: forward-render the max zoom, then downsample down to the min zoom",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := manager.New(manager.Config{
			Dir: args[0], TileWidth: pyrTileWidth, TileHeight: pyrTileHeight,
			PoolCapacity: pyrPoolCap,
		}, logger, metrics.NewSet(reg, "cvf2tool"))
		defer m.Close()
		maybeServeMetrics(metricsAddr)

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

		minZoom, maxZoom := pyrMinZoom, pyrMaxZoom
		if pyrAutoZoom {
			idx, err := m.Index()
			if err != nil {
				return err
			}
			minZoom, maxZoom = autoZoomRangeForTiles(idx, pyrMetaTileSize)
		}
		if maxZoom < minZoom {
			return fmt.Errorf("max-zoom %d is below min-zoom %d", maxZoom, minZoom)
		}

		opts := pyramid.Options{
			DstDir: pyrDstDir, Zoom: maxZoom, MetaTileSize: pyrMetaTileSize,
			AA: pyrAA, Concurrency: pyrConcurrency, FailFast: pyrFailFast,
		}
		gen := pyramid.New(logger, metrics.NewSet(reg, "cvf2tool_pyramid"))

		tilesPerSide := 1 << uint(maxZoom)
		tilesPerMeta := pyrMetaTileSize / coord.DefaultTileSize
		if tilesPerMeta < 1 {
			tilesPerMeta = 1
		}
		metaPerSide := (tilesPerSide + tilesPerMeta - 1) / tilesPerMeta
		top := metaTileRange(maxZoom, metaPerSide)
		sortMetaTilesByHilbert(top)

		bar := newProgressBar(fmt.Sprintf("render z%d", maxZoom), int64(len(top)))
		opts.OnProgress = bar.Increment
		res, err := gen.RenderMetaTiles(ctx, eng, opts, top)
		bar.Finish()
		if err != nil {
			return fmt.Errorf("render z%d: %w", maxZoom, err)
		}
		logger.Printf("pyramid: z%d rendered ok=%d failed=%d", maxZoom, res.OK, res.Failed)

		for z := maxZoom; z > minZoom; z-- {
			dstMetaPerSide := (metaPerSide + 1) / 2
			dst := metaTileRange(z-1, dstMetaPerSide)
			sortMetaTilesByHilbert(dst)
			dstOpts := opts
			dstOpts.Zoom = z - 1

			bar := newProgressBar(fmt.Sprintf("downsample z%d", z-1), int64(len(dst)))
			dstOpts.OnProgress = bar.Increment
			res, err := gen.DownsampleMetaTiles(ctx, dstOpts, z, dst)
			bar.Finish()
			if err != nil {
				return fmt.Errorf("downsample z%d: %w", z-1, err)
			}
			logger.Printf("pyramid: z%d downsampled ok=%d failed=%d", z-1, res.OK, res.Failed)
			metaPerSide = dstMetaPerSide
		}
		return nil
	},
}

// metaTileRange enumerates every meta-tile in the n x n grid at zoom z.
func metaTileRange(zoom, n int) []pyramid.MetaTileIndex {
	tiles := make([]pyramid.MetaTileIndex, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			tiles = append(tiles, pyramid.MetaTileIndex{Zoom: zoom, X: x, Y: y})
		}
	}
	return tiles
}

// sortMetaTilesByHilbert reorders a batch of same-zoom meta-tiles along a
// Hilbert curve before dispatch, so workers pulling tasks off the front of
// the slice touch tile-pool-adjacent source tiles close together in time
// instead of in raw row-major order.
func sortMetaTilesByHilbert(tiles []pyramid.MetaTileIndex) {
	if len(tiles) <= 1 {
		return
	}
	raw := make([][3]int, len(tiles))
	for i, t := range tiles {
		raw[i] = [3]int{t.Zoom, t.X, t.Y}
	}
	coord.SortTilesByHilbert(raw)
	for i, t := range raw {
		tiles[i] = pyramid.MetaTileIndex{Zoom: t[0], X: t[1], Y: t[2]}
	}
}

func init() {
	pyramidCmd.Flags().IntVar(&pyrTileWidth, "tile-width", 0, "expected source tile width in cells")
	pyramidCmd.MarkFlagRequired("tile-width")
	pyramidCmd.Flags().IntVar(&pyrTileHeight, "tile-height", 0, "expected source tile height in cells")
	pyramidCmd.MarkFlagRequired("tile-height")
	pyramidCmd.Flags().IntVar(&pyrPoolCap, "pool-capacity", 16, "LRU open-file pool capacity")
	pyramidCmd.Flags().StringVar(&pyrDstDir, "dst-dir", "", "destination directory for the meta-tile pyramid")
	pyramidCmd.MarkFlagRequired("dst-dir")
	pyramidCmd.Flags().IntVar(&pyrMinZoom, "min-zoom", 0, "minimum zoom level to downsample down to")
	pyramidCmd.Flags().IntVar(&pyrMaxZoom, "max-zoom", 8, "maximum (forward-rendered) zoom level")
	pyramidCmd.Flags().BoolVar(&pyrAutoZoom, "auto-zoom", false, "derive min/max zoom from the source tile resolution instead of --min-zoom/--max-zoom")
	pyramidCmd.Flags().IntVar(&pyrMetaTileSize, "meta-tile-size", 2048, "meta-tile edge length in pixels, a multiple of the slippy tile size")
	pyramidCmd.Flags().IntVar(&pyrAA, "aa", 2, "anti-aliasing supersample factor, clamped to [1,16]")
	pyramidCmd.Flags().IntVar(&pyrConcurrency, "concurrency", 0, "bounded worker pool size (0 = errgroup default)")
	pyramidCmd.Flags().BoolVar(&pyrFailFast, "fail-fast", false, "abort the whole batch on the first meta-tile error instead of best-effort")
}
