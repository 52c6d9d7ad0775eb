package main

import (
	"context"
	"fmt"

	"github.com/cvf2grid/cvf2tiles/internal/manager"
	"github.com/spf13/cobra"
)

var (
	queryTileWidth  int
	queryTileHeight int
	queryPoolCap    int
	queryWGS84      bool
)

var queryCmd = &cobra.Command{
	Use:   "query <tile-dir> <x> <y>",
	Short: "Scan a tile directory and answer a single point query",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var x, y float64
		if _, err := fmt.Sscanf(args[1], "%g", &x); err != nil {
			return fmt.Errorf("parse x: %w", err)
		}
		if _, err := fmt.Sscanf(args[2], "%g", &y); err != nil {
			return fmt.Errorf("parse y: %w", err)
		}

		m := manager.New(manager.Config{
			Dir: args[0], TileWidth: queryTileWidth, TileHeight: queryTileHeight,
			PoolCapacity: queryPoolCap,
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

		var v int64
		if queryWGS84 {
			v, err = eng.ValueAtWGS84(x, y)
		} else {
			v, err = eng.ValueAt(x, y)
		}
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		fmt.Println(v)
		return nil
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryTileWidth, "tile-width", 0, "expected tile width in cells")
	queryCmd.MarkFlagRequired("tile-width")
	queryCmd.Flags().IntVar(&queryTileHeight, "tile-height", 0, "expected tile height in cells")
	queryCmd.MarkFlagRequired("tile-height")
	queryCmd.Flags().IntVar(&queryPoolCap, "pool-capacity", 16, "LRU open-file pool capacity")
	queryCmd.Flags().BoolVar(&queryWGS84, "wgs84", false, "treat x,y as WGS84 lon,lat and project to tile SRID")
}
