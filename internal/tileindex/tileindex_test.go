package tileindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/stretchr/testify/require"
)

func writeTileFile(t *testing.T, dir, name string, minX, minY cvf2.Fix, w, h int, v int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	// The bbox max is the coordinate of the last cell: a 10-wide tile at 0
	// spans 0..9, which is what Scan's floor(width/tile)+1 count assumes.
	wtr, err := cvf2.Open(path, cvf2.WriterOptions{
		Width: w, Height: h, SRID: 4326,
		BBox:      cvf2.BBox{MinX: minX, MinY: minY, MaxX: minX + cvf2.Fix(w) - 1, MaxY: minY + cvf2.Fix(h) - 1},
		MinDigits: 2, MaxDigits: 4,
	})
	require.NoError(t, err)
	for i := 0; i < w*h; i++ {
		require.NoError(t, wtr.PushValue(v))
	}
	require.NoError(t, wtr.Finish())
	return path
}

func TestScanAndStartTwoAdjacentTiles(t *testing.T) {
	dir := t.TempDir()
	writeTileFile(t, dir, "a.cvf2", 0, 0, 10, 10, 1)
	writeTileFile(t, dir, "b.cvf2", 10, 0, 10, 10, 2)

	cfg := Config{Dir: dir, TileWidth: 10, TileHeight: 10}
	scan, err := Scan(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 2, len(scan.Files))
	require.Equal(t, 2, scan.XTileCount)
	require.Equal(t, 1, scan.YTileCount)

	idx, err := Start(context.Background(), cfg, scan)
	require.NoError(t, err)
	require.Equal(t, 0, idx.MultiInit)

	t0, ok := idx.TileAt(0, 0)
	require.True(t, ok)
	require.True(t, t0.Valid)
	t1, ok := idx.TileAt(1, 0)
	require.True(t, ok)
	require.True(t, t1.Valid)
}

func TestScanDetectsWrongDimension(t *testing.T) {
	dir := t.TempDir()
	writeTileFile(t, dir, "a.cvf2", 0, 0, 10, 10, 1)
	writeTileFile(t, dir, "odd.cvf2", 100, 100, 5, 5, 1)

	cfg := Config{Dir: dir, TileWidth: 10, TileHeight: 10}
	scan, err := Scan(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 1, scan.WrongDimension)
}

func TestScanUnionMinMaxHandlesZeroAndNegativeValues(t *testing.T) {
	dir := t.TempDir()
	// "a" is an all-zero tile (a legitimate MinValue/MaxValue of 0, not a
	// sentinel for "uninitialized"); "b" is strictly positive, so the true
	// union min is 0 and must not be clobbered by b's header.
	writeTileFile(t, dir, "a.cvf2", 0, 0, 10, 10, 0)
	writeTileFile(t, dir, "b.cvf2", 10, 0, 10, 10, 5)

	cfg := Config{Dir: dir, TileWidth: 10, TileHeight: 10}
	scan, err := Scan(context.Background(), cfg)
	require.NoError(t, err)
	require.EqualValues(t, 0, scan.MinValue)
	require.EqualValues(t, 5, scan.MaxValue)
}

func TestScanUnionMaxAllowsNegativeOnlyTile(t *testing.T) {
	dir := t.TempDir()
	// A single all-negative tile: the true union max is negative and must
	// not be pinned at the zero value's zero-initialized starting point.
	writeTileFile(t, dir, "a.cvf2", 0, 0, 10, 10, -5)

	cfg := Config{Dir: dir, TileWidth: 10, TileHeight: 10}
	scan, err := Scan(context.Background(), cfg)
	require.NoError(t, err)
	require.EqualValues(t, -5, scan.MinValue)
	require.EqualValues(t, -5, scan.MaxValue)
}

func TestStartDetectsMultiInit(t *testing.T) {
	dir := t.TempDir()
	writeTileFile(t, dir, "a.cvf2", 0, 0, 10, 10, 1)
	writeTileFile(t, dir, "dup.cvf2", 1, 1, 10, 10, 5)

	cfg := Config{Dir: dir, TileWidth: 10, TileHeight: 10}
	scan, err := Scan(context.Background(), cfg)
	require.NoError(t, err)

	idx, err := Start(context.Background(), cfg, scan)
	require.NoError(t, err)
	require.Equal(t, 1, idx.MultiInit)
}
