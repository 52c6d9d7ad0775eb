package pyramid

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cvf2grid/cvf2tiles/internal/coord"
	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/query"
	"github.com/cvf2grid/cvf2tiles/internal/tileindex"
	"github.com/cvf2grid/cvf2tiles/internal/tilepool"
	"github.com/stretchr/testify/require"
)

func buildTestEngine(t *testing.T) *query.Engine {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []struct {
		name       string
		minX, minY cvf2.Fix
	}{
		{"a.cvf2", -180, -85},
	} {
		w, err := cvf2.Open(filepath.Join(dir, f.name), cvf2.WriterOptions{
			Width: 256, Height: 256, SRID: 3857,
			BBox:      cvf2.BBox{MinX: f.minX, MinY: f.minY, MaxX: f.minX + 256, MaxY: f.minY + 256},
			MinDigits: 2, MaxDigits: 4,
		})
		require.NoError(t, err)
		for i := 0; i < 256*256; i++ {
			require.NoError(t, w.PushValue(7))
		}
		require.NoError(t, w.Finish())
	}

	cfg := tileindex.Config{Dir: dir, TileWidth: 256, TileHeight: 256}
	scan, err := tileindex.Scan(context.Background(), cfg)
	require.NoError(t, err)
	idx, err := tileindex.Start(context.Background(), cfg, scan)
	require.NoError(t, err)

	pool := tilepool.New(16, func(i int) (string, bool) {
		y, x := i/idx.Scan.XTileCount, i%idx.Scan.XTileCount
		tile, ok := idx.TileAt(x, y)
		if !ok || tile.FilePath == "" {
			return "", false
		}
		return tile.FilePath, true
	}, nil)
	t.Cleanup(pool.Close)

	return query.New(idx, pool)
}

func TestRenderMetaTilesWritesFiles(t *testing.T) {
	eng := buildTestEngine(t)
	dstDir := t.TempDir()

	gen := New(nil, nil)
	opts := Options{DstDir: dstDir, Zoom: 2, MetaTileSize: 64, AA: 1, Concurrency: 2}
	tiles := []MetaTileIndex{{Zoom: 2, X: 0, Y: 0}, {Zoom: 2, X: 1, Y: 0}}

	res, err := gen.RenderMetaTiles(context.Background(), eng, opts, tiles)
	require.NoError(t, err)
	require.Equal(t, 2, res.OK)
	require.Equal(t, 0, res.Failed)
}

func TestRenderMetaTilesBestEffortOnFailure(t *testing.T) {
	eng := buildTestEngine(t)
	dstDir := t.TempDir()

	gen := New(nil, nil)
	// A directory sits at meta-tile 2/2/2's output path, so writing that
	// meta-tile fails; the batch still writes 2/0/0 and reports both.
	require.NoError(t, os.MkdirAll(filepath.Join(dstDir, coord.MetaTilePath(2, 2, 2)), 0o755))
	opts := Options{DstDir: dstDir, Zoom: 2, MetaTileSize: 16, AA: 1, Concurrency: 2, FailFast: false}
	tiles := []MetaTileIndex{{Zoom: 2, X: 0, Y: 0}, {Zoom: 2, X: 2, Y: 2}}

	res, err := gen.RenderMetaTiles(context.Background(), eng, opts, tiles)
	require.NoError(t, err)
	require.Equal(t, len(tiles), res.OK+res.Failed)
	require.Equal(t, 1, res.Failed)
}
