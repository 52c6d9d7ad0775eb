package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/tileindex"
	"github.com/cvf2grid/cvf2tiles/internal/tilepool"
	"github.com/cvf2grid/cvf2tiles/internal/valuegrid"
	"github.com/stretchr/testify/require"
)

func writeConstTile(t *testing.T, dir, name string, minX, minY cvf2.Fix, w, h int, v int64) {
	t.Helper()
	wtr, err := cvf2.Open(filepath.Join(dir, name), cvf2.WriterOptions{
		Width: w, Height: h, SRID: 4326,
		BBox:      cvf2.BBox{MinX: minX, MinY: minY, MaxX: minX + cvf2.Fix(w), MaxY: minY + cvf2.Fix(h)},
		MinDigits: 2, MaxDigits: 4,
	})
	require.NoError(t, err)
	for i := 0; i < w*h; i++ {
		require.NoError(t, wtr.PushValue(v))
	}
	require.NoError(t, wtr.Finish())
}

func buildEngine(t *testing.T) (*Engine, *tilepool.Pool) {
	t.Helper()
	dir := t.TempDir()
	writeConstTile(t, dir, "a.cvf2", 0, 0, 10, 10, 11)
	writeConstTile(t, dir, "b.cvf2", 10, 0, 10, 10, 22)

	cfg := tileindex.Config{Dir: dir, TileWidth: 10, TileHeight: 10}
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

	return New(idx, pool), pool
}

func TestPointQueryBothTiles(t *testing.T) {
	eng, pool := buildEngine(t)
	defer pool.Close()

	v, err := eng.ValueAt(5, 5)
	require.NoError(t, err)
	require.EqualValues(t, 11, v)

	v, err = eng.ValueAt(15, 5)
	require.NoError(t, err)
	require.EqualValues(t, 22, v)
}

func TestPointQueryOutOfBoundsUndefined(t *testing.T) {
	eng, pool := buildEngine(t)
	defer pool.Close()

	v, err := eng.ValueAt(-1, 0)
	require.NoError(t, err)
	require.Equal(t, cvf2.Undefined, v)

	v, err = eng.ValueAt(100, 100)
	require.NoError(t, err)
	require.Equal(t, cvf2.Undefined, v)
}

func TestRenderToValueGridNoAA(t *testing.T) {
	eng, pool := buildEngine(t)
	defer pool.Close()

	out := valuegrid.New[int64](4, 4)
	bbox := cvf2.BBox{MinX: 0, MinY: 0, MaxX: 20, MaxY: 10}
	require.NoError(t, eng.RenderToValueGrid(4326, bbox, 1, out))

	min, max, ok := out.MinMax()
	require.True(t, ok)
	require.True(t, min == 11 || min == 22)
	require.True(t, max == 11 || max == 22)
}
