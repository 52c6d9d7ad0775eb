package manager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/stretchr/testify/require"
)

func writeManagerTile(t *testing.T, dir, name string, minX, minY cvf2.Fix, v int64) {
	t.Helper()
	w, err := cvf2.Open(filepath.Join(dir, name), cvf2.WriterOptions{
		Width: 4, Height: 4, SRID: 4326,
		BBox:      cvf2.BBox{MinX: minX, MinY: minY, MaxX: minX + 4, MaxY: minY + 4},
		MinDigits: 2, MaxDigits: 4,
	})
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		require.NoError(t, w.PushValue(v))
	}
	require.NoError(t, w.Finish())
}

func TestManagerLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeManagerTile(t, dir, "a.cvf2", 0, 0, 1)
	writeManagerTile(t, dir, "b.cvf2", 4, 0, 2)

	m := New(Config{Dir: dir, TileWidth: 4, TileHeight: 4, PoolCapacity: 16}, nil, nil)
	defer m.Close()

	_, err := m.Engine()
	require.Error(t, err, "querying before scan/start must fail")

	require.NoError(t, m.Scan(context.Background()))
	require.NoError(t, m.Start(context.Background()))

	eng, err := m.Engine()
	require.NoError(t, err)

	v, err := eng.ValueAt(1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = eng.ValueAt(5, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, v)
}

func TestManagerStartBeforeScanFails(t *testing.T) {
	m := New(Config{Dir: t.TempDir(), TileWidth: 4, TileHeight: 4, PoolCapacity: 16}, nil, nil)
	require.Error(t, m.Start(context.Background()))
}
