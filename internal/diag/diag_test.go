package diag

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/valuegrid"
	"github.com/stretchr/testify/require"
)

func TestExportCSVSkipsUndefined(t *testing.T) {
	g := valuegrid.New[int64](2, 2)
	g.SetInvalidValue(cvf2.Undefined)
	g.Invalidate()
	g.SetValueAt(0, 0, 10)
	g.SetValueAt(1, 1, 20)

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, g))

	out := buf.String()
	require.Equal(t, "x,y,value\n0,0,10\n1,1,20\n", out)
}

func TestInspectReadsHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cvf2")
	w, err := cvf2.Open(path, cvf2.WriterOptions{
		Width: 2, Height: 2, SRID: 4326,
		BBox:      cvf2.BBox{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2},
		MinDigits: 2, MaxDigits: 4,
	})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, w.PushValue(int64(i)))
	}
	require.NoError(t, w.Finish())

	s, err := Inspect(path)
	require.NoError(t, err)
	require.EqualValues(t, 2, s.Width)
	require.EqualValues(t, 2, s.Height)
	require.EqualValues(t, 4326, s.SRID)
	require.NotEmpty(t, s.String())
}
