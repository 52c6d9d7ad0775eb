package cvf2

import (
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/cvf2grid/cvf2tiles/internal/rowcodec"
	"github.com/stretchr/testify/require"
)

func writeGrid(t *testing.T, path string, width, height int, values []int64, order binary.ByteOrder) {
	t.Helper()
	w, err := Open(path, WriterOptions{
		Width: width, Height: height, SRID: 4326,
		BBox:      BBox{0, 0, Fix(width), Fix(height)},
		MinDigits: 2, MaxDigits: 8, ByteOrder: order,
	})
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, w.PushValue(v))
	}
	require.NoError(t, w.Finish())
}

func TestRoundTripIdentityRandomGrid(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(42))
	width, height := 12, 9
	values := make([]int64, width*height)
	for i := range values {
		if rng.Intn(5) == 0 {
			values[i] = rowcodec.Undefined
		} else {
			values[i] = rng.Int63n(1 << 30)
		}
	}
	path := filepath.Join(dir, "grid.cvf2")
	writeGrid(t, path, width, height, values, binary.LittleEndian)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	for y := 0; y < height; y++ {
		row, err := r.ReadRow(y)
		require.NoError(t, err)
		require.Equal(t, values[y*width:(y+1)*width], row)
	}
}

func TestValueAtReadRowAgreement(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(7))
	width, height := 100, 100
	values := make([]int64, width*height)
	for i := range values {
		if rng.Intn(5) == 0 {
			values[i] = rowcodec.Undefined
		} else {
			values[i] = rng.Int63n(1 << 24)
		}
	}
	path := filepath.Join(dir, "grid.cvf2")
	writeGrid(t, path, width, height, values, binary.LittleEndian)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	for y := 0; y < height; y++ {
		row, err := r.ReadRow(y)
		require.NoError(t, err)
		for x := 0; x < width; x++ {
			v, err := r.ValueAt(x, y, false)
			require.NoError(t, err)
			require.Equal(t, row[x], v, "x=%d y=%d", x, y)
		}
	}
}

func TestCacheConsistency(t *testing.T) {
	dir := t.TempDir()
	values := []int64{1, 2, rowcodec.Undefined, 4, 5, 6}
	path := filepath.Join(dir, "grid.cvf2")
	writeGrid(t, path, 3, 2, values, binary.LittleEndian)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			uncached, err := r.ValueAt(x, y, false)
			require.NoError(t, err)
			cached, err := r.ValueAt(x, y, true)
			require.NoError(t, err)
			require.Equal(t, uncached, cached)
		}
	}
}

func TestHeaderPatchingCompleteness(t *testing.T) {
	dir := t.TempDir()
	values := []int64{10, 20, rowcodec.Undefined, 40}
	path := filepath.Join(dir, "grid.cvf2")
	writeGrid(t, path, 2, 2, values, binary.LittleEndian)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	hdr := r.Header()
	require.EqualValues(t, 1, hdr.UndefCount)
	require.EqualValues(t, 10, hdr.MinValue)
	require.EqualValues(t, 40, hdr.MaxValue)
	require.EqualValues(t, (10+20+40)/3, hdr.MeanValue)
	require.NotZero(t, hdr.RowOffsetsPos)
}

func TestMeanValueUnaffectedByRunRewind(t *testing.T) {
	dir := t.TempDir()
	// A jump from 0,1 to 1000,1001 forces a run rewind at max_diff(2)=254;
	// the defined-cell count and mean must still reflect all 4 pushed
	// values, not be reduced by the rewind count.
	values := []int64{0, 1, 1000, 1001}
	path := filepath.Join(dir, "grid.cvf2")
	w, err := Open(path, WriterOptions{
		Width: 4, Height: 1, SRID: 4326,
		BBox: BBox{0, 0, 4, 1}, MinDigits: 2, MaxDigits: 2,
	})
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, w.PushValue(v))
	}
	require.NoError(t, w.Finish())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	hdr := r.Header()
	require.EqualValues(t, 0, hdr.UndefCount)
	require.EqualValues(t, (0+1+1000+1001)/4, hdr.MeanValue)
}

func TestEndianTransparency(t *testing.T) {
	dir := t.TempDir()
	values := []int64{100, 200, rowcodec.Undefined, 400, 500, 600}

	lePath := filepath.Join(dir, "le.cvf2")
	bePath := filepath.Join(dir, "be.cvf2")
	writeGrid(t, lePath, 3, 2, values, binary.LittleEndian)
	writeGrid(t, bePath, 3, 2, values, binary.BigEndian)

	le, err := OpenReader(lePath)
	require.NoError(t, err)
	defer le.Close()
	be, err := OpenReader(bePath)
	require.NoError(t, err)
	defer be.Close()

	for y := 0; y < 2; y++ {
		leRow, err := le.ReadRow(y)
		require.NoError(t, err)
		beRow, err := be.ReadRow(y)
		require.NoError(t, err)
		require.Equal(t, leRow, beRow)
	}
}

func TestRowOffsetTableExactness(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(99))
	width, height := 8, 5
	values := make([]int64, width*height)
	for i := range values {
		values[i] = rng.Int63n(1000)
	}
	path := filepath.Join(dir, "grid.cvf2")
	writeGrid(t, path, width, height, values, binary.LittleEndian)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.rowOffsets, height)
	for i := 1; i < len(r.rowOffsets); i++ {
		require.Greater(t, r.rowOffsets[i], r.rowOffsets[i-1])
	}
}

func TestBulkWriteMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bulk.cvf2")
	w, err := Open(path, WriterOptions{Width: 2, Height: 2, SRID: 3857, MinDigits: 2, MaxDigits: 8})
	require.NoError(t, err)

	require.NoError(t, w.PushValueAt(1, 0, 99))
	require.NoError(t, w.PushValueAt(0, 1, 5))
	require.NoError(t, w.Finish())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	v, err := r.ValueAt(1, 0, false)
	require.NoError(t, err)
	require.EqualValues(t, 99, v)

	v, err = r.ValueAt(0, 0, false)
	require.NoError(t, err)
	require.Equal(t, rowcodec.Undefined, v)
}

func TestFinishTwiceFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grid.cvf2")
	w, err := Open(path, WriterOptions{Width: 1, Height: 1, MinDigits: 2, MaxDigits: 2})
	require.NoError(t, err)
	require.NoError(t, w.PushValue(1))
	require.NoError(t, w.Finish())

	// Finish twice is rejected.
	require.Error(t, w.Finish())
}

func TestAbortRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.cvf2")
	w, err := Open(path, WriterOptions{Width: 4, Height: 1, MinDigits: 2, MaxDigits: 2})
	require.NoError(t, err)
	require.NoError(t, w.PushValue(1))
	w.Abort()

	_, err = OpenReader(path)
	require.Error(t, err)
}
