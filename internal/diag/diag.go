// Package diag implements the supplemented operator diagnostics from
// CVF2TileManager.cpp's exportCSV and the header-inspection half of
// CVF2File::startRead: a CSV dump of a rendered grid and a structured
// header summary, both meant for a CLI or a shell pipeline rather than a
// pixel-format image.
package diag

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/valuegrid"
)

// ExportCSV writes "x,y,value" for every defined cell of g, in row-major
// order, skipping Undefined cells, grounded on
// CVF2TileManager::exportCSV's "crs,range,...,undefined_values" column
// style but simplified to per-cell rows since this dumps a single grid,
// not a tile manager's whole tile list.
func ExportCSV(w io.Writer, g *valuegrid.Grid[int64]) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("x,y,value\n"); err != nil {
		return err
	}
	invalid, hasInvalid := g.InvalidValue()
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.ValueAt(x, y)
			if v == cvf2.Undefined || (hasInvalid && v == invalid) {
				continue
			}
			if _, err := fmt.Fprintf(bw, "%d,%d,%d\n", x, y, v); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Summary is the struct form of a CVF2 header inspection, for use by a
// "cvf2tool inspect" subcommand. Grounded on the header-parse half of
// CVF2File::startRead plus the teacher's coginfo command's "print header
// fields" shape.
type Summary struct {
	Width, Height uint32
	SRID          int32
	BBox          cvf2.BBox
	UndefCount    int32
	MinValue      int64
	MaxValue      int64
	MeanValue     cvf2.Fix
	RowOffsetsPos uint32
}

// Inspect parses a CVF2 file's header without decoding any row data.
func Inspect(path string) (Summary, error) {
	r, err := cvf2.OpenReader(path)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()
	hdr := r.Header()
	return Summary{
		Width: hdr.Width, Height: hdr.Height, SRID: hdr.SRID, BBox: hdr.BBox,
		UndefCount: hdr.UndefCount, MinValue: hdr.MinValue, MaxValue: hdr.MaxValue,
		MeanValue: hdr.MeanValue, RowOffsetsPos: hdr.RowOffsetsPos,
	}, nil
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"width=%d height=%d srid=%d bbox=[%d,%d,%d,%d] undef_count=%d min=%d max=%d mean=%d row_offsets_pos=%d",
		s.Width, s.Height, s.SRID, s.BBox.MinX, s.BBox.MinY, s.BBox.MaxX, s.BBox.MaxY,
		s.UndefCount, s.MinValue, s.MaxValue, s.MeanValue, s.RowOffsetsPos,
	)
}
