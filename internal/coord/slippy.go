package coord

import (
	"fmt"
	"path/filepath"
)

// MetaTilePath deterministically and bijectively maps a (zoom, x, y)
// meta-tile index to a two-level directory path plus a ".cvf" filename, of
// the shape zoom/x_major/x_minor_y.cvf. Each x_major directory groups 1024
// consecutive columns, so a zoom directory holds one entry per 1024
// columns; an x_major directory holds one file per (x_minor, y) pair, so
// its entry count grows with the number of rows as well as the columns.
func MetaTilePath(zoom, x, y int) string {
	const bucketSize = 1024
	xMajor := x / bucketSize
	xMinor := x % bucketSize
	return filepath.Join(
		fmt.Sprintf("%d", zoom),
		fmt.Sprintf("%d", xMajor),
		fmt.Sprintf("%d_%d.cvf", xMinor, y),
	)
}
