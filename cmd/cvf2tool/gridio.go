package main

import (
	"os"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/valuegrid"
)

// createOrStdout opens path for writing, or returns os.Stdout when path is
// empty. The returned file is always safe to Close.
func createOrStdout(path string) (*os.File, error) {
	if path == "" {
		return os.Stdout, nil
	}
	return os.Create(path)
}

// loadCVF2Grid decodes every row of a CVF2 file into an in-memory grid,
// the same per-row materialization pyramid.downsampleOne uses before
// handing a source meta-tile to FillMipmapQuadrant.
func loadCVF2Grid(path string) (*valuegrid.Grid[int64], error) {
	r, err := cvf2.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	g := valuegrid.New[int64](r.Width(), r.Height())
	g.SetInvalidValue(cvf2.Undefined)
	hdr := r.Header()
	g.SetGeoInfo(valuegrid.GeoInfo{SRID: hdr.SRID, BBox: hdr.BBox})

	for y := 0; y < r.Height(); y++ {
		row, err := r.ReadRow(y)
		if err != nil {
			return nil, err
		}
		for x, v := range row {
			g.SetValueAt(x, y, v)
		}
	}
	return g, nil
}
