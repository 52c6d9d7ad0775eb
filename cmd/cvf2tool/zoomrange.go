package main

import (
	"github.com/cvf2grid/cvf2tiles/internal/coord"
	"github.com/cvf2grid/cvf2tiles/internal/tileindex"
)

// metersPerDegreeAtEquator approximates the length in meters of one degree
// of longitude at the equator, used only to convert a source grid's cell size into
// the meters-per-pixel figure coord.MaxZoomForResolution expects.
const metersPerDegreeAtEquator = 111320.0

// autoZoomRangeForTiles derives a min/max meta-tile zoom from a scanned
// tile index's union bbox and cell resolution, the same "native resolution
// in, pyramid down to six levels below it out" heuristic the reference project applies to
// raster GeoTIFF sources, adapted to a CVF2 tile grid's cell spacing.
func autoZoomRangeForTiles(idx *tileindex.Index, metaTileSize int) (minZoom, maxZoom int) {
	bbox := idx.Scan.UnionBBox
	widthCells := idx.Scan.XTileCount * idx.Config.TileWidth
	if widthCells <= 0 {
		return 0, 0
	}
	degPerCell := float64(bbox.MaxX-bbox.MinX) / float64(widthCells)
	centerLat := float64(bbox.MinY+bbox.MaxY) / 2

	var pixelSizeMeters float64
	switch idx.Scan.SRID {
	case 4326:
		pixelSizeMeters = degPerCell * metersPerDegreeAtEquator
	default:
		pixelSizeMeters = degPerCell // already a projected linear unit, e.g. meters for 3857
	}
	if pixelSizeMeters <= 0 {
		return 0, 0
	}

	maxZoom = coord.MaxZoomForResolution(pixelSizeMeters, centerLat)
	minZoom = maxZoom - 6
	if minZoom < 0 {
		minZoom = 0
	}
	return minZoom, maxZoom
}
