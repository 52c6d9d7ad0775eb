// Package query implements C7: point lookups and projected-region
// rendering against a tile index and LRU pool, including supersampled
// anti-aliasing.
package query

import (
	"math"

	"github.com/cvf2grid/cvf2tiles/internal/coord"
	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/tileindex"
	"github.com/cvf2grid/cvf2tiles/internal/tilepool"
	"github.com/cvf2grid/cvf2tiles/internal/valuegrid"
)

// Engine answers point and region queries against a started tile index,
// acquiring readers from pool on demand.
type Engine struct {
	idx   *tileindex.Index
	pool  *tilepool.Pool
	srid  int32
}

// New builds a query engine over idx, acquiring readers through pool.
func New(idx *tileindex.Index, pool *tilepool.Pool) *Engine {
	return &Engine{idx: idx, pool: pool, srid: idx.Scan.SRID}
}

// SRID returns the tile index's spatial reference identifier.
func (e *Engine) SRID() int32 { return e.srid }

// ValueAt returns the value at (x, y) in tile-SRID coordinates, or
// Undefined if the position falls outside every tile or maps to an
// invalid tile.
func (e *Engine) ValueAt(x, y float64) (int64, error) {
	tileW, tileH := e.idx.Config.TileWidth, e.idx.Config.TileHeight
	xi := int(math.Floor((x - float64(e.idx.Scan.UnionBBox.MinX)) / float64(tileW)))
	yi := int(math.Floor((y - float64(e.idx.Scan.UnionBBox.MinY)) / float64(tileH)))

	tile, ok := e.idx.TileAt(xi, yi)
	if !ok || !tile.Valid || tile.FilePath == "" {
		return cvf2.Undefined, nil
	}

	tileIndex := yi*e.idx.Scan.XTileCount + xi
	r, err := e.pool.Acquire(tileIndex)
	if err != nil {
		return cvf2.Undefined, nil
	}

	tileOriginX := float64(xi*tileW + int(e.idx.Scan.UnionBBox.MinX) + tile.XOffset)
	tileOriginY := float64(yi*tileH + int(e.idx.Scan.UnionBBox.MinY) + tile.YOffset)
	cellX := int(math.Floor(x - tileOriginX))
	cellY := int(math.Floor(y - tileOriginY))

	v, err := r.ValueAt(cellX, cellY, false)
	if err != nil {
		return cvf2.Undefined, nil
	}
	return v, nil
}

// ValueAtWGS84 projects (lon, lat) to tile SRID and delegates to ValueAt.
func (e *Engine) ValueAtWGS84(lon, lat float64) (int64, error) {
	x, y, err := coord.Project(4326, int(e.srid), lon, lat)
	if err != nil {
		return 0, err
	}
	return e.ValueAt(x, y)
}

// RenderToValueGrid renders bboxWGS84, projected to dstSRID, into a
// pre-allocated out grid, evaluating aa x aa sub-samples per destination
// cell when aa > 1 and averaging only the defined ones. aa is clamped to
// [1, 16]. The grid is updated with min/max after rendering.
func (e *Engine) RenderToValueGrid(dstSRID int32, bboxWGS84 cvf2.BBox, aa int, out *valuegrid.Grid[int64]) error {
	if aa < 1 {
		aa = 1
	}
	if aa > 16 {
		aa = 16
	}

	minLon, minLat := float64(bboxWGS84.MinX), float64(bboxWGS84.MinY)
	maxLon, maxLat := float64(bboxWGS84.MaxX), float64(bboxWGS84.MaxY)

	minX, minY, err := coord.Project(4326, int(dstSRID), minLon, minLat)
	if err != nil {
		return err
	}
	maxX, maxY, err := coord.Project(4326, int(dstSRID), maxLon, maxLat)
	if err != nil {
		return err
	}

	w, h := out.Width, out.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dstX := remap(float64(x), 0, float64(w), minX, maxX)
			dstY := remap(float64(h-1-y), 0, float64(h), minY, maxY)

			var value int64
			if aa == 1 {
				tmX, tmY, err := coord.Project(int(dstSRID), int(e.srid), dstX, dstY)
				if err != nil {
					return err
				}
				value, err = e.ValueAt(tmX, tmY)
				if err != nil {
					return err
				}
			} else {
				value = e.renderAACell(dstSRID, x, y, w, h, minX, minY, maxX, maxY, aa)
			}
			out.SetValueAt(x, y, value)
		}
	}
	out.UpdateMinMax()
	return nil
}

func (e *Engine) renderAACell(dstSRID int32, x, y, w, h int, minX, minY, maxX, maxY float64, aa int) int64 {
	var sum float64
	var count int
	for ky := 0; ky < aa; ky++ {
		for kx := 0; kx < aa; kx++ {
			subX := float64(x) + float64(kx)/float64(aa-1)
			subY := float64(h-1-y) + float64(ky)/float64(aa-1)
			dstX := remap(subX, 0, float64(w), minX, maxX)
			dstY := remap(subY, 0, float64(h), minY, maxY)

			tmX, tmY, err := coord.Project(int(dstSRID), int(e.srid), dstX, dstY)
			if err != nil {
				continue
			}
			v, err := e.ValueAt(tmX, tmY)
			if err != nil || v == cvf2.Undefined {
				continue
			}
			sum += float64(v)
			count++
		}
	}
	if count == 0 {
		return cvf2.Undefined
	}
	return int64(math.Round(sum / float64(count)))
}

func remap(v, srcMin, srcMax, dstMin, dstMax float64) float64 {
	if srcMax == srcMin {
		return dstMin
	}
	t := (v - srcMin) / (srcMax - srcMin)
	return dstMin + t*(dstMax-dstMin)
}
