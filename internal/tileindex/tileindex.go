// Package tileindex implements C5: enumerating the CVF2 files backing a
// tile manager, deriving the union extent and tile-grid dimensions, and
// assigning each file to a slot in that grid.
package tileindex

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/cvf2err"
	"github.com/cvf2grid/cvf2tiles/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrorFlags records anomalies detected while assigning a file to a tile
// slot. Zero means no anomaly.
type ErrorFlags uint8

const (
	FlagOffsetOutOfRange ErrorFlags = 1 << iota
	FlagSizeOutOfRange
	FlagFractionalOffset
	FlagMultiInit
)

// Config describes the fixed tile geometry a manager scans against.
type Config struct {
	Dir         string
	TileWidth   int
	TileHeight  int
	MaxTiles    int // 0 means unbounded
	Concurrency int // 0 means no limit on Scan's concurrent header reads
	Metrics     *metrics.Set
}

// Tile is one CVF2 file's position and health within the tile grid.
type Tile struct {
	XIndex, YIndex   int
	XOffset, YOffset int
	FilePath         string
	Valid            bool
	ErrorFlags       ErrorFlags
}

// ScanResult accumulates the statistics gathered by Scan, sufficient to
// call Start without re-reading every file's header a third time.
type ScanResult struct {
	Files          []string
	SRID           int32
	UnionBBox      cvf2.BBox
	MinValue       int64
	MaxValue       int64
	UndefCount     int64
	WrongDimension int

	XTileCount, YTileCount int
}

type fileStat struct {
	path       string
	hdr        cvf2.Header
	err        error
	wrongDim   bool
}

// Scan enumerates every ".cvf2" file under cfg.Dir, reads its header (no row
// data), and derives the union bounding box and tile-grid dimensions.
// Per-file errors are counted, never fatal to the pass as a whole.
func Scan(ctx context.Context, cfg Config) (*ScanResult, error) {
	var files []string
	err := filepath.WalkDir(cfg.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cvf2" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, cvf2err.New(cvf2err.KindIO, "tileindex.Scan", err)
	}
	sort.Strings(files)

	stats := make([]fileStat, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Concurrency > 0 {
		g.SetLimit(cfg.Concurrency)
	}
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			stats[i] = readOneHeader(path, cfg)
			return nil
		})
	}
	// Header errors accumulate into per-file results, never abort the pool;
	// only a context cancellation reaches Wait as a real error.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &ScanResult{Files: files}
	var sridSet bool
	var haveBBox bool
	var haveMinMax bool
	var minV, maxV int64
	var undef int64
	for _, st := range stats {
		if cfg.Metrics != nil {
			cfg.Metrics.ScanFilesSeen.Inc()
		}
		if st.err != nil {
			if cfg.Metrics != nil {
				cfg.Metrics.ScanFilesErrored.Inc()
			}
			continue
		}
		if st.wrongDim {
			res.WrongDimension++
			if cfg.Metrics != nil {
				cfg.Metrics.ScanWrongDimension.Inc()
			}
			continue
		}
		if !sridSet {
			res.SRID = st.hdr.SRID
			sridSet = true
		} else if st.hdr.SRID != res.SRID {
			return nil, cvf2err.New(cvf2err.KindConfig, "tileindex.Scan",
				fmt.Errorf("file %s has SRID %d, expected %d", st.path, st.hdr.SRID, res.SRID))
		}
		if !haveBBox {
			res.UnionBBox = st.hdr.BBox
			haveBBox = true
		} else {
			if st.hdr.BBox.MinX < res.UnionBBox.MinX {
				res.UnionBBox.MinX = st.hdr.BBox.MinX
			}
			if st.hdr.BBox.MinY < res.UnionBBox.MinY {
				res.UnionBBox.MinY = st.hdr.BBox.MinY
			}
			if st.hdr.BBox.MaxX > res.UnionBBox.MaxX {
				res.UnionBBox.MaxX = st.hdr.BBox.MaxX
			}
			if st.hdr.BBox.MaxY > res.UnionBBox.MaxY {
				res.UnionBBox.MaxY = st.hdr.BBox.MaxY
			}
		}
		if !haveMinMax {
			minV, maxV = st.hdr.MinValue, st.hdr.MaxValue
			haveMinMax = true
		} else {
			if st.hdr.MinValue < minV {
				minV = st.hdr.MinValue
			}
			if st.hdr.MaxValue > maxV {
				maxV = st.hdr.MaxValue
			}
		}
		undef += int64(st.hdr.UndefCount)
	}
	res.MinValue, res.MaxValue, res.UndefCount = minV, maxV, undef

	if haveBBox && cfg.TileWidth > 0 && cfg.TileHeight > 0 {
		unionWidth := float64(res.UnionBBox.MaxX-res.UnionBBox.MinX) / float64(cfg.TileWidth)
		unionHeight := float64(res.UnionBBox.MaxY-res.UnionBBox.MinY) / float64(cfg.TileHeight)
		res.XTileCount = int(math.Floor(unionWidth)) + 1
		res.YTileCount = int(math.Floor(unionHeight)) + 1
	}
	if cfg.MaxTiles > 0 && res.XTileCount*res.YTileCount > cfg.MaxTiles {
		return nil, cvf2err.New(cvf2err.KindCapacityExceeded, "tileindex.Scan",
			fmt.Errorf("tile grid %dx%d exceeds limit %d", res.XTileCount, res.YTileCount, cfg.MaxTiles))
	}
	return res, nil
}

func readOneHeader(path string, cfg Config) fileStat {
	r, err := cvf2.OpenReader(path)
	if err != nil {
		return fileStat{path: path, err: err}
	}
	defer r.Close()
	hdr := r.Header()
	wrongDim := cfg.TileWidth > 0 && (int(hdr.Width) != cfg.TileWidth || int(hdr.Height) != cfg.TileHeight)
	return fileStat{path: path, hdr: hdr, wrongDim: wrongDim}
}

// Index is the populated, read-only tile grid produced by Start.
type Index struct {
	Config    Config
	Scan      *ScanResult
	Tiles     []Tile // row-major, length XTileCount*YTileCount
	MultiInit int
}

// TileAt returns the tile at the given grid index and whether one exists.
func (idx *Index) TileAt(x, y int) (Tile, bool) {
	if x < 0 || x >= idx.Scan.XTileCount || y < 0 || y >= idx.Scan.YTileCount {
		return Tile{}, false
	}
	return idx.Tiles[y*idx.Scan.XTileCount+x], true
}

// Start allocates the tile grid from a prior Scan and assigns each file to
// the grid cell its bbox center falls in, per the original implementation's
// truncating-division tie-break (§9 resolution 5: floor on a non-negative
// offset from the union origin).
func Start(ctx context.Context, cfg Config, scan *ScanResult) (*Index, error) {
	if scan.XTileCount <= 0 || scan.YTileCount <= 0 {
		return nil, cvf2err.New(cvf2err.KindConfig, "tileindex.Start", fmt.Errorf("scan produced an empty tile grid"))
	}
	idx := &Index{
		Config: cfg,
		Scan:   scan,
		Tiles:  make([]Tile, scan.XTileCount*scan.YTileCount),
	}
	claimed := make([]bool, len(idx.Tiles))

	for _, path := range scan.Files {
		r, err := cvf2.OpenReader(path)
		if err != nil {
			continue
		}
		hdr := r.Header()
		r.Close()
		if cfg.TileWidth > 0 && (int(hdr.Width) != cfg.TileWidth || int(hdr.Height) != cfg.TileHeight) {
			continue
		}

		centerX := (hdr.BBox.MinX + hdr.BBox.MaxX) / 2
		centerY := (hdr.BBox.MinY + hdr.BBox.MaxY) / 2
		xIndex := int(math.Floor(float64(centerX-scan.UnionBBox.MinX) / float64(cfg.TileWidth)))
		yIndex := int(math.Floor(float64(centerY-scan.UnionBBox.MinY) / float64(cfg.TileHeight)))
		if xIndex < 0 || xIndex >= scan.XTileCount || yIndex < 0 || yIndex >= scan.YTileCount {
			continue
		}

		xOffsetF := float64(hdr.BBox.MinX) - float64(xIndex*cfg.TileWidth+int(scan.UnionBBox.MinX))
		yOffsetF := float64(hdr.BBox.MinY) - float64(yIndex*cfg.TileHeight+int(scan.UnionBBox.MinY))
		xOffset := int(math.Floor(xOffsetF))
		yOffset := int(math.Floor(yOffsetF))

		var flags ErrorFlags
		if xOffsetF != math.Trunc(xOffsetF) || yOffsetF != math.Trunc(yOffsetF) {
			flags |= FlagFractionalOffset
		}
		if xOffset < 0 || yOffset < 0 {
			flags |= FlagOffsetOutOfRange
		}
		if int(hdr.Width) > cfg.TileWidth || int(hdr.Height) > cfg.TileHeight {
			flags |= FlagSizeOutOfRange
		}
		if xOffset+int(hdr.Width) > cfg.TileWidth || yOffset+int(hdr.Height) > cfg.TileHeight {
			flags |= FlagSizeOutOfRange
		}

		slot := yIndex*scan.XTileCount + xIndex
		if claimed[slot] {
			idx.MultiInit++
			idx.Tiles[slot].ErrorFlags |= FlagMultiInit
			if cfg.Metrics != nil {
				cfg.Metrics.ScanMultiInit.Inc()
			}
			continue // first winner keeps the slot
		}
		claimed[slot] = true
		idx.Tiles[slot] = Tile{
			XIndex:     xIndex,
			YIndex:     yIndex,
			XOffset:    xOffset,
			YOffset:    yOffset,
			FilePath:   path,
			Valid:      flags == 0,
			ErrorFlags: flags,
		}
	}
	return idx, nil
}
