// Package pyramid implements C8: rendering a meta-tile index range into
// CVF2 files at a given zoom, and downsampling four higher-zoom meta-tiles
// into one lower-zoom meta-tile, both driven through a bounded worker
// pool.
package pyramid

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cvf2grid/cvf2tiles/internal/coord"
	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/cvf2err"
	"github.com/cvf2grid/cvf2tiles/internal/metrics"
	"github.com/cvf2grid/cvf2tiles/internal/query"
	"github.com/cvf2grid/cvf2tiles/internal/valuegrid"
	"golang.org/x/sync/errgroup"
)

// Options configures a render or downsample batch.
type Options struct {
	DstDir       string
	Zoom         int
	MetaTileSize int
	AA           int
	Concurrency  int
	FailFast     bool // opt-in; default (false) is best-effort across the batch

	// OnProgress, if set, is called once per meta-tile after it completes
	// (success or failure), for a caller-driven progress indicator. Called
	// concurrently from worker goroutines.
	OnProgress func()
}

// Generator drives C8's forward render and downsample passes.
type Generator struct {
	logger  *log.Logger
	metrics *metrics.Set
}

// New constructs a Generator. logger and m may be nil.
func New(logger *log.Logger, m *metrics.Set) *Generator {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Generator{logger: logger, metrics: m}
}

// MetaTileIndex is one destination meta-tile's position in the XYZ scheme.
type MetaTileIndex struct{ Zoom, X, Y int }

// BatchResult reports the outcome of a render or downsample batch.
type BatchResult struct {
	OK, Failed int
	Errors     []error
}

// RenderMetaTiles renders every meta-tile in tiles through eng into CVF2
// files under opts.DstDir, per meta-tile, via a bounded worker pool.
// Per-meta-tile failures are counted, logged, and (unless opts.FailFast)
// do not stop sibling tasks already dispatched or abort the remaining
// queue.
func (g *Generator) RenderMetaTiles(ctx context.Context, eng *query.Engine, opts Options, tiles []MetaTileIndex) (*BatchResult, error) {
	res := &BatchResult{}
	grp, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		grp.SetLimit(opts.Concurrency)
	}
	resultsCh := make(chan error, len(tiles))

	for _, mt := range tiles {
		mt := mt
		grp.Go(func() error {
			select {
			case <-gctx.Done():
				resultsCh <- gctx.Err()
				return nil
			default:
			}
			err := g.renderOne(eng, opts, mt)
			if opts.OnProgress != nil {
				opts.OnProgress()
			}
			resultsCh <- err
			if err != nil && opts.FailFast {
				return err
			}
			return nil
		})
	}
	groupErr := grp.Wait()
	close(resultsCh)

	for err := range resultsCh {
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			if g.metrics != nil {
				g.metrics.PyramidMetaTilesFailed.Inc()
			}
		} else {
			res.OK++
			if g.metrics != nil {
				g.metrics.PyramidMetaTilesOK.Inc()
			}
		}
	}
	if opts.FailFast && groupErr != nil {
		return res, groupErr
	}
	return res, nil
}

func (g *Generator) renderOne(eng *query.Engine, opts Options, mt MetaTileIndex) error {
	start := time.Now()
	if g.metrics != nil {
		defer func() { g.metrics.PyramidRenderSeconds.Observe(time.Since(start).Seconds()) }()
	}
	nw, se := metaTileWGS84Bounds(mt.Zoom, mt.X, mt.Y, opts.MetaTileSize)
	wgsBBox := degreeBBox(nw, se)

	grid := valuegrid.New[int64](opts.MetaTileSize, opts.MetaTileSize)
	grid.SetInvalidValue(cvf2.Undefined)
	if err := eng.RenderToValueGrid(3857, wgsBBox, opts.AA, grid); err != nil {
		g.logger.Printf("pyramid: meta-tile %d/%d/%d failed: %v", mt.Zoom, mt.X, mt.Y, err)
		return err
	}
	grid.SetGeoInfo(valuegrid.GeoInfo{SRID: 4326, BBox: wgsBBox})

	relPath := coord.MetaTilePath(mt.Zoom, mt.X, mt.Y)
	fullPath := filepath.Join(opts.DstDir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		g.logger.Printf("pyramid: meta-tile %d/%d/%d mkdir failed: %v", mt.Zoom, mt.X, mt.Y, err)
		return cvf2err.New(cvf2err.KindIO, "pyramid.RenderMetaTiles", err)
	}
	if err := valuegrid.WriteCVF2(fullPath, grid, cvf2.WriterOptions{MinDigits: 2, MaxDigits: 4}); err != nil {
		g.logger.Printf("pyramid: meta-tile %d/%d/%d write failed: %v", mt.Zoom, mt.X, mt.Y, err)
		return err
	}
	return nil
}

// DownsampleMetaTiles produces every destination meta-tile at srcZoom-1
// covering tiles by 2x2-averaging the four higher-zoom meta-tiles whose
// centers fall in each destination quadrant, one task per destination
// meta-tile via the same worker pool shape as RenderMetaTiles.
func (g *Generator) DownsampleMetaTiles(ctx context.Context, opts Options, srcZoom int, tiles []MetaTileIndex) (*BatchResult, error) {
	if srcZoom < 1 {
		return nil, cvf2err.New(cvf2err.KindBadArgs, "pyramid.DownsampleMetaTiles", fmt.Errorf("srcZoom must be >= 1, got %d", srcZoom))
	}
	res := &BatchResult{}
	grp, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		grp.SetLimit(opts.Concurrency)
	}
	resultsCh := make(chan error, len(tiles))

	for _, dst := range tiles {
		dst := dst
		grp.Go(func() error {
			select {
			case <-gctx.Done():
				resultsCh <- gctx.Err()
				return nil
			default:
			}
			err := g.downsampleOne(opts, srcZoom, dst)
			if opts.OnProgress != nil {
				opts.OnProgress()
			}
			resultsCh <- err
			if err != nil && opts.FailFast {
				return err
			}
			return nil
		})
	}
	groupErr := grp.Wait()
	close(resultsCh)

	for err := range resultsCh {
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			if g.metrics != nil {
				g.metrics.PyramidMetaTilesFailed.Inc()
			}
		} else {
			res.OK++
			if g.metrics != nil {
				g.metrics.PyramidMetaTilesOK.Inc()
			}
		}
	}
	if opts.FailFast && groupErr != nil {
		return res, groupErr
	}
	return res, nil
}

func (g *Generator) downsampleOne(opts Options, srcZoom int, dst MetaTileIndex) error {
	start := time.Now()
	if g.metrics != nil {
		defer func() { g.metrics.PyramidRenderSeconds.Observe(time.Since(start).Seconds()) }()
	}
	dstGrid := valuegrid.New[int64](opts.MetaTileSize, opts.MetaTileSize)
	dstGrid.SetInvalidValue(cvf2.Undefined)
	dstGrid.Invalidate()

	// quadrant 0=NW,1=NE,2=SW,3=SE source meta-tile, found via each
	// quadrant's center tile mapped back up to srcZoom.
	srcOffsets := [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for q, off := range srcOffsets {
		srcX := dst.X*2 + off[0]
		srcY := dst.Y*2 + off[1]
		srcPath := filepath.Join(opts.DstDir, coord.MetaTilePath(srcZoom, srcX, srcY))
		if _, err := os.Stat(srcPath); err != nil {
			continue
		}
		srcReader, err := cvf2.OpenReader(srcPath)
		if err != nil {
			g.logger.Printf("pyramid: downsample source %s failed to open: %v", srcPath, err)
			continue
		}
		srcGrid := valuegrid.New[int64](int(srcReader.Width()), int(srcReader.Height()))
		srcGrid.SetInvalidValue(cvf2.Undefined)
		for y := 0; y < srcReader.Height(); y++ {
			row, err := srcReader.ReadRow(y)
			if err != nil {
				srcReader.Close()
				return err
			}
			for x, v := range row {
				srcGrid.SetValueAt(x, y, v)
			}
		}
		srcReader.Close()
		valuegrid.FillMipmapQuadrant(dstGrid, srcGrid, q)
	}

	dstGrid.UpdateMinMax()
	nw, se := metaTileWGS84Bounds(dst.Zoom, dst.X, dst.Y, opts.MetaTileSize)
	dstGrid.SetGeoInfo(valuegrid.GeoInfo{SRID: 4326, BBox: degreeBBox(nw, se)})

	dstPath := filepath.Join(opts.DstDir, coord.MetaTilePath(dst.Zoom, dst.X, dst.Y))
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return cvf2err.New(cvf2err.KindIO, "pyramid.DownsampleMetaTiles", err)
	}
	return valuegrid.WriteCVF2(dstPath, dstGrid, cvf2.WriterOptions{MinDigits: 2, MaxDigits: 4})
}

// degreeBBox packs WGS84 degree corners into a cvf2.BBox. Fix values here
// are plain degrees, matching query.Engine.RenderToValueGrid's convention
// of treating bbox coordinates as direct float64 values with no implicit
// scale (the scale-factor convention in §3.1 is a property of stored grid
// samples, not of the coordinate fields themselves).
func degreeBBox(nw, se [2]float64) cvf2.BBox {
	return cvf2.BBox{
		MinX: cvf2.Fix(nw[0]),
		MinY: cvf2.Fix(se[1]),
		MaxX: cvf2.Fix(se[0]),
		MaxY: cvf2.Fix(nw[1]),
	}
}

// metaTileWGS84Bounds returns the northwest and southeast WGS84 corners of
// the meta-tile (zoom, x, y), an N-tile-wide block where N = metaTileSize /
// coord.DefaultTileSize.
func metaTileWGS84Bounds(zoom, x, y, metaTileSize int) (nw, se [2]float64) {
	tilesPerMeta := metaTileSize / coord.DefaultTileSize
	if tilesPerMeta < 1 {
		tilesPerMeta = 1
	}
	topLeftMinLon, _, _, topLeftMaxLat := coord.TileBounds(zoom, x*tilesPerMeta, y*tilesPerMeta)
	_, botRightMinLat, botRightMaxLon, _ := coord.TileBounds(zoom, (x+1)*tilesPerMeta-1, (y+1)*tilesPerMeta-1)
	return [2]float64{topLeftMinLon, topLeftMaxLat}, [2]float64{botRightMaxLon, botRightMinLat}
}
