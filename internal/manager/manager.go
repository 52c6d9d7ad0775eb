// Package manager implements the tile manager facade: the
// Created/Scanned/Running state machine tying together the tile index
// (C5), the LRU open-file pool (C6), and the query engine (C7).
package manager

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2err"
	"github.com/cvf2grid/cvf2tiles/internal/metrics"
	"github.com/cvf2grid/cvf2tiles/internal/query"
	"github.com/cvf2grid/cvf2tiles/internal/tileindex"
	"github.com/cvf2grid/cvf2tiles/internal/tilepool"
)

type state int

const (
	stateCreated state = iota
	stateScanned
	stateRunning
)

// Config bundles the parameters needed to scan and start a tile manager.
type Config struct {
	Dir           string
	TileWidth     int
	TileHeight    int
	MaxTiles      int
	PoolCapacity  int
	Concurrency   int
}

// Manager owns the scan/start lifecycle and exposes a query.Engine once
// running.
type Manager struct {
	cfg     Config
	logger  *log.Logger
	metrics *metrics.Set

	state state
	scan  *tileindex.ScanResult
	idx   *tileindex.Index
	pool  *tilepool.Pool
	eng   *query.Engine
}

// New constructs a Manager in the Created state. logger and m may be nil.
func New(cfg Config, logger *log.Logger, m *metrics.Set) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Manager{cfg: cfg, logger: logger, metrics: m, state: stateCreated}
}

// Scan runs the two-pass (Scan→Start is actually tileindex's own two
// phases; this method only runs tileindex.Scan) file enumeration,
// transitioning Created→Scanned. Calling Scan again while already Scanned
// is idempotent and re-runs the scan.
func (m *Manager) Scan(ctx context.Context) error {
	if m.state == stateRunning {
		return cvf2err.New(cvf2err.KindConfig, "Manager.Scan", fmt.Errorf("manager is already running"))
	}
	cfg := tileindex.Config{
		Dir: m.cfg.Dir, TileWidth: m.cfg.TileWidth, TileHeight: m.cfg.TileHeight,
		MaxTiles: m.cfg.MaxTiles, Concurrency: m.cfg.Concurrency, Metrics: m.metrics,
	}
	res, err := tileindex.Scan(ctx, cfg)
	if err != nil {
		return err
	}
	m.scan = res
	m.state = stateScanned
	m.logger.Printf("scan: %d files, %dx%d tile grid, %d wrong-dimension",
		len(res.Files), res.XTileCount, res.YTileCount, res.WrongDimension)
	return nil
}

// Start allocates the tile grid and LRU pool from the last Scan result,
// transitioning Scanned→Running.
func (m *Manager) Start(ctx context.Context) error {
	if m.state == stateCreated {
		return cvf2err.New(cvf2err.KindConfig, "Manager.Start", fmt.Errorf("manager has not been scanned"))
	}
	cfg := tileindex.Config{
		Dir: m.cfg.Dir, TileWidth: m.cfg.TileWidth, TileHeight: m.cfg.TileHeight,
		MaxTiles: m.cfg.MaxTiles, Concurrency: m.cfg.Concurrency, Metrics: m.metrics,
	}
	idx, err := tileindex.Start(ctx, cfg, m.scan)
	if err != nil {
		return err
	}
	m.idx = idx

	poolCap := m.cfg.PoolCapacity
	m.pool = tilepool.New(poolCap, func(tileIndex int) (string, bool) {
		y, x := tileIndex/idx.Scan.XTileCount, tileIndex%idx.Scan.XTileCount
		tile, ok := idx.TileAt(x, y)
		if !ok || tile.FilePath == "" || !tile.Valid {
			return "", false
		}
		return tile.FilePath, true
	}, m.metrics)

	m.eng = query.New(idx, m.pool)
	m.state = stateRunning
	m.LogSummary()
	return nil
}

// Engine returns the query engine, only valid once Running.
func (m *Manager) Engine() (*query.Engine, error) {
	if m.state != stateRunning {
		return nil, cvf2err.New(cvf2err.KindConfig, "Manager.Engine", fmt.Errorf("manager is not running"))
	}
	return m.eng, nil
}

// Index returns the populated tile index, only valid once Running.
func (m *Manager) Index() (*tileindex.Index, error) {
	if m.state != stateRunning {
		return nil, cvf2err.New(cvf2err.KindConfig, "Manager.Index", fmt.Errorf("manager is not running"))
	}
	return m.idx, nil
}

// Close releases the LRU pool's open readers.
func (m *Manager) Close() {
	if m.pool != nil {
		m.pool.Close()
	}
}

// LogSummary emits a one-line structured-log summary of the tile manager
// after Start, grounded on CVF2TileManager::logCVF2File.
func (m *Manager) LogSummary() {
	if m.idx == nil {
		return
	}
	m.logger.Printf("manager: tiles=%d valid=%d multi_init=%d wrong_dimension=%d bbox=[%d,%d,%d,%d]",
		len(m.idx.Tiles), countValid(m.idx.Tiles), m.idx.MultiInit, m.scan.WrongDimension,
		m.scan.UnionBBox.MinX, m.scan.UnionBBox.MinY, m.scan.UnionBBox.MaxX, m.scan.UnionBBox.MaxY)
}

func countValid(tiles []tileindex.Tile) int {
	n := 0
	for _, t := range tiles {
		if t.Valid {
			n++
		}
	}
	return n
}
