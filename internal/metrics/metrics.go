// Package metrics defines the Prometheus collectors shared by the tile
// pool, scan pass, and pyramid generator, satisfying the requirement that
// statistics counters be updated atomically (spec §5, §10.4) without
// hand-rolled atomic.Int64 fields.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set bundles every counter/gauge this repository exposes. Callers
// construct one Set per tile manager and register it against their own
// prometheus.Registerer, so embedding this package never forces a shared
// global namespace on the caller.
type Set struct {
	PoolOpens      prometheus.Counter
	PoolCloses     prometheus.Counter
	PoolOpenFailed prometheus.Counter

	ScanFilesSeen      prometheus.Counter
	ScanFilesErrored   prometheus.Counter
	ScanWrongDimension prometheus.Counter
	ScanMultiInit      prometheus.Counter

	PyramidMetaTilesOK     prometheus.Counter
	PyramidMetaTilesFailed prometheus.Counter
	PyramidRenderSeconds   prometheus.Histogram
}

// NewSet constructs a Set with the given metric name prefix and registers
// every collector against reg. Pass prometheus.NewRegistry() for an
// isolated registry, or a shared one if the caller wants these metrics
// alongside its own.
func NewSet(reg prometheus.Registerer, namespace string) *Set {
	s := &Set{
		PoolOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "opens_total",
			Help: "Total CVF2 readers opened by the LRU pool.",
		}),
		PoolCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "closes_total",
			Help: "Total CVF2 readers closed (evicted) by the LRU pool.",
		}),
		PoolOpenFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "open_failed_total",
			Help: "Total failed attempts to open a tile's CVF2 reader.",
		}),
		ScanFilesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "files_seen_total",
			Help: "Total candidate files examined during scan.",
		}),
		ScanFilesErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "files_errored_total",
			Help: "Total files that failed to open/parse during scan (non-fatal).",
		}),
		ScanWrongDimension: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "wrong_dimension_total",
			Help: "Total files whose dimensions differ from the configured tile size.",
		}),
		ScanMultiInit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "multi_init_total",
			Help: "Total tile-grid slots claimed by more than one file.",
		}),
		PyramidMetaTilesOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pyramid", Name: "meta_tiles_ok_total",
			Help: "Total meta-tiles rendered successfully.",
		}),
		PyramidMetaTilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pyramid", Name: "meta_tiles_failed_total",
			Help: "Total meta-tiles that failed to render (non-fatal to the batch).",
		}),
		PyramidRenderSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pyramid", Name: "render_seconds",
			Help:    "Wall-clock seconds spent rendering one meta-tile.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		s.PoolOpens, s.PoolCloses, s.PoolOpenFailed,
		s.ScanFilesSeen, s.ScanFilesErrored, s.ScanWrongDimension, s.ScanMultiInit,
		s.PyramidMetaTilesOK, s.PyramidMetaTilesFailed, s.PyramidRenderSeconds,
	)
	return s
}
