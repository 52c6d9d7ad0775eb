// Package tilepool implements C6: a fixed-capacity least-recently-used
// pool of open CVF2 readers, keyed by tile index, generalizing the
// teacher's image-tile LRU cache shape to CVF2 readers instead of decoded
// images.
package tilepool

import (
	"fmt"
	"sync"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/cvf2grid/cvf2tiles/internal/cvf2err"
	"github.com/cvf2grid/cvf2tiles/internal/metrics"
)

const minCapacity = 16

type slot struct {
	reader    *cvf2.Reader
	tileIndex int // -1 if empty
	lastTick  uint64
}

// Pool is a bounded set of open cvf2.Reader instances. Acquire is safe for
// concurrent use; the returned *cvf2.Reader itself is not shared across
// goroutines — a caller must complete its use of a reader before another
// goroutine's Acquire call can evict it.
type Pool struct {
	mu    sync.Mutex
	slots []slot
	index map[int]int // tileIndex -> slot position
	clock uint64

	paths   func(tileIndex int) (string, bool)
	metrics *metrics.Set
}

// New creates a pool with the given capacity (raised to 16 if lower, per
// spec), resolving a tile index's file path via pathOf. metrics may be nil,
// in which case counters are not recorded.
func New(capacity int, pathOf func(tileIndex int) (string, bool), m *metrics.Set) *Pool {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	slots := make([]slot, capacity)
	for i := range slots {
		slots[i].tileIndex = -1
	}
	return &Pool{
		slots:   slots,
		index:   make(map[int]int, capacity),
		paths:   pathOf,
		metrics: m,
	}
}

// Acquire returns the reader for tileIndex, opening it if necessary and
// evicting the least-recently-used occupied slot if the pool is full.
func (p *Pool) Acquire(tileIndex int) (*cvf2.Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clock++
	if pos, ok := p.index[tileIndex]; ok {
		p.slots[pos].lastTick = p.clock
		return p.slots[pos].reader, nil
	}

	pos := p.findFreeOrOldest()
	if p.slots[pos].reader != nil {
		delete(p.index, p.slots[pos].tileIndex)
		p.slots[pos].reader.Close()
		p.slots[pos].reader = nil
		if p.metrics != nil {
			p.metrics.PoolCloses.Inc()
		}
	}

	path, ok := p.paths(tileIndex)
	if !ok {
		return nil, cvf2err.New(cvf2err.KindBadArgs, "tilepool.Acquire", fmt.Errorf("unknown tile index %d", tileIndex))
	}
	r, err := cvf2.OpenReader(path)
	if err != nil {
		if p.metrics != nil {
			p.metrics.PoolOpenFailed.Inc()
		}
		p.slots[pos].tileIndex = -1
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.PoolOpens.Inc()
	}

	p.slots[pos] = slot{reader: r, tileIndex: tileIndex, lastTick: p.clock}
	p.index[tileIndex] = pos
	return r, nil
}

func (p *Pool) findFreeOrOldest() int {
	oldest := 0
	for i := range p.slots {
		if p.slots[i].reader == nil {
			return i
		}
		if p.slots[i].lastTick < p.slots[oldest].lastTick {
			oldest = i
		}
	}
	return oldest
}

// Close closes every open reader in the pool and clears it.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if p.slots[i].reader != nil {
			p.slots[i].reader.Close()
			if p.metrics != nil {
				p.metrics.PoolCloses.Inc()
			}
		}
		p.slots[i] = slot{tileIndex: -1}
	}
	p.index = make(map[int]int, len(p.slots))
}
