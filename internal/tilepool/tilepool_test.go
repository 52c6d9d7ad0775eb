package tilepool

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
	"github.com/stretchr/testify/require"
)

func writeTestTile(t *testing.T, dir, name string, v int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	w, err := cvf2.Open(path, cvf2.WriterOptions{Width: 2, Height: 2, SRID: 4326, MinDigits: 2, MaxDigits: 4})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, w.PushValue(v))
	}
	require.NoError(t, w.Finish())
	return path
}

func TestAcquireReturnsSameReaderForSameTile(t *testing.T) {
	dir := t.TempDir()
	paths := map[int]string{0: writeTestTile(t, dir, "a.cvf2", 1)}
	pool := New(minCapacity, func(i int) (string, bool) { p, ok := paths[i]; return p, ok }, nil)
	defer pool.Close()

	r1, err := pool.Acquire(0)
	require.NoError(t, err)
	r2, err := pool.Acquire(0)
	require.NoError(t, err)
	require.Same(t, r1, r2)
}

func TestAcquireUnknownTileFails(t *testing.T) {
	pool := New(minCapacity, func(i int) (string, bool) { return "", false }, nil)
	defer pool.Close()
	_, err := pool.Acquire(42)
	require.Error(t, err)
}

func TestLRUEvictionSequence(t *testing.T) {
	dir := t.TempDir()
	// minCapacity tiles fill the pool exactly; a 17th distinct tile forces
	// the first real eviction, so the sequence needs at least minCapacity+1
	// distinct tiles to exercise eviction at all (New floors capacity at
	// minCapacity).
	const n = minCapacity + 1
	paths := make(map[int]string, n)
	for i := 0; i < n; i++ {
		paths[i] = writeTestTile(t, dir, fmt.Sprintf("t%d.cvf2", i), int64(i))
	}
	pool := New(minCapacity, func(i int) (string, bool) { p, ok := paths[i]; return p, ok }, nil)
	defer pool.Close()

	// Fill every slot in order 0..minCapacity-1 (oldest tick on tile 0,
	// newest on tile minCapacity-1).
	for i := 0; i < minCapacity; i++ {
		_, err := pool.Acquire(i)
		require.NoError(t, err)
	}
	// Re-acquire tile 0, bumping its tick above every other resident tile;
	// tile 1 is now the oldest.
	_, err := pool.Acquire(0)
	require.NoError(t, err)
	// Acquire the (minCapacity+1)th distinct tile: pool is full, evicts
	// tile 1 (oldest).
	_, err = pool.Acquire(minCapacity)
	require.NoError(t, err)
	// Re-acquire tile 1: not resident, evicts tile 2 (now oldest).
	_, err = pool.Acquire(1)
	require.NoError(t, err)

	require.Contains(t, pool.index, minCapacity)
	require.Contains(t, pool.index, 1)
	require.NotContains(t, pool.index, 2)
}

func TestAcquireIsSafeForConcurrentUse(t *testing.T) {
	dir := t.TempDir()
	paths := map[int]string{
		0: writeTestTile(t, dir, "a.cvf2", 1),
		1: writeTestTile(t, dir, "b.cvf2", 2),
	}
	pool := New(minCapacity, func(i int) (string, bool) { p, ok := paths[i]; return p, ok }, nil)
	defer pool.Close()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			_, err := pool.Acquire(n % 2)
			require.NoError(t, err)
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
