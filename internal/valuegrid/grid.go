// Package valuegrid implements C4: a generic in-memory 2-D dense array of a
// scalar type with invalid-value semantics, geo metadata, 2x2 quadrant
// mipmap downsampling, and self-describing serialization.
package valuegrid

import "github.com/cvf2grid/cvf2tiles/internal/cvf2"

// Scalar is the set of element types ValueGrid is monomorphized over.
type Scalar interface {
	~uint8 | ~int32 | ~int64 | ~float32 | ~float64
}

// GeoInfo is the optional SRID + fixed-point bbox metadata attached to a grid.
type GeoInfo struct {
	SRID int32
	BBox cvf2.BBox
}

// Grid is a dense width*height array of T in row-major order.
type Grid[T Scalar] struct {
	Width, Height int
	XIndex, YIndex int // position in an enclosing tile grid

	values []T

	hasInvalid   bool
	invalidValue T

	hasMinMax  bool
	minValue   T
	maxValue   T

	hasGeo bool
	geo    GeoInfo
}

// New allocates a width*height grid with every cell set to the zero value
// of T.
func New[T Scalar](width, height int) *Grid[T] {
	return &Grid[T]{
		Width:  width,
		Height: height,
		values: make([]T, width*height),
	}
}

// SetInvalidValue marks v as the sentinel meaning "no data"; subsequent
// min/max computations skip cells equal to v.
func (g *Grid[T]) SetInvalidValue(v T) {
	g.hasInvalid = true
	g.invalidValue = v
}

// InvalidValue returns the configured invalid-value marker and whether one
// is set.
func (g *Grid[T]) InvalidValue() (T, bool) { return g.invalidValue, g.hasInvalid }

// SetGeoInfo attaches SRID + bbox metadata to the grid.
func (g *Grid[T]) SetGeoInfo(geo GeoInfo) {
	g.hasGeo = true
	g.geo = geo
}

// GeoInfo returns the attached geo metadata and whether any is set.
func (g *Grid[T]) GeoInfo() (GeoInfo, bool) { return g.geo, g.hasGeo }

// MinMax returns the last computed min/max and whether UpdateMinMax has
// been called on a grid with at least one valid cell.
func (g *Grid[T]) MinMax() (min, max T, ok bool) {
	return g.minValue, g.maxValue, g.hasMinMax
}

// ValueAt returns the value at (x, y). Out-of-range coordinates are a
// programmer error and panic, matching Go slice-indexing semantics rather
// than silently returning a zero value.
func (g *Grid[T]) ValueAt(x, y int) T {
	return g.values[y*g.Width+x]
}

// SetValueAt stores v at (x, y) and reports whether the stored value
// changed.
func (g *Grid[T]) SetValueAt(x, y int, v T) bool {
	idx := y*g.Width + x
	changed := g.values[idx] != v
	g.values[idx] = v
	return changed
}

// Invalidate fills every cell with the configured invalid-value marker.
// It is a no-op if no invalid value has been set.
func (g *Grid[T]) Invalidate() {
	if !g.hasInvalid {
		return
	}
	for i := range g.values {
		g.values[i] = g.invalidValue
	}
}

// isInvalid reports whether v equals the configured invalid marker.
func (g *Grid[T]) isInvalid(v T) bool {
	return g.hasInvalid && v == g.invalidValue
}

// UpdateMinMax recomputes the min/max over all cells not equal to the
// invalid marker (if one is configured).
func (g *Grid[T]) UpdateMinMax() {
	var min, max T
	found := false
	for _, v := range g.values {
		if g.isInvalid(v) {
			continue
		}
		if !found || v < min {
			min = v
		}
		if !found || v > max {
			max = v
		}
		found = true
	}
	g.minValue, g.maxValue, g.hasMinMax = min, max, found
}

// Values returns the raw row-major backing slice; callers must not retain
// it across a subsequent SetValueAt/Invalidate if they need a stable view.
func (g *Grid[T]) Values() []T { return g.values }
