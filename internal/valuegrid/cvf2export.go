package valuegrid

import "github.com/cvf2grid/cvf2tiles/internal/cvf2"

// WriteCVF2 feeds every cell of an int64 grid into a new CVF2 file at
// path, translating the grid's invalid-value marker (if any) to the CVF2
// Undefined sentinel at the boundary. This path only exists for int64,
// matching the container format's sole supported element type.
func WriteCVF2(path string, g *Grid[int64], opts cvf2.WriterOptions) error {
	opts.Width, opts.Height = g.Width, g.Height
	if geo, ok := g.GeoInfo(); ok && opts.SRID == 0 {
		opts.SRID = geo.SRID
		opts.BBox = geo.BBox
	}

	w, err := cvf2.Open(path, opts)
	if err != nil {
		return err
	}

	invalid, hasInvalid := g.InvalidValue()
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.ValueAt(x, y)
			if hasInvalid && v == invalid {
				v = cvf2.Undefined
			}
			if err := w.PushValue(v); err != nil {
				w.Abort()
				return err
			}
		}
	}
	return w.Finish()
}
