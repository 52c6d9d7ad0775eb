package valuegrid

import "math"

// FillMipmapQuadrant fills quadrant q (0..3) of dst from src by averaging
// each 2x2 block of src cells, skipping cells equal to src's invalid
// marker; a destination cell is invalid only if all four source cells are
// invalid. src and dst must have equal, even dimensions matching C4's
// contract: dst is the full-size destination grid, and this call only
// touches the quadrant's quarter of it.
//
// Quadrant layout: q_x = q & 1, q_y = (q >> 1) & 1; quadrant q occupies
// columns [q_x*w/2, (q_x+1)*w/2) and rows [q_y*h/2, (q_y+1)*h/2) of dst.
func FillMipmapQuadrant[T Scalar](dst, src *Grid[T], quadrant int) {
	qx := quadrant & 1
	qy := (quadrant >> 1) & 1

	halfW := dst.Width / 2
	halfH := dst.Height / 2

	for j := 0; j < halfH; j++ {
		for i := 0; i < halfW; i++ {
			sx, sy := 2*i, 2*j
			v00 := src.ValueAt(sx, sy)
			v10 := src.ValueAt(sx+1, sy)
			v01 := src.ValueAt(sx, sy+1)
			v11 := src.ValueAt(sx+1, sy+1)

			var sum float64
			count := 0
			for _, v := range [4]T{v00, v10, v01, v11} {
				if src.isInvalid(v) {
					continue
				}
				sum += float64(v)
				count++
			}

			dx := qx*halfW + i
			dy := qy*halfH + j
			if count == 0 {
				if dst.hasInvalid {
					dst.SetValueAt(dx, dy, dst.invalidValue)
				}
				continue
			}
			dst.SetValueAt(dx, dy, roundTo[T](sum/float64(count)))
		}
	}
}

// roundTo converts a float64 mean to T, rounding half away from zero for
// integer element types and truncating only via a direct cast for
// floating-point element types (i.e. no rounding at all, since the value
// is already the right representation).
func roundTo[T Scalar](x float64) T {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return T(x)
	default:
		if x >= 0 {
			return T(math.Floor(x + 0.5))
		}
		return T(math.Ceil(x - 0.5))
	}
}
