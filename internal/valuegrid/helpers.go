package valuegrid

import (
	"math"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2"
)

func mathFloat32bits(f float32) uint32   { return math.Float32bits(f) }
func mathFloat64bits(f float64) uint64   { return math.Float64bits(f) }
func mathFloat32frombits(b uint32) float32 { return math.Float32frombits(b) }
func mathFloat64frombits(b uint64) float64 { return math.Float64frombits(b) }

func bboxFromInts(v [4]int64) cvf2.BBox {
	return cvf2.BBox{
		MinX: cvf2.Fix(v[0]),
		MinY: cvf2.Fix(v[1]),
		MaxX: cvf2.Fix(v[2]),
		MaxY: cvf2.Fix(v[3]),
	}
}
