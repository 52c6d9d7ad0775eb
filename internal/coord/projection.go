// Package coord provides the projector contract the tile manager's query
// engine treats as an external collaborator: mapping (x,y) between spatial
// reference systems via WGS84 as the common intermediate, plus the
// web-Mercator slippy-map math used by the pyramid generator.
package coord

import (
	"fmt"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2err"
)

// Projection defines the interface for converting between a source CRS and WGS84.
type Projection interface {
	// ToWGS84 converts source CRS coordinates to WGS84 longitude/latitude (degrees).
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts WGS84 longitude/latitude (degrees) to source CRS coordinates.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the EPSG code for this projection.
	EPSG() int
}

// ForEPSG returns a Projection for the given EPSG code.
// Returns nil if the EPSG code is not supported.
func ForEPSG(epsg int) Projection {
	switch epsg {
	case 2056:
		return &SwissLV95{}
	case 4326:
		return &WGS84Identity{}
	case 3857:
		return &WebMercatorProj{}
	default:
		return nil
	}
}

// WGS84Identity is a no-op projection for data already in EPSG:4326.
type WGS84Identity struct{}

func (w *WGS84Identity) ToWGS84(x, y float64) (lon, lat float64)   { return x, y }
func (w *WGS84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (w *WGS84Identity) EPSG() int                                 { return 4326 }

// Project maps a point in srcSRID to dstSRID, routing through WGS84 the
// way every Projection implementation here already does internally. This
// is the "projector that maps (x,y) between two spatial reference
// identifiers" the query engine treats as an external contract.
func Project(srcSRID, dstSRID int, x, y float64) (float64, float64, error) {
	if srcSRID == dstSRID {
		return x, y, nil
	}
	src := ForEPSG(srcSRID)
	if src == nil {
		return 0, 0, cvf2err.New(cvf2err.KindProjection, "coord.Project", fmt.Errorf("unknown SRID %d", srcSRID))
	}
	dst := ForEPSG(dstSRID)
	if dst == nil {
		return 0, 0, cvf2err.New(cvf2err.KindProjection, "coord.Project", fmt.Errorf("unknown SRID %d", dstSRID))
	}
	lon, lat := src.ToWGS84(x, y)
	dx, dy := dst.FromWGS84(lon, lat)
	return dx, dy, nil
}
