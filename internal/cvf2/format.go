// Package cvf2 implements the CVF2 container format: a self-describing
// binary file holding a 2-D grid of int64 samples, encoded row-by-row via
// internal/rowcodec, with a header patched at finalization and a row-offset
// table for O(1) random-access row lookups.
package cvf2

import (
	"encoding/binary"

	"github.com/cvf2grid/cvf2tiles/internal/rowcodec"
)

// Undefined is the sentinel value meaning "no measurement at this cell".
const Undefined = rowcodec.Undefined

var magic = [4]byte{'C', 'V', 'F', '2'}

var (
	sigLittleEndian = [2]byte{'I', 'I'}
	sigBigEndian    = [2]byte{'M', 'M'}
)

// headerSize is the fixed byte length of the CVF2 header (§6.2).
const headerSize = 4 + 2 + 4 + 4 + 4 + 8*4 + 4 + 8 + 8 + 8 + 4 + 4

// Fix is a fixed-point coordinate or value: an int64 scaled by an
// out-of-band power of ten. The scale is a convention of the caller, never
// stored per value.
type Fix int64

// BBox is an axis-aligned bounding box in fixed-point coordinates.
type BBox struct {
	MinX, MinY, MaxX, MaxY Fix
}

// byteOrderFor returns the binary.ByteOrder matching the 2-byte endianness
// signature, or nil plus false if the signature is unrecognized.
func byteOrderFor(sig [2]byte) (binary.ByteOrder, bool) {
	switch sig {
	case sigLittleEndian:
		return binary.LittleEndian, true
	case sigBigEndian:
		return binary.BigEndian, true
	default:
		return nil, false
	}
}

func sigFor(order binary.ByteOrder) [2]byte {
	if order == binary.BigEndian {
		return sigBigEndian
	}
	return sigLittleEndian
}
