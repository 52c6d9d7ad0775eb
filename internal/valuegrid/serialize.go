package valuegrid

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2err"
)

var valGridMagic = [8]byte{'V', 'a', 'l', 'G', 'r', 'i', 'd', '_'}

var (
	sigLE = [2]byte{'I', 'I'}
	sigBE = [2]byte{'M', 'M'}
)

const (
	mainVersion = 1
	subVersion  = 0
)

// DataType tags the element type stored in a serialized ValueGrid file.
type DataType int16

const (
	TypeUint8 DataType = iota
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
)

const (
	flagMinMax  uint32 = 1 << 0
	flagInvalid uint32 = 1 << 1
	flagGeo     uint32 = 1 << 2
)

func byteOrderFor(sig [2]byte) (binary.ByteOrder, bool) {
	switch sig {
	case sigLE:
		return binary.LittleEndian, true
	case sigBE:
		return binary.BigEndian, true
	default:
		return nil, false
	}
}

// dataTypeOf returns the DataType tag for T, determined once per
// instantiation via a runtime type switch (Go generics do not support
// per-type constant dispatch).
func dataTypeOf[T Scalar]() (DataType, int) {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return TypeUint8, 1
	case int32:
		return TypeInt32, 4
	case int64:
		return TypeInt64, 8
	case float32:
		return TypeFloat32, 4
	case float64:
		return TypeFloat64, 8
	default:
		panic(fmt.Sprintf("valuegrid: unsupported scalar type %T", zero))
	}
}

// Write serializes g to w in the §6.3 ValueGrid file format, using the
// given byte order (defaults to little-endian if nil).
func Write[T Scalar](w io.Writer, g *Grid[T], order binary.ByteOrder) error {
	if order == nil {
		order = binary.LittleEndian
	}
	dtype, elemSize := dataTypeOf[T]()

	var flags uint32
	if g.hasMinMax {
		flags |= flagMinMax
	}
	if g.hasInvalid {
		flags |= flagInvalid
	}
	if g.hasGeo {
		flags |= flagGeo
	}

	buf := make([]byte, 0, 64)
	buf = append(buf, valGridMagic[:]...)
	sig := sigLE
	if order == binary.BigEndian {
		sig = sigBE
	}
	buf = append(buf, sig[:]...)

	var u16 [2]byte
	var u32 [4]byte
	order.PutUint16(u16[:], mainVersion)
	buf = append(buf, u16[:]...)
	order.PutUint16(u16[:], subVersion)
	buf = append(buf, u16[:]...)
	order.PutUint16(u16[:], uint16(dtype))
	buf = append(buf, u16[:]...)

	order.PutUint32(u32[:], uint32(g.Width))
	buf = append(buf, u32[:]...)
	order.PutUint32(u32[:], uint32(g.Height))
	buf = append(buf, u32[:]...)
	order.PutUint32(u32[:], uint32(g.XIndex))
	buf = append(buf, u32[:]...)
	order.PutUint32(u32[:], uint32(g.YIndex))
	buf = append(buf, u32[:]...)
	order.PutUint32(u32[:], flags)
	buf = append(buf, u32[:]...)

	if g.hasMinMax {
		buf = appendScalar(buf, order, g.minValue)
		buf = appendScalar(buf, order, g.maxValue)
	}
	if g.hasInvalid {
		buf = appendScalar(buf, order, g.invalidValue)
	}
	if g.hasGeo {
		var i32 [4]byte
		var i64 [8]byte
		order.PutUint32(i32[:], uint32(g.geo.SRID))
		buf = append(buf, i32[:]...)
		for _, v := range [4]int64{int64(g.geo.BBox.MinX), int64(g.geo.BBox.MinY), int64(g.geo.BBox.MaxX), int64(g.geo.BBox.MaxY)} {
			order.PutUint64(i64[:], uint64(v))
			buf = append(buf, i64[:]...)
		}
	}

	if _, err := w.Write(buf); err != nil {
		return cvf2err.New(cvf2err.KindIO, "valuegrid.Write", err)
	}

	values := make([]byte, 0, len(g.values)*elemSize)
	for _, v := range g.values {
		values = appendScalar(values, order, v)
	}
	if _, err := w.Write(values); err != nil {
		return cvf2err.New(cvf2err.KindIO, "valuegrid.Write", err)
	}
	return nil
}

func appendScalar[T Scalar](buf []byte, order binary.ByteOrder, v T) []byte {
	switch x := any(v).(type) {
	case uint8:
		return append(buf, x)
	case int32:
		var b [4]byte
		order.PutUint32(b[:], uint32(x))
		return append(buf, b[:]...)
	case int64:
		var b [8]byte
		order.PutUint64(b[:], uint64(x))
		return append(buf, b[:]...)
	case float32:
		var b [4]byte
		order.PutUint32(b[:], mathFloat32bits(x))
		return append(buf, b[:]...)
	case float64:
		var b [8]byte
		order.PutUint64(b[:], mathFloat64bits(x))
		return append(buf, b[:]...)
	default:
		panic(fmt.Sprintf("valuegrid: unsupported scalar type %T", v))
	}
}

// Read parses a ValueGrid file produced by Write into a new Grid[T]. T
// must match the data_type tag recorded in the file.
func Read[T Scalar](r io.Reader) (*Grid[T], error) {
	want, elemSize := dataTypeOf[T]()

	hdr := make([]byte, 8+2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, cvf2err.New(cvf2err.KindCorruptFile, "valuegrid.Read", err)
	}
	var gotMagic [8]byte
	copy(gotMagic[:], hdr[0:8])
	if gotMagic != valGridMagic {
		return nil, cvf2err.New(cvf2err.KindCorruptFile, "valuegrid.Read", fmt.Errorf("bad magic %q", gotMagic))
	}
	var sig [2]byte
	copy(sig[:], hdr[8:10])
	order, ok := byteOrderFor(sig)
	if !ok {
		return nil, cvf2err.New(cvf2err.KindCorruptFile, "valuegrid.Read", fmt.Errorf("bad endianness signature %q", sig))
	}

	rest := make([]byte, 2+2+2+4+4+4+4+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, cvf2err.New(cvf2err.KindCorruptFile, "valuegrid.Read", err)
	}
	p := rest
	// main_version, sub_version skipped (forward-compat not required here).
	p = p[4:]
	dtype := DataType(order.Uint16(p[0:2]))
	if dtype != want {
		return nil, cvf2err.New(cvf2err.KindUnsupportedFormat, "valuegrid.Read", fmt.Errorf("data_type tag %d does not match requested scalar type (want %d)", dtype, want))
	}
	p = p[2:]
	width := int(int32(order.Uint32(p[0:4])))
	height := int(int32(order.Uint32(p[4:8])))
	xIndex := int(int32(order.Uint32(p[8:12])))
	yIndex := int(int32(order.Uint32(p[12:16])))
	flags := order.Uint32(p[16:20])

	g := New[T](width, height)
	g.XIndex, g.YIndex = xIndex, yIndex

	if flags&flagMinMax != 0 {
		minV, err := readScalar[T](r, order, elemSize)
		if err != nil {
			return nil, err
		}
		maxV, err := readScalar[T](r, order, elemSize)
		if err != nil {
			return nil, err
		}
		g.minValue, g.maxValue, g.hasMinMax = minV, maxV, true
	}
	if flags&flagInvalid != 0 {
		v, err := readScalar[T](r, order, elemSize)
		if err != nil {
			return nil, err
		}
		g.SetInvalidValue(v)
	}
	if flags&flagGeo != 0 {
		geoBuf := make([]byte, 4+8*4)
		if _, err := io.ReadFull(r, geoBuf); err != nil {
			return nil, cvf2err.New(cvf2err.KindCorruptFile, "valuegrid.Read", err)
		}
		srid := int32(order.Uint32(geoBuf[0:4]))
		var bbox [4]int64
		for i := 0; i < 4; i++ {
			bbox[i] = int64(order.Uint64(geoBuf[4+i*8 : 12+i*8]))
		}
		g.SetGeoInfo(GeoInfo{SRID: srid, BBox: bboxFromInts(bbox)})
	}

	values := make([]byte, width*height*elemSize)
	if _, err := io.ReadFull(r, values); err != nil {
		return nil, cvf2err.New(cvf2err.KindCorruptFile, "valuegrid.Read", err)
	}
	for i := 0; i < width*height; i++ {
		g.values[i] = decodeScalar[T](order, values[i*elemSize:(i+1)*elemSize])
	}
	return g, nil
}

func readScalar[T Scalar](r io.Reader, order binary.ByteOrder, elemSize int) (T, error) {
	buf := make([]byte, elemSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		var zero T
		return zero, cvf2err.New(cvf2err.KindCorruptFile, "valuegrid.readScalar", err)
	}
	return decodeScalar[T](order, buf), nil
}

func decodeScalar[T Scalar](order binary.ByteOrder, buf []byte) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return any(buf[0]).(T)
	case int32:
		return any(int32(order.Uint32(buf))).(T)
	case int64:
		return any(int64(order.Uint64(buf))).(T)
	case float32:
		return any(mathFloat32frombits(order.Uint32(buf))).(T)
	case float64:
		return any(mathFloat64frombits(order.Uint64(buf))).(T)
	default:
		panic(fmt.Sprintf("valuegrid: unsupported scalar type %T", zero))
	}
}
