package cvf2

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2err"
	"github.com/cvf2grid/cvf2tiles/internal/rowcodec"
)

// Header carries every field parsed from a CVF2 file's header, without
// decoding any row data.
type Header struct {
	Width, Height     uint32
	SRID              int32
	BBox              BBox
	UndefCount        int32
	MinValue, MaxValue int64
	MeanValue         Fix
	Unit              int32
	RowOffsetsPos     uint32
}

// Reader implements C3: random access to a single value or a full row via
// the row-offset table, with an optional full-grid RAM cache.
type Reader struct {
	f     *os.File
	order binary.ByteOrder
	hdr   Header

	rowOffsets []uint32
	rowBuf     []int64 // reused across ReadRow calls
	rowBufY    int
	rowBufOK   bool

	cache []int64 // full-grid cache, nil until BuildCache
}

// OpenReader parses the header of path, validating the magic and
// endianness signature, and positions the reader for subsequent row reads.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cvf2err.New(cvf2err.KindIO, "cvf2.OpenReader", err)
	}
	r := &Reader{f: f}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := r.readRowOffsetTable(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r.f, buf); err != nil {
		return cvf2err.New(cvf2err.KindCorruptFile, "Reader.readHeader", fmt.Errorf("reading header: %w", err))
	}
	var gotMagic [4]byte
	copy(gotMagic[:], buf[0:4])
	if gotMagic != magic {
		return cvf2err.New(cvf2err.KindCorruptFile, "Reader.readHeader", fmt.Errorf("bad magic %q", gotMagic))
	}
	var sig [2]byte
	copy(sig[:], buf[4:6])
	order, ok := byteOrderFor(sig)
	if !ok {
		return cvf2err.New(cvf2err.KindCorruptFile, "Reader.readHeader", fmt.Errorf("bad endianness signature %q", sig))
	}
	r.order = order

	p := buf[6:]
	r.hdr.Width = order.Uint32(p[0:4])
	r.hdr.Height = order.Uint32(p[4:8])
	r.hdr.SRID = int32(order.Uint32(p[8:12]))
	r.hdr.BBox.MinX = Fix(order.Uint64(p[12:20]))
	r.hdr.BBox.MinY = Fix(order.Uint64(p[20:28]))
	r.hdr.BBox.MaxX = Fix(order.Uint64(p[28:36]))
	r.hdr.BBox.MaxY = Fix(order.Uint64(p[36:44]))
	r.hdr.UndefCount = int32(order.Uint32(p[44:48]))
	r.hdr.MinValue = int64(order.Uint64(p[48:56]))
	r.hdr.MaxValue = int64(order.Uint64(p[56:64]))
	r.hdr.MeanValue = Fix(order.Uint64(p[64:72]))
	r.hdr.Unit = int32(order.Uint32(p[72:76]))
	r.hdr.RowOffsetsPos = order.Uint32(p[76:80])
	return nil
}

func (r *Reader) readRowOffsetTable() error {
	r.rowOffsets = make([]uint32, r.hdr.Height)
	buf := make([]byte, 4*r.hdr.Height)
	if _, err := r.f.ReadAt(buf, int64(r.hdr.RowOffsetsPos)); err != nil {
		return cvf2err.New(cvf2err.KindCorruptFile, "Reader.readRowOffsetTable", fmt.Errorf("reading row-offset table: %w", err))
	}
	for i := range r.rowOffsets {
		r.rowOffsets[i] = r.order.Uint32(buf[i*4:])
	}
	return nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.hdr }

func (r *Reader) Width() int  { return int(r.hdr.Width) }
func (r *Reader) Height() int { return int(r.hdr.Height) }

// rowHeader is the parsed (digits, runs) prefix of a row block, plus the
// absolute byte offset of the nibble stream that follows it.
type rowHeader struct {
	digits      int
	runs        []rowcodec.Run
	nibbleStart int64
}

func (r *Reader) readRowHeader(y int) (rowHeader, error) {
	if y < 0 || y >= len(r.rowOffsets) {
		return rowHeader{}, cvf2err.New(cvf2err.KindBadArgs, "Reader.readRowHeader", fmt.Errorf("y=%d out of range [0,%d)", y, len(r.rowOffsets)))
	}
	offset := int64(r.rowOffsets[y])

	prefix := make([]byte, 6)
	if _, err := r.f.ReadAt(prefix, offset); err != nil {
		return rowHeader{}, cvf2err.New(cvf2err.KindCorruptFile, "Reader.readRowHeader", err)
	}
	digits := int(r.order.Uint16(prefix[0:2]))
	runCount := int(r.order.Uint32(prefix[2:6]))

	runTableSize := runCount*12 - 4
	if runCount == 0 {
		runTableSize = 0
	}
	runBuf := make([]byte, runTableSize)
	if runTableSize > 0 {
		if _, err := r.f.ReadAt(runBuf, offset+6); err != nil {
			return rowHeader{}, cvf2err.New(cvf2err.KindCorruptFile, "Reader.readRowHeader", err)
		}
	}

	runs := make([]rowcodec.Run, runCount)
	pos := 0
	for i := 0; i < runCount; i++ {
		var run rowcodec.Run
		if i == 0 {
			run.Offset = 0
			run.Min = int64(r.order.Uint64(runBuf[pos : pos+8]))
			pos += 8
		} else {
			run.Offset = int(r.order.Uint32(runBuf[pos : pos+4]))
			run.Min = int64(r.order.Uint64(runBuf[pos+4 : pos+12]))
			pos += 12
		}
		runs[i] = run
	}
	for i := range runs {
		if i+1 < len(runs) {
			runs[i].Length = runs[i+1].Offset - runs[i].Offset
		} else {
			runs[i].Length = int(r.hdr.Width) - runs[i].Offset
		}
	}

	return rowHeader{
		digits:      digits,
		runs:        runs,
		nibbleStart: offset + 6 + int64(runTableSize),
	}, nil
}

// ReadRow decodes row y into the reader's internal row buffer and returns
// it. The returned slice is reused by subsequent calls.
func (r *Reader) ReadRow(y int) ([]int64, error) {
	if r.rowBufOK && r.rowBufY == y {
		return r.rowBuf, nil
	}
	rh, err := r.readRowHeader(y)
	if err != nil {
		return nil, err
	}
	nibbleCount := int(r.hdr.Width) * rh.digits
	nibbleBytes := make([]byte, (nibbleCount+1)/2)
	if len(nibbleBytes) > 0 {
		if _, err := r.f.ReadAt(nibbleBytes, rh.nibbleStart); err != nil {
			return nil, cvf2err.New(cvf2err.KindCorruptFile, "Reader.ReadRow", err)
		}
	}
	r.rowBuf = append(r.rowBuf[:0], rowcodec.DecodeRow(rh.digits, rh.runs, nibbleBytes, int(r.hdr.Width))...)
	r.rowBufY = y
	r.rowBufOK = true
	return r.rowBuf, nil
}

// BuildCache materializes every row into a single width*height array, so
// subsequent ValueAt(..., true) calls become O(1).
func (r *Reader) BuildCache() error {
	cache := make([]int64, int(r.hdr.Width)*int(r.hdr.Height))
	for y := 0; y < int(r.hdr.Height); y++ {
		row, err := r.ReadRow(y)
		if err != nil {
			return err
		}
		copy(cache[y*int(r.hdr.Width):], row)
	}
	r.cache = cache
	return nil
}

// FreeCache releases the full-grid cache built by BuildCache.
func (r *Reader) FreeCache() {
	r.cache = nil
}

// ValueAt returns the sample at (x, y), or Undefined if out of range. When
// useCache is true and no cache exists yet, it is built first; otherwise
// the value is found via a row-header seek and a single nibble decode.
func (r *Reader) ValueAt(x, y int, useCache bool) (int64, error) {
	if x < 0 || x >= int(r.hdr.Width) || y < 0 || y >= int(r.hdr.Height) {
		return rowcodec.Undefined, nil
	}
	if useCache {
		if r.cache == nil {
			if err := r.BuildCache(); err != nil {
				return 0, err
			}
		}
		return r.cache[y*int(r.hdr.Width)+x], nil
	}

	rh, err := r.readRowHeader(y)
	if err != nil {
		return 0, err
	}
	runIdx := rowcodec.FindRun(rh.runs, x)
	run := rh.runs[runIdx]

	nibbleOffset := x * rh.digits
	startByte := nibbleOffset / 2
	// Each byte packs two nibbles; read just the bytes spanning this
	// cell's digits nibbles, starting at the byte containing its first.
	endNibble := nibbleOffset + rh.digits
	endByte := (endNibble + 1) / 2
	chunk := make([]byte, endByte-startByte)
	if _, err := r.f.ReadAt(chunk, rh.nibbleStart+int64(startByte)); err != nil {
		return 0, cvf2err.New(cvf2err.KindCorruptFile, "Reader.ValueAt", err)
	}
	localNibbleOffset := nibbleOffset - startByte*2
	return rowcodec.DecodeDeltaAt(rh.digits, run, chunk, localNibbleOffset), nil
}

// Close releases the reader's underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
