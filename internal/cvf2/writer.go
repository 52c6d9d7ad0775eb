package cvf2

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cvf2grid/cvf2tiles/internal/cvf2err"
	"github.com/cvf2grid/cvf2tiles/internal/rowcodec"
)

// writerState is the C2 state machine: Fresh -> Open -> {Open, BulkOpen} -> Closed.
type writerState int

const (
	stateFresh writerState = iota
	stateOpen
	stateBulkOpen
	stateClosed
)

// WriterOptions configures a new CVF2 file. Width and Height are required;
// SRID, BBox and Unit are written as given (zero when unset);
// MinDigits/MaxDigits default to the full [2,8] range if zero.
type WriterOptions struct {
	Width, Height int
	SRID          int32
	BBox          BBox
	Unit          int32
	MinDigits     int
	MaxDigits     int
	ByteOrder     binary.ByteOrder // defaults to binary.LittleEndian
}

// Writer implements C2: it accepts values in row-major order (or via
// random-access bulk writes), drives internal/rowcodec per completed row,
// and patches summary statistics into the header at Finish.
type Writer struct {
	path string
	f    *os.File
	opts WriterOptions
	order binary.ByteOrder

	state writerState

	// streaming mode
	rowBuf []int64
	col    int

	// bulk mode
	bulk []int64

	rowOffsets []uint32
	rowsWritten int

	definedCount int64
	undefCount   int64
	minValue     int64
	maxValue     int64
	hasDefined   bool
	sum          float64

	// byte offsets of header fields patched at Finish.
	offUndefCount     int64
	offMin            int64
	offMax            int64
	offMean           int64
	offRowOffsetsPos  int64
}

// Open creates (truncating) the file at path and writes the header
// skeleton, recording the positions of fields patched at Finish.
func Open(path string, opts WriterOptions) (*Writer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, cvf2err.New(cvf2err.KindBadArgs, "cvf2.Open", fmt.Errorf("width/height must be positive, got %dx%d", opts.Width, opts.Height))
	}
	if opts.MinDigits == 0 {
		opts.MinDigits = rowcodec.MinDigits
	}
	if opts.MaxDigits == 0 {
		opts.MaxDigits = rowcodec.MaxDigits
	}
	if opts.ByteOrder == nil {
		opts.ByteOrder = binary.LittleEndian
	}
	if int64(opts.Width)*int64(opts.Height) > (1<<31)-1 {
		return nil, cvf2err.New(cvf2err.KindCapacityExceeded, "cvf2.Open", fmt.Errorf("width*height overflows int32 addressing"))
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, cvf2err.New(cvf2err.KindIO, "cvf2.Open", err)
	}

	w := &Writer{
		path:  path,
		f:     f,
		opts:  opts,
		order: opts.ByteOrder,
		state: stateOpen,
	}
	if err := w.writeHeaderSkeleton(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeaderSkeleton() error {
	buf := make([]byte, 0, headerSize)
	buf = append(buf, magic[:]...)
	sig := sigFor(w.order)
	buf = append(buf, sig[:]...)

	var u32 [4]byte
	var u64 [8]byte

	appendU32 := func(v uint32) {
		w.order.PutUint32(u32[:], v)
		buf = append(buf, u32[:]...)
	}
	appendI32 := func(v int32) { appendU32(uint32(v)) }
	appendU64 := func(v uint64) {
		w.order.PutUint64(u64[:], v)
		buf = append(buf, u64[:]...)
	}
	appendI64 := func(v int64) { appendU64(uint64(v)) }
	appendFix := func(v Fix) { appendI64(int64(v)) }

	appendU32(uint32(w.opts.Width))
	appendU32(uint32(w.opts.Height))
	appendI32(w.opts.SRID)
	appendFix(w.opts.BBox.MinX)
	appendFix(w.opts.BBox.MinY)
	appendFix(w.opts.BBox.MaxX)
	appendFix(w.opts.BBox.MaxY)

	w.offUndefCount = int64(len(buf))
	appendI32(-1)

	w.offMin = int64(len(buf))
	appendI64(rowcodec.Undefined)
	w.offMax = int64(len(buf))
	appendI64(rowcodec.Undefined)

	w.offMean = int64(len(buf))
	appendFix(Fix(rowcodec.Undefined))

	appendI32(w.opts.Unit)

	w.offRowOffsetsPos = int64(len(buf))
	appendU32(0)

	if _, err := w.f.Write(buf); err != nil {
		return cvf2err.New(cvf2err.KindIO, "cvf2.Open", err)
	}
	return nil
}

// PushValue appends one value in row-major order, encoding a row via
// internal/rowcodec whenever it fills.
func (w *Writer) PushValue(v int64) error {
	if w.state == stateBulkOpen {
		return cvf2err.New(cvf2err.KindConfig, "Writer.PushValue", fmt.Errorf("writer is in bulk mode, call EncodeData first"))
	}
	if w.state != stateOpen {
		return cvf2err.New(cvf2err.KindConfig, "Writer.PushValue", fmt.Errorf("writer is not open"))
	}
	if w.rowsWritten >= w.opts.Height {
		return cvf2err.New(cvf2err.KindIO, "Writer.PushValue", fmt.Errorf("fatal: push exceeds configured height %d", w.opts.Height))
	}
	if w.rowBuf == nil {
		w.rowBuf = make([]int64, 0, w.opts.Width)
	}
	if len(w.rowBuf) >= w.opts.Width {
		return cvf2err.New(cvf2err.KindIO, "Writer.PushValue", fmt.Errorf("fatal: push exceeds configured width %d", w.opts.Width))
	}
	w.observeStat(v)
	w.rowBuf = append(w.rowBuf, v)
	if len(w.rowBuf) == w.opts.Width {
		if err := w.flushRow(w.rowBuf); err != nil {
			return err
		}
		w.rowBuf = w.rowBuf[:0]
	}
	return nil
}

// PushValueAt switches to bulk mode: on first call it allocates a full
// width*height buffer initialized to Undefined, then stores v at (x, y).
// Callers terminate bulk mode with EncodeData, which emits every row in
// order.
func (w *Writer) PushValueAt(x, y int, v int64) error {
	if w.state != stateOpen && w.state != stateBulkOpen {
		return cvf2err.New(cvf2err.KindConfig, "Writer.PushValueAt", fmt.Errorf("writer is not open"))
	}
	if x < 0 || x >= w.opts.Width || y < 0 || y >= w.opts.Height {
		return cvf2err.New(cvf2err.KindBadArgs, "Writer.PushValueAt", fmt.Errorf("(%d,%d) out of range for %dx%d", x, y, w.opts.Width, w.opts.Height))
	}
	if w.bulk == nil {
		w.bulk = make([]int64, w.opts.Width*w.opts.Height)
		for i := range w.bulk {
			w.bulk[i] = rowcodec.Undefined
		}
	}
	w.state = stateBulkOpen
	w.bulk[y*w.opts.Width+x] = v
	return nil
}

// EncodeData emits every row of the bulk buffer in order and returns the
// writer to Open state.
func (w *Writer) EncodeData() error {
	if w.state != stateBulkOpen {
		return cvf2err.New(cvf2err.KindConfig, "Writer.EncodeData", fmt.Errorf("writer is not in bulk mode"))
	}
	for y := 0; y < w.opts.Height; y++ {
		row := w.bulk[y*w.opts.Width : (y+1)*w.opts.Width]
		for _, v := range row {
			w.observeStat(v)
		}
		if err := w.flushRow(row); err != nil {
			return err
		}
	}
	w.bulk = nil
	w.state = stateOpen
	return nil
}

func (w *Writer) observeStat(v int64) {
	if v == rowcodec.Undefined {
		w.undefCount++
		return
	}
	w.definedCount++
	if !w.hasDefined || v < w.minValue {
		w.minValue = v
	}
	if !w.hasDefined || v > w.maxValue {
		w.maxValue = v
	}
	w.hasDefined = true
	w.sum += float64(v)
}

func (w *Writer) flushRow(values []int64) error {
	digits, err := rowcodec.ChooseDigits(values, w.opts.MinDigits, w.opts.MaxDigits)
	if err != nil {
		return cvf2err.New(cvf2err.KindCorruptFile, "Writer.flushRow", err)
	}
	res := rowcodec.EncodeRow(values, digits)

	offset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return cvf2err.New(cvf2err.KindIO, "Writer.flushRow", err)
	}
	w.rowOffsets = append(w.rowOffsets, uint32(offset))

	buf := make([]byte, 0, 2+4+len(res.Runs)*12+len(res.Nibbles))
	var u16 [2]byte
	var u32 [4]byte
	var u64 [8]byte
	w.order.PutUint16(u16[:], uint16(res.Digits))
	buf = append(buf, u16[:]...)
	w.order.PutUint32(u32[:], uint32(len(res.Runs)))
	buf = append(buf, u32[:]...)

	for i, run := range res.Runs {
		if i > 0 {
			w.order.PutUint32(u32[:], uint32(run.Offset))
			buf = append(buf, u32[:]...)
		}
		w.order.PutUint64(u64[:], uint64(run.Min))
		buf = append(buf, u64[:]...)
	}
	buf = append(buf, res.Nibbles...)

	if _, err := w.f.Write(buf); err != nil {
		return cvf2err.New(cvf2err.KindIO, "Writer.flushRow", err)
	}
	w.rowsWritten++
	return nil
}

// Finish patches the header's summary statistics and row-offset pointer,
// writes the row-offset table, and closes the file. It is an error to call
// Finish before every row has been written.
func (w *Writer) Finish() error {
	if w.state == stateClosed {
		return cvf2err.New(cvf2err.KindConfig, "Writer.Finish", fmt.Errorf("writer already closed"))
	}
	if w.state == stateBulkOpen {
		if err := w.EncodeData(); err != nil {
			return err
		}
	}
	if w.rowsWritten != w.opts.Height {
		w.f.Close()
		os.Remove(w.path)
		return cvf2err.New(cvf2err.KindIO, "Writer.Finish", fmt.Errorf("only %d of %d rows written", w.rowsWritten, w.opts.Height))
	}

	rowOffsetsPos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		w.f.Close()
		os.Remove(w.path)
		return cvf2err.New(cvf2err.KindIO, "Writer.Finish", err)
	}
	tableBuf := make([]byte, 4*len(w.rowOffsets))
	for i, off := range w.rowOffsets {
		w.order.PutUint32(tableBuf[i*4:], off)
	}
	if _, err := w.f.Write(tableBuf); err != nil {
		w.f.Close()
		os.Remove(w.path)
		return cvf2err.New(cvf2err.KindIO, "Writer.Finish", err)
	}

	mean := rowcodec.Undefined
	if w.definedCount > 0 {
		mean = int64(w.sum / float64(w.definedCount))
	}
	minV, maxV := rowcodec.Undefined, rowcodec.Undefined
	if w.hasDefined {
		minV, maxV = w.minValue, w.maxValue
	}

	if err := w.patchHeader(int32(w.undefCount), minV, maxV, mean, uint32(rowOffsetsPos)); err != nil {
		w.f.Close()
		os.Remove(w.path)
		return err
	}

	w.state = stateClosed
	if err := w.f.Close(); err != nil {
		return cvf2err.New(cvf2err.KindIO, "Writer.Finish", err)
	}
	return nil
}

func (w *Writer) patchHeader(undefCount int32, minValue, maxValue, mean int64, rowOffsetsPos uint32) error {
	var u32 [4]byte
	var u64 [8]byte

	w.order.PutUint32(u32[:], uint32(undefCount))
	if _, err := w.f.WriteAt(u32[:], w.offUndefCount); err != nil {
		return cvf2err.New(cvf2err.KindIO, "Writer.patchHeader", err)
	}
	w.order.PutUint64(u64[:], uint64(minValue))
	if _, err := w.f.WriteAt(u64[:], w.offMin); err != nil {
		return cvf2err.New(cvf2err.KindIO, "Writer.patchHeader", err)
	}
	w.order.PutUint64(u64[:], uint64(maxValue))
	if _, err := w.f.WriteAt(u64[:], w.offMax); err != nil {
		return cvf2err.New(cvf2err.KindIO, "Writer.patchHeader", err)
	}
	w.order.PutUint64(u64[:], uint64(mean))
	if _, err := w.f.WriteAt(u64[:], w.offMean); err != nil {
		return cvf2err.New(cvf2err.KindIO, "Writer.patchHeader", err)
	}
	w.order.PutUint32(u32[:], rowOffsetsPos)
	if _, err := w.f.WriteAt(u32[:], w.offRowOffsetsPos); err != nil {
		return cvf2err.New(cvf2err.KindIO, "Writer.patchHeader", err)
	}
	return nil
}

// Abort closes and removes the target file without finalizing it, matching
// the "do not partially commit" policy: a failed write leaves no artifact
// behind.
func (w *Writer) Abort() {
	if w.state == stateClosed {
		return
	}
	w.state = stateClosed
	w.f.Close()
	os.Remove(w.path)
}
