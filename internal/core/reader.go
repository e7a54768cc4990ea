package core

import (
	"encoding/binary"
	"io"

	"github.com/nlitsme/idbutil/internal/utils"
)

// Source is a bounded, sized random-access byte source. Section streams
// and the raw container file both implement it.
type Source interface {
	utils.ReaderAt
	Size() int64
}

// bytesSource adapts a fixed in-memory slice to Source.
type bytesSource struct {
	data []byte
}

// NewBytesSource wraps a byte slice as a Source, for tests and small
// in-memory payloads (e.g. page 0 of a B-tree).
func NewBytesSource(data []byte) Source {
	return &bytesSource{data: data}
}

func (b *bytesSource) Size() int64 { return int64(len(b.data)) }

func (b *bytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, utils.WrapError("reading bytes source", ErrOutOfBounds)
	}
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Whence values for ByteReader.Seek, mirroring io.SeekStart/Current/End.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// ByteReader reads little- or big-endian scalars and raw byte runs from a
// Source, tracking its own sequential cursor position. Multiple ByteReaders
// may wrap the same Source without interfering with each other, since every
// read is expressed as an absolute ReadAt against the source.
type ByteReader struct {
	src      Source
	pos      int64
	wordsize int
}

// NewByteReader creates a reader positioned at offset 0. wordsize is 4 or 8
// and controls ReadWord; pass 0 if the word size is not yet known.
func NewByteReader(src Source, wordsize int) *ByteReader {
	return &ByteReader{src: src, wordsize: wordsize}
}

// WordSize reports the configured word size.
func (r *ByteReader) WordSize() int { return r.wordsize }

// SetWordSize reconfigures the word size used by ReadWord.
func (r *ByteReader) SetWordSize(n int) { r.wordsize = n }

// Pos reports the current cursor position.
func (r *ByteReader) Pos() int64 { return r.pos }

// Seek repositions the cursor. A seek past the end of the source fails.
func (r *ByteReader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case SeekStart:
		target = offset
	case SeekCurrent:
		target = r.pos + offset
	case SeekEnd:
		target = r.src.Size() + offset
	default:
		return 0, utils.WrapError("seeking byte reader", ErrOutOfBounds)
	}
	if target < 0 || target > r.src.Size() {
		return 0, utils.WrapError("seeking byte reader", ErrOutOfBounds)
	}
	r.pos = target
	return r.pos, nil
}

// ReadBytes returns exactly n bytes starting at the cursor, advancing it.
func (r *ByteReader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := r.src.ReadAt(buf, r.pos)
	if err != nil && got < n {
		return nil, utils.WrapError("reading bytes", ErrUnexpectedEOF)
	}
	r.pos += int64(n)
	return buf, nil
}

func (r *ByteReader) readScratch(n int) ([]byte, error) {
	buf := utils.GetBuffer(n)
	got, err := r.src.ReadAt(buf, r.pos)
	if err != nil && got < n {
		utils.ReleaseBuffer(buf)
		return nil, utils.WrapError("reading scalar", ErrUnexpectedEOF)
	}
	r.pos += int64(n)
	return buf, nil
}

// ReadU8 reads one byte.
func (r *ByteReader) ReadU8() (uint8, error) {
	buf, err := r.readScratch(1)
	if err != nil {
		return 0, err
	}
	v := buf[0]
	utils.ReleaseBuffer(buf)
	return v, nil
}

// ReadU16LE reads a little-endian 16-bit value.
func (r *ByteReader) ReadU16LE() (uint16, error) { return r.read16(binary.LittleEndian) }

// ReadU16BE reads a big-endian 16-bit value.
func (r *ByteReader) ReadU16BE() (uint16, error) { return r.read16(binary.BigEndian) }

func (r *ByteReader) read16(order binary.ByteOrder) (uint16, error) {
	buf, err := r.readScratch(2)
	if err != nil {
		return 0, err
	}
	v := order.Uint16(buf)
	utils.ReleaseBuffer(buf)
	return v, nil
}

// ReadU32LE reads a little-endian 32-bit value.
func (r *ByteReader) ReadU32LE() (uint32, error) { return r.read32(binary.LittleEndian) }

// ReadU32BE reads a big-endian 32-bit value.
func (r *ByteReader) ReadU32BE() (uint32, error) { return r.read32(binary.BigEndian) }

func (r *ByteReader) read32(order binary.ByteOrder) (uint32, error) {
	buf, err := r.readScratch(4)
	if err != nil {
		return 0, err
	}
	v := order.Uint32(buf)
	utils.ReleaseBuffer(buf)
	return v, nil
}

// ReadU64LE reads a little-endian 64-bit value.
func (r *ByteReader) ReadU64LE() (uint64, error) { return r.read64(binary.LittleEndian) }

// ReadU64BE reads a big-endian 64-bit value.
func (r *ByteReader) ReadU64BE() (uint64, error) { return r.read64(binary.BigEndian) }

func (r *ByteReader) read64(order binary.ByteOrder) (uint64, error) {
	buf, err := r.readScratch(8)
	if err != nil {
		return 0, err
	}
	v := order.Uint64(buf)
	utils.ReleaseBuffer(buf)
	return v, nil
}

// ReadWord reads a little-endian value of the configured word size (4 or 8
// bytes).
func (r *ByteReader) ReadWord() (uint64, error) {
	switch r.wordsize {
	case 4:
		v, err := r.ReadU32LE()
		return uint64(v), err
	case 8:
		return r.ReadU64LE()
	default:
		return 0, utils.WrapError("reading word", ErrUnsupported)
	}
}
