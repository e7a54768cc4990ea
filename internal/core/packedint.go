package core

import (
	"encoding/binary"

	"github.com/nlitsme/idbutil/internal/utils"
)

// Unpacker decodes the variable-width packed integers used throughout node
// values: struct/enum/bitfield records, name blobs, and list entries.
type Unpacker struct {
	data []byte
	pos  int
	use64 bool
}

// NewUnpacker wraps data for sequential decoding. use64 selects the 64-bit
// word extension used by .i64 databases.
func NewUnpacker(data []byte, use64 bool) *Unpacker {
	return &Unpacker{data: data, use64: use64}
}

// Eof reports whether every byte has been consumed.
func (u *Unpacker) Eof() bool { return u.pos >= len(u.data) }

// Remaining returns the unconsumed tail of the buffer without advancing.
func (u *Unpacker) Remaining() []byte { return u.data[u.pos:] }

// Next32 decodes one packed 32-bit value. The leading byte b0 selects the
// encoding: 0xFF is a full 5-byte form (4 big-endian value bytes follow);
// b0 < 0x80 is a 1-byte form (the value is b0 itself); b0 < 0xC0 is a 2-byte
// big-endian form masked to 14 bits; otherwise a 4-byte big-endian form
// masked to 29 bits.
func (u *Unpacker) Next32() (uint32, error) {
	if u.pos >= len(u.data) {
		return 0, utils.WrapError("unpacking integer", ErrUnexpectedEOF)
	}
	b0 := u.data[u.pos]

	switch {
	case b0 == 0xFF:
		if u.pos+5 > len(u.data) {
			return 0, utils.WrapError("unpacking integer", ErrUnexpectedEOF)
		}
		v := binary.BigEndian.Uint32(u.data[u.pos+1 : u.pos+5])
		u.pos += 5
		return v, nil

	case b0 < 0x80:
		u.pos++
		return uint32(b0), nil

	case b0 < 0xC0:
		if u.pos+2 > len(u.data) {
			return 0, utils.WrapError("unpacking integer", ErrUnexpectedEOF)
		}
		v := binary.BigEndian.Uint16(u.data[u.pos : u.pos+2])
		u.pos += 2
		return uint32(v) & 0x3FFF, nil

	default:
		if u.pos+4 > len(u.data) {
			return 0, utils.WrapError("unpacking integer", ErrUnexpectedEOF)
		}
		v := binary.BigEndian.Uint32(u.data[u.pos : u.pos+4])
		u.pos += 4
		return v & 0x1FFFFFFF, nil
	}
}

// NextWord decodes one word: a single Next32 on 32-bit databases, or two
// Next32 calls combined low-then-high on 64-bit databases.
func (u *Unpacker) NextWord() (uint64, error) {
	lo, err := u.Next32()
	if err != nil {
		return 0, err
	}
	if !u.use64 {
		return uint64(lo), nil
	}
	hi, err := u.Next32()
	if err != nil {
		return 0, err
	}
	return uint64(lo) | (uint64(hi) << 32), nil
}
