package core

import (
	"encoding/binary"

	"github.com/nlitsme/idbutil/internal/utils"
)

// NodeKeys builds the structured keys stored in the ID0 B-tree, all sharing
// a database-wide word size (4 or 8 bytes) for their big-endian node-id
// fields.
type NodeKeys struct {
	wordsize int
}

// NewNodeKeys returns a key builder for the given word size.
func NewNodeKeys(wordsize int) NodeKeys { return NodeKeys{wordsize: wordsize} }

func (k NodeKeys) putWord(dst []byte, v uint64) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, k.wordsize)...)
	switch k.wordsize {
	case 4:
		binary.BigEndian.PutUint32(dst[start:], uint32(v))
	case 8:
		binary.BigEndian.PutUint64(dst[start:], v)
	}
	return dst
}

// NodeKey builds '.' + be_word(nodeid).
func (k NodeKeys) NodeKey(nodeid uint64) []byte {
	key := make([]byte, 0, 1+k.wordsize)
	key = append(key, '.')
	return k.putWord(key, nodeid)
}

// NodeTagKey builds '.' + be_word(nodeid) + tag.
func (k NodeKeys) NodeTagKey(nodeid uint64, tag byte) []byte {
	return append(k.NodeKey(nodeid), tag)
}

// NodeIndexKey builds '.' + be_word(nodeid) + tag + be_word(index). index
// is signed because several entity conventions use small negative indices
// (e.g. -1, -3, -5); it is encoded as the two's-complement bit pattern
// truncated to the database word size.
func (k NodeKeys) NodeIndexKey(nodeid uint64, tag byte, index int64) []byte {
	key := k.NodeTagKey(nodeid, tag)
	return k.putWord(key, uint64(index))
}

// NodeHashKey builds '.' + be_word(nodeid) + tag + raw hashkey bytes.
func (k NodeKeys) NodeHashKey(nodeid uint64, tag byte, hashkey []byte) []byte {
	key := k.NodeTagKey(nodeid, tag)
	return append(key, hashkey...)
}

// NameIDKey builds 'N' + be_word(id).
func (k NodeKeys) NameIDKey(id uint64) []byte {
	key := make([]byte, 0, 1+k.wordsize)
	key = append(key, 'N')
	return k.putWord(key, id)
}

// NameKey builds 'N' + raw name bytes.
func (k NodeKeys) NameKey(name string) []byte {
	key := make([]byte, 0, 1+len(name))
	key = append(key, 'N')
	return append(key, name...)
}

// GetUint decodes a little-endian unsigned integer of width 1, 2, 4 or 8
// bytes, matching the widths a node value is ever stored at.
func GetUint(val []byte) (uint64, error) {
	switch len(val) {
	case 1:
		return uint64(val[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(val)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(val)), nil
	case 8:
		return binary.LittleEndian.Uint64(val), nil
	default:
		return 0, utils.WrapError("decoding node value", ErrUnsupported)
	}
}

// GetInt decodes a value the same way as GetUint and reinterprets it as
// signed.
func GetInt(val []byte) (int64, error) {
	v, err := GetUint(val)
	return int64(v), err
}

// GetUintBE decodes a big-endian unsigned integer of width 1, 2, 4 or 8
// bytes, used for the rare value stored in big-endian order.
func GetUintBE(val []byte) (uint64, error) {
	switch len(val) {
	case 1:
		return uint64(val[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(val)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(val)), nil
	case 8:
		return binary.BigEndian.Uint64(val), nil
	default:
		return 0, utils.WrapError("decoding node value", ErrUnsupported)
	}
}

// GetStr strips trailing zero bytes from a value.
func GetStr(val []byte) string {
	end := len(val)
	for end > 0 && val[end-1] == 0 {
		end--
	}
	return string(val[:end])
}

// minusOne implements the sentinel-offset convention used throughout the
// node-value layer: a stored value of 0 means absent, otherwise the real id
// is one less than the stored value.
func minusOne(id uint64) uint64 {
	if id == 0 {
		return 0
	}
	return id - 1
}
