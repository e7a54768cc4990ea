package core

import (
	"bytes"

	"github.com/nlitsme/idbutil/internal/utils"
)

// ID0 is the key/value store built on top of the ID0 B-tree section: every
// struct, enum, bitfield, script, name and comment in the database is a
// handful of node-key lookups away.
type ID0 struct {
	bt       *BTree
	keys     NodeKeys
	wordsize int
}

// OpenID0 parses the ID0 section's B-tree.
func OpenID0(section *SectionStream, wordsize int) (*ID0, error) {
	bt, err := OpenBTree(section)
	if err != nil {
		return nil, utils.WrapError("opening id0", err)
	}
	return &ID0{bt: bt, keys: NewNodeKeys(wordsize), wordsize: wordsize}, nil
}

// NodeBase is the constant added to every node id as stored on disk,
// 0xFF shifted into the top byte of one word.
func (d *ID0) NodeBase() uint64 {
	return 0xFF << uint((d.wordsize-1)*8)
}

// WordSize reports the database's word size (4 or 8).
func (d *ID0) WordSize() int { return d.wordsize }

// Keys exposes the key builder for callers assembling their own lookups
// (e.g. the query mini-language).
func (d *ID0) Keys() NodeKeys { return d.keys }

// Find descends the underlying B-tree for key under the given relation.
func (d *ID0) Find(rel Relation, key []byte) (*Cursor, error) {
	return d.bt.Find(rel, key)
}

// Blob concatenates the values of every record whose key lies in
// [(nodeid,tag,startid), (nodeid,tag,lastid)], used to reassemble data
// spread across many indexed entries (struct member lists, script bodies).
func (d *ID0) Blob(nodeid uint64, tag byte, startid, lastid int64) ([]byte, error) {
	lastKey := d.keys.NodeIndexKey(nodeid, tag, lastid)
	cur, err := d.bt.Find(RelGreaterEqual, d.keys.NodeIndexKey(nodeid, tag, startid))
	if err != nil {
		return nil, err
	}
	var out []byte
	for !cur.Eof() {
		k, err := cur.GetKey()
		if err != nil {
			return nil, err
		}
		if bytes.Compare(k, lastKey) > 0 {
			break
		}
		v, err := cur.GetVal()
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			if err := utils.ValidateBufferSize(uint64(len(out)+len(v)), utils.MaxBlobSize, "node blob"); err != nil {
				return nil, utils.WrapError("assembling blob", err)
			}
		}
		out = append(out, v...)
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BlobAll is Blob with the default full index range.
func (d *ID0) BlobAll(nodeid uint64, tag byte) ([]byte, error) {
	return d.Blob(nodeid, tag, 0, 0xFFFFFFFF)
}

// Node resolves a name to its node id, returning 0 if no such name exists.
func (d *ID0) Node(name string) (uint64, error) {
	cur, err := d.bt.Find(RelEqual, d.keys.NameKey(name))
	if err != nil {
		return 0, err
	}
	if cur.Eof() {
		return 0, nil
	}
	v, err := cur.GetVal()
	if err != nil {
		return 0, err
	}
	return GetUint(v)
}

// EnumList invokes cb with the raw stored value of every record in
// [(nodeid,tag), (nodeid,tag+1)], the convention used for variable-length
// lists of a single tag (struct member lists, enum member ranges).
func (d *ID0) EnumList(nodeid uint64, tag byte, cb func(uint64) error) error {
	endKey := d.keys.NodeTagKey(nodeid, tag+1)
	cur, err := d.bt.Find(RelGreaterEqual, d.keys.NodeTagKey(nodeid, tag))
	if err != nil {
		return err
	}
	for !cur.Eof() {
		k, err := cur.GetKey()
		if err != nil {
			return err
		}
		if bytes.Compare(k, endKey) > 0 {
			break
		}
		v, err := cur.GetVal()
		if err != nil {
			return err
		}
		val, err := GetUint(v)
		if err != nil {
			return err
		}
		if err := cb(val); err != nil {
			return err
		}
		if err := cur.Next(); err != nil {
			return err
		}
	}
	return nil
}

// GetData finds the record at (nodeid,tag,index) and returns its raw value,
// or nil if absent.
func (d *ID0) GetData(nodeid uint64, tag byte, index int64) ([]byte, error) {
	cur, err := d.bt.Find(RelEqual, d.keys.NodeIndexKey(nodeid, tag, index))
	if err != nil {
		return nil, err
	}
	if cur.Eof() {
		return nil, nil
	}
	return cur.GetVal()
}

// GetStr is GetData with trailing zero bytes stripped.
func (d *ID0) GetStr(nodeid uint64, tag byte, index int64) (string, error) {
	v, err := d.GetData(nodeid, tag, index)
	if err != nil {
		return "", err
	}
	return GetStr(v), nil
}

// GetUint is GetData decoded as an unsigned integer, or 0 if absent.
func (d *ID0) GetUint(nodeid uint64, tag byte, index int64) (uint64, error) {
	v, err := d.GetData(nodeid, tag, index)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, nil
	}
	return GetUint(v)
}

// GetName resolves a node's display name, following the long-name
// indirection through the 'S' blob when the stored value begins with a
// zero byte.
func (d *ID0) GetName(node uint64) (string, error) {
	cur, err := d.bt.Find(RelEqual, d.keys.NodeTagKey(node, 'N'))
	if err != nil {
		return "", err
	}
	if cur.Eof() {
		return "", nil
	}
	val, err := cur.GetVal()
	if err != nil {
		return "", err
	}
	if len(val) == 0 {
		return "", nil
	}
	if val[0] == 0 {
		nameid, err := GetUintBE(val[1:])
		if err != nil {
			return "", err
		}
		blob, err := d.Blob(d.NodeBase(), 'S', int64(nameid)*256, int64(nameid)*256+32)
		if err != nil {
			return "", err
		}
		return GetStr(blob), nil
	}
	return GetStr(val), nil
}
