package core

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildIDZeroTree(pageSize int64, keys []string, vals [][]byte) []byte {
	put32le := func(dst *[]byte, v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		*dst = append(*dst, b[:]...)
	}
	put16le := func(dst *[]byte, v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		*dst = append(*dst, b[:]...)
	}

	var super []byte
	put32le(&super, 0)
	put16le(&super, uint16(pageSize))
	put32le(&super, 1) // root page
	put32le(&super, uint32(len(keys)))
	put32le(&super, 2)
	super = append(super, 0)
	super = append(super, []byte("B-tree v2")...)
	for int64(len(super)) < pageSize {
		super = append(super, 0)
	}

	leaf := buildLeafPage(keys, vals)
	out := append([]byte{}, super...)
	out = append(out, leaf...)
	return out
}

func TestID0_NodeAndScalarLookups(t *testing.T) {
	k := NewNodeKeys(4)
	const nodeid = 5

	type rec struct {
		key []byte
		val []byte
	}
	recs := []rec{
		{k.NodeIndexKey(nodeid, 'A', -1), []byte{0x2a, 0, 0, 0}},
		{k.NodeIndexKey(nodeid, 'M', 0), []byte{0x11}},
		{k.NodeIndexKey(nodeid, 'M', 1), []byte{0x22}},
		{k.NodeIndexKey(nodeid, 'M', 2), []byte{0x33}},
		{k.NodeIndexKey(nodeid, 'S', 0), []byte("hello\x00\x00")},
		{k.NameKey("Root Node"), []byte{nodeid}},
	}

	keys := make([]string, len(recs))
	vals := make([][]byte, len(recs))
	for i, r := range recs {
		keys[i] = string(r.key)
		vals[i] = r.val
	}

	data := buildIDZeroTree(128, keys, vals)
	section := NewSectionStream(NewBytesSource(data), 0, int64(len(data)))

	id0, err := OpenID0(section, 4)
	require.NoError(t, err)
	require.Equal(t, 4, id0.WordSize())
	require.Equal(t, uint64(0xFF000000), id0.NodeBase())

	id, err := id0.Node("Root Node")
	require.NoError(t, err)
	require.Equal(t, uint64(nodeid), id)

	missing, err := id0.Node("nope")
	require.NoError(t, err)
	require.Equal(t, uint64(0), missing)

	s, err := id0.GetStr(nodeid, 'S', 0)
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	u, err := id0.GetUint(nodeid, 'A', -1)
	require.NoError(t, err)
	require.Equal(t, uint64(0x2a), u)

	absent, err := id0.GetData(nodeid, 'S', 99)
	require.NoError(t, err)
	require.Nil(t, absent)

	var members []uint64
	err = id0.EnumList(nodeid, 'M', func(v uint64) error {
		members = append(members, v)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{0x11, 0x22, 0x33}, members)
}
