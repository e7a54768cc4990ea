package idbutil

import (
	"encoding/binary"
	"testing"

	"github.com/nlitsme/idbutil/internal/core"
	"github.com/stretchr/testify/require"
)

// buildSingleNameID0 assembles a minimal v2.0 ID0 B-tree with one name
// record, "N"+name -> little-endian nodeid, for exercising key resolution
// without needing a real database file.
func buildSingleNameID0(t *testing.T, name string, nodeid byte) *core.ID0 {
	t.Helper()
	put32 := func(dst *[]byte, v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		*dst = append(*dst, b[:]...)
	}
	put16 := func(dst *[]byte, v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		*dst = append(*dst, b[:]...)
	}

	const pageSize = 64
	var super []byte
	put32(&super, 0)
	put16(&super, pageSize)
	put32(&super, 1) // root page
	put32(&super, 1) // reccount
	put32(&super, 2) // page count
	super = append(super, 0)
	super = append(super, []byte("B-tree v2")...)
	for len(super) < pageSize {
		super = append(super, 0)
	}

	suffix := "N" + name
	var leaf []byte
	put32(&leaf, 0) // preceding: leaf
	put16(&leaf, 1) // count
	put16(&leaf, 0) // indent
	put16(&leaf, 0) // unused
	put16(&leaf, uint16(6+6)) // ofs: header(6)+entry(6)
	put16(&leaf, uint16(len(suffix)))
	leaf = append(leaf, suffix...)
	put16(&leaf, 1)
	leaf = append(leaf, nodeid)

	data := append(append([]byte{}, super...), leaf...)
	section := core.NewSectionStream(core.NewBytesSource(data), 0, int64(len(data)))
	id0, err := core.OpenID0(section, 4)
	require.NoError(t, err)
	return id0
}

func TestParseRelation(t *testing.T) {
	tests := []struct {
		expr     string
		wantRel  core.Relation
		wantRest string
	}{
		{"=foo", core.RelEqual, "foo"},
		{"foo", core.RelEqual, "foo"},
		{">foo", core.RelGreater, "foo"},
		{">=foo", core.RelGreaterEqual, "foo"},
		{"<foo", core.RelLess, "foo"},
		{"<=foo", core.RelLessEqual, "foo"},
	}
	for _, tc := range tests {
		rel, rest := ParseRelation(tc.expr)
		require.Equal(t, tc.wantRel, rel, tc.expr)
		require.Equal(t, tc.wantRest, rest, tc.expr)
	}
}

func TestResolveKey_NameRef(t *testing.T) {
	id0 := buildSingleNameID0(t, "foo", 7)

	key, err := ResolveKey(id0, "?foo")
	require.NoError(t, err)
	require.Equal(t, id0.Keys().NameKey("foo"), key)
}

func TestResolveKey_LiteralNodeID(t *testing.T) {
	id0 := buildSingleNameID0(t, "foo", 7)

	key, err := ResolveKey(id0, ".42")
	require.NoError(t, err)
	require.Equal(t, id0.Keys().NodeKey(42), key)

	key, err = ResolveKey(id0, ".42;S")
	require.NoError(t, err)
	require.Equal(t, id0.Keys().NodeTagKey(42, 'S'), key)

	key, err = ResolveKey(id0, ".42;S;3")
	require.NoError(t, err)
	require.Equal(t, id0.Keys().NodeIndexKey(42, 'S', 3), key)
}

func TestResolveKey_NodeBaseOffset(t *testing.T) {
	id0 := buildSingleNameID0(t, "foo", 7)

	key, err := ResolveKey(id0, "#3;A;-1")
	require.NoError(t, err)
	require.Equal(t, id0.Keys().NodeIndexKey(id0.NodeBase()+3, 'A', -1), key)
}

func TestResolveKey_ByName(t *testing.T) {
	id0 := buildSingleNameID0(t, "foo", 7)

	key, err := ResolveKey(id0, "foo;S;0")
	require.NoError(t, err)
	require.Equal(t, id0.Keys().NodeIndexKey(7, 'S', 0), key)
}

func TestResolveKey_HashTag(t *testing.T) {
	id0 := buildSingleNameID0(t, "foo", 7)

	key, err := ResolveKey(id0, ".42;H;somehash")
	require.NoError(t, err)
	require.Equal(t, id0.Keys().NodeHashKey(42, 'H', []byte("somehash")), key)
}

func TestResolveKey_Errors(t *testing.T) {
	id0 := buildSingleNameID0(t, "foo", 7)

	_, err := ResolveKey(id0, ".42;SS;0")
	require.Error(t, err)

	_, err = ResolveKey(id0, ".42;S;notanumber")
	require.Error(t, err)

	_, err = ResolveKey(id0, ".notanumber")
	require.Error(t, err)
}
