package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeKeys_Builders(t *testing.T) {
	k := NewNodeKeys(4)

	require.Equal(t, []byte{'.', 0x00, 0x00, 0x00, 0x2a}, k.NodeKey(0x2a))
	require.Equal(t, []byte{'.', 0x00, 0x00, 0x00, 0x2a, 'S'}, k.NodeTagKey(0x2a, 'S'))
	require.Equal(t, []byte{'.', 0x00, 0x00, 0x00, 0x2a, 'A', 0xff, 0xff, 0xff, 0xff}, k.NodeIndexKey(0x2a, 'A', -1))
	require.Equal(t, []byte{'.', 0x00, 0x00, 0x00, 0x2a, 'S', 0x01, 0x02}, k.NodeHashKey(0x2a, 'S', []byte{0x01, 0x02}))
	require.Equal(t, []byte{'N', 0x00, 0x00, 0x00, 0x2a}, k.NameIDKey(0x2a))
	require.Equal(t, []byte("Nhello"), k.NameKey("hello"))
}

func TestNodeKeys_Wordsize8(t *testing.T) {
	k := NewNodeKeys(8)
	require.Equal(t, []byte{'.', 0, 0, 0, 0, 0, 0, 0, 0x2a}, k.NodeKey(0x2a))
}

// Verbatim fixture transcribed from the reference tool's own scalar-decode
// test case.
func TestGetUint_NodeValues(t *testing.T) {
	v, err := GetUint([]byte("\x12\x34\x45\x56\x67\x78\x89\x9a"))
	require.NoError(t, err)
	require.Equal(t, uint64(0x9a89786756453412), v)

	v, err = GetUint([]byte("\x12\x34\x45\x56"))
	require.NoError(t, err)
	require.Equal(t, uint64(0x56453412), v)

	v, err = GetUint([]byte("\x12\x34"))
	require.NoError(t, err)
	require.Equal(t, uint64(0x3412), v)

	v, err = GetUint([]byte("\x12"))
	require.NoError(t, err)
	require.Equal(t, uint64(0x12), v)
}

func TestGetUint_UnsupportedWidth(t *testing.T) {
	_, err := GetUint([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestGetStr_TrimsTrailingZeros(t *testing.T) {
	require.Equal(t, "hello", GetStr([]byte("hello\x00\x00")))
	require.Equal(t, "", GetStr([]byte{0, 0, 0}))
	require.Equal(t, "hello", GetStr([]byte("hello")))
}

func TestGetUintBE(t *testing.T) {
	v, err := GetUintBE([]byte{0x00, 0x00, 0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102), v)
}
