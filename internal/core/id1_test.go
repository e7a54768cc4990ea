package core

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildID1New(segments [][2]uint64, flagsBySeg [][]uint32) []byte {
	buf := make([]byte, 0x2010)
	binary.LittleEndian.PutUint32(buf[0:], id1MagicNew)
	binary.LittleEndian.PutUint32(buf[4:], 3)                     // unk1
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(segments)))  // nsegments
	binary.LittleEndian.PutUint32(buf[12:], 0x800)                 // unk2
	binary.LittleEndian.PutUint32(buf[16:], 0)                     // n_pages

	ofs := 20
	flagOfs := uint64(0x2000)
	for i, seg := range segments {
		binary.LittleEndian.PutUint32(buf[ofs:], uint32(seg[0]))
		binary.LittleEndian.PutUint32(buf[ofs+4:], uint32(seg[1]))
		ofs += 8

		for j, f := range flagsBySeg[i] {
			binary.LittleEndian.PutUint32(buf[int(flagOfs)+4*j:], f)
		}
		flagOfs += 4 * (seg[1] - seg[0])
	}
	return buf
}

func TestID1_NewMagic_Segments(t *testing.T) {
	segs := [][2]uint64{{0x1000, 0x1004}}
	flags := [][]uint32{{0xAAAAAAAA, 0xBBBBBBBB, 0xCCCCCCCC, 0xDDDDDDDD}}
	data := buildID1New(segs, flags)

	sec := NewSectionStream(NewBytesSource(data), 0, int64(len(data)))
	id1, err := OpenID1(sec, 4)
	require.NoError(t, err)

	require.Equal(t, uint64(0x1000), id1.FirstSeg())
	require.Equal(t, uint64(0x1000), id1.SegStart(0x1002))
	require.Equal(t, uint64(0x1004), id1.SegEnd(0x1002))
	require.Equal(t, uint64(BadAddr), id1.SegStart(0x2000))
	require.Equal(t, uint64(BadAddr), id1.NextSeg(0x1002))

	f, err := id1.GetFlags(0x1000)
	require.NoError(t, err)
	require.Equal(t, uint32(0xAAAAAAAA), f)

	f, err = id1.GetFlags(0x1003)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDDDDDDDD), f)

	f, err = id1.GetFlags(0x9999)
	require.NoError(t, err)
	require.Equal(t, uint32(0), f)
}

func TestID1_InvalidMagic(t *testing.T) {
	data := make([]byte, 32)
	sec := NewSectionStream(NewBytesSource(data), 0, int64(len(data)))
	_, err := OpenID1(sec, 4)
	require.Error(t, err)
}
