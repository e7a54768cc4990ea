package core

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildIDA1Header assembles a minimal IDA1-generation (32-bit) container
// with a file_version-2 header (versionSentinel present, checksum table
// using the 4-byte idsCheck form) and a single uncompressed section holding
// sectionData, at SectionID0.
func buildIDA1Header(sectionData []byte, checksumOverride *uint32) []byte {
	const headerSize = 4 + 2 + 24 + 2 + 4 + 20 + 4 + 4 // 64
	sectionOfs := uint32(headerSize)

	checksum := crc32.ChecksumIEEE(sectionData)
	if checksumOverride != nil {
		checksum = *checksumOverride
	}

	var buf []byte
	put32le := func(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); buf = append(buf, b[:]...) }
	put16le := func(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); buf = append(buf, b[:]...) }

	put32le(magicIDA1)
	put16le(0) // reserved

	put32le(sectionOfs) // values[0]: section 0 offset
	put32le(0)          // values[1]
	put32le(0)          // values[2]
	put32le(0)          // values[3]
	put32le(0)          // values[4]
	put32le(versionSentinel)

	put16le(2) // file_version
	put32le(0) // filler

	put32le(checksum) // checksums[0]
	put32le(0)        // checksums[1]
	put32le(0)        // checksums[2]
	put32le(0)        // checksums[3]
	put32le(0)        // checksums[4]

	put32le(0) // idsOfs
	put32le(0) // idsCheck (4-byte form, file_version != 1)

	if len(buf) != headerSize {
		panic("buildIDA1Header: header size drifted from layout constant")
	}

	// section 0 header + data
	buf = append(buf, 0) // compression: none
	put32le(uint32(len(sectionData)))
	buf = append(buf, sectionData...)

	return buf
}

func TestContainer_IDA1_SectionAndChecksum(t *testing.T) {
	data := []byte("IDBTEST!")
	raw := buildIDA1Header(data, nil)

	c, err := OpenContainer(NewBytesSource(raw))
	require.NoError(t, err)
	require.Equal(t, GenIDA1, c.Generation())
	require.Equal(t, 4, c.WordSize())
	require.Equal(t, 2, c.FileVersion())

	sec, err := c.Section(SectionID0)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), sec.Size())

	got := make([]byte, len(data))
	n, err := sec.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)

	ok, err := c.VerifyChecksum(SectionID0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestContainer_VerifyChecksum_Mismatch(t *testing.T) {
	data := []byte("IDBTEST!")
	bogus := crc32.ChecksumIEEE(data) ^ 1
	raw := buildIDA1Header(data, &bogus)

	c, err := OpenContainer(NewBytesSource(raw))
	require.NoError(t, err)

	ok, err := c.VerifyChecksum(SectionID0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestContainer_InvalidMagic(t *testing.T) {
	_, err := OpenContainer(NewBytesSource([]byte{0, 0, 0, 0, 0, 0}))
	require.Error(t, err)
}

func TestContainer_SectionOutOfBounds(t *testing.T) {
	raw := buildIDA1Header([]byte("x"), nil)
	c, err := OpenContainer(NewBytesSource(raw))
	require.NoError(t, err)
	_, err = c.Section(99)
	require.Error(t, err)
}
