package core

import (
	"hash/crc32"

	"github.com/nlitsme/idbutil/internal/utils"
)

// Generation identifies one of the three historical container formats.
type Generation int

// Container generations, named after their 4-byte magic.
const (
	GenIDA0 Generation = iota
	GenIDA1
	GenIDA2
)

const (
	magicIDA0 = 0x30414449
	magicIDA1 = 0x31414449
	magicIDA2 = 0x32414449

	// versionSentinel marks the presence of a file_version field; its
	// meaning is undocumented upstream and is preserved verbatim rather
	// than generalised.
	versionSentinel = 0xAABBCCDD
)

// Container parses a database header and hands out section streams.
type Container struct {
	src         Source
	generation  Generation
	fileVersion int
	offsets     []uint64
	checksums   []uint32
}

// WordSize reports 8 for IDA2 (.i64) databases, 4 otherwise.
func (c *Container) WordSize() int {
	if c.generation == GenIDA2 {
		return 8
	}
	return 4
}

// OpenContainer parses the header of src and returns a ready Container.
func OpenContainer(src Source) (*Container, error) {
	r := NewByteReader(src, 0)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, utils.WrapError("reading container magic", err)
	}

	c := &Container{src: src}
	switch magic {
	case magicIDA0:
		c.generation = GenIDA0
	case magicIDA1:
		c.generation = GenIDA1
	case magicIDA2:
		c.generation = GenIDA2
	default:
		return nil, utils.WrapError("reading container magic", ErrInvalidMagic)
	}

	if _, err := r.ReadU16LE(); err != nil { // reserved, always zero
		return nil, utils.WrapError("reading container header", err)
	}

	values := make([]uint32, 6)
	for i := range values {
		v, err := r.ReadU32LE()
		if err != nil {
			return nil, utils.WrapError("reading container header", err)
		}
		values[i] = v
	}

	if values[5] != versionSentinel {
		c.fileVersion = 0
		c.offsets = make([]uint64, 6)
		for i := 0; i < 5; i++ {
			c.offsets[i] = uint64(values[i])
		}
		c.offsets[5] = 0
		return c, nil
	}

	fv, err := r.ReadU16LE()
	if err != nil {
		return nil, utils.WrapError("reading container header", err)
	}
	c.fileVersion = int(fv)

	if c.fileVersion < 5 {
		if _, err := r.ReadU32LE(); err != nil { // filler, unused
			return nil, utils.WrapError("reading container header", err)
		}
		c.offsets = make([]uint64, 5)
		for i := 0; i < 5; i++ {
			c.offsets[i] = uint64(values[i])
		}
		c.checksums = make([]uint32, 5)
		for i := range c.checksums {
			v, err := r.ReadU32LE()
			if err != nil {
				return nil, utils.WrapError("reading container checksums", err)
			}
			c.checksums[i] = v
		}
		idsOfs, err := r.ReadU32LE()
		if err != nil {
			return nil, utils.WrapError("reading container header", err)
		}
		var idsCheck uint32
		if c.fileVersion == 1 {
			v, err := r.ReadU16LE()
			if err != nil {
				return nil, utils.WrapError("reading container header", err)
			}
			idsCheck = uint32(v)
		} else {
			v, err := r.ReadU32LE()
			if err != nil {
				return nil, utils.WrapError("reading container header", err)
			}
			idsCheck = v
		}
		c.offsets = append(c.offsets, uint64(idsOfs))
		c.checksums = append(c.checksums, idsCheck)
		return c, nil
	}

	// fileVersion >= 5: 64-bit offsets.
	c.offsets = make([]uint64, 0, 6)
	c.offsets = append(c.offsets, (uint64(values[1])<<32)|uint64(values[0]))
	c.offsets = append(c.offsets, (uint64(values[3])<<32)|uint64(values[2]))
	for i := 0; i < 3; i++ {
		v, err := r.ReadU64LE()
		if err != nil {
			return nil, utils.WrapError("reading container header", err)
		}
		c.offsets = append(c.offsets, v)
	}
	c.checksums = make([]uint32, 5)
	for i := range c.checksums {
		v, err := r.ReadU32LE()
		if err != nil {
			return nil, utils.WrapError("reading container checksums", err)
		}
		c.checksums[i] = v
	}
	lastOfs, err := r.ReadU64LE()
	if err != nil {
		return nil, utils.WrapError("reading container header", err)
	}
	lastCheck, err := r.ReadU32LE()
	if err != nil {
		return nil, utils.WrapError("reading container header", err)
	}
	c.offsets = append(c.offsets, lastOfs)
	c.checksums = append(c.checksums, lastCheck)

	return c, nil
}

type sectionInfo struct {
	compression uint8
	offset      uint64
	length      uint64
}

func (c *Container) getSectionInfo(i int) (sectionInfo, error) {
	if i < 0 || i >= len(c.offsets) {
		return sectionInfo{}, utils.WrapError("locating section", ErrOutOfBounds)
	}
	if c.offsets[i] == 0 {
		return sectionInfo{}, utils.WrapError("locating section", ErrSectionMissing)
	}
	r := NewByteReader(c.src, 0)
	if _, err := r.Seek(int64(c.offsets[i]), SeekStart); err != nil {
		return sectionInfo{}, utils.WrapError("locating section", err)
	}

	comp, err := r.ReadU8()
	if err != nil {
		return sectionInfo{}, utils.WrapError("reading section header", err)
	}

	var length uint64
	var headerSize int64
	if c.fileVersion < 5 {
		v, err := r.ReadU32LE()
		if err != nil {
			return sectionInfo{}, utils.WrapError("reading section header", err)
		}
		length = uint64(v)
		headerSize = 5
	} else {
		v, err := r.ReadU64LE()
		if err != nil {
			return sectionInfo{}, utils.WrapError("reading section header", err)
		}
		length = v
		headerSize = 9
	}

	return sectionInfo{
		compression: comp,
		offset:      c.offsets[i] + uint64(headerSize),
		length:      length,
	}, nil
}

// Section index constants, matching the positional layout idbtool assigns
// to each database's section table.
const (
	SectionID0 = 0 // B-tree: names, structs, enums, scripts, comments.
	SectionID1 = 1 // Flag map.
	SectionNAM = 2 // Name index.
)

// Section returns a bounded stream over section i. It fails with
// ErrUnsupported if the section's compression code is nonzero: this
// implementation does not decompress sections.
func (c *Container) Section(i int) (*SectionStream, error) {
	info, err := c.getSectionInfo(i)
	if err != nil {
		return nil, err
	}
	if info.compression != 0 {
		return nil, utils.WrapError("opening section", ErrUnsupported)
	}
	if info.length > 0 {
		if err := utils.ValidateBufferSize(info.length, utils.MaxSectionSize, "section payload"); err != nil {
			return nil, utils.WrapError("opening section", err)
		}
	}
	return NewSectionStream(c.src, int64(info.offset), int64(info.length)), nil
}

// Checksum returns the header's recorded CRC-32 for section i, and whether
// the header carried a checksum table at all (the file_version==0 header
// variant has none).
func (c *Container) Checksum(i int) (uint32, bool) {
	if i < 0 || i >= len(c.checksums) {
		return 0, false
	}
	return c.checksums[i], true
}

// VerifyChecksum recomputes the CRC-32 of section i's raw bytes and
// compares it against the value recorded in the section table. It reports
// true when the header has no checksum entry for this section (nothing to
// contradict) or when the recorded value is the zero placeholder some
// generations leave unset.
func (c *Container) VerifyChecksum(i int) (bool, error) {
	want, ok := c.Checksum(i)
	if !ok || want == 0 {
		return true, nil
	}
	sec, err := c.Section(i)
	if err != nil {
		return false, err
	}
	if sec.Size() == 0 {
		return want == crc32.ChecksumIEEE(nil), nil
	}
	buf := make([]byte, sec.Size())
	if _, err := sec.ReadAt(buf, 0); err != nil {
		return false, utils.WrapError("verifying checksum", err)
	}
	return crc32.ChecksumIEEE(buf) == want, nil
}

// Generation reports the detected container generation.
func (c *Container) Generation() Generation { return c.generation }

// FileVersion reports the header's file_version field (0 if absent).
func (c *Container) FileVersion() int { return c.fileVersion }
