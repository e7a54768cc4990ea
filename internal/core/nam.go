package core

import (
	"sort"

	"github.com/nlitsme/idbutil/internal/utils"
)

// NAM is the sorted index of named addresses, lazily loaded on first
// lookup.
type NAM struct {
	section  *SectionStream
	wordsize int
	nnames   uint64
	listOfs  uint64

	loaded    bool
	addresses []uint64
}

const (
	namMagicOldMask  = 0xFFF0FFFF
	namMagicOldMatch = 0x00305641
	namMagicNew      = 0x002A4156
)

// OpenNAM parses the NAM section's header.
func OpenNAM(section *SectionStream, wordsize int) (*NAM, error) {
	r := NewByteReader(section, wordsize)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, utils.WrapError("reading nam magic", err)
	}

	n := &NAM{section: section, wordsize: wordsize}

	switch {
	case magic&namMagicOldMask == namMagicOldMatch:
		if _, err := r.ReadU16LE(); err != nil { // n_pages, unused
			return nil, utils.WrapError("reading nam header", err)
		}
		if _, err := r.ReadU16LE(); err != nil { // eof, unused
			return nil, utils.WrapError("reading nam header", err)
		}
		if _, err := r.ReadWord(); err != nil { // unknown, not fatal if nonzero
			return nil, utils.WrapError("reading nam header", err)
		}
		nnames, err := r.ReadWord()
		if err != nil {
			return nil, utils.WrapError("reading nam header", err)
		}
		listOfs, err := r.ReadWord()
		if err != nil {
			return nil, utils.WrapError("reading nam header", err)
		}
		n.nnames = nnames
		n.listOfs = listOfs

	case magic == namMagicNew:
		if _, err := r.ReadU32LE(); err != nil { // unk1 == 3, unused
			return nil, utils.WrapError("reading nam header", err)
		}
		if _, err := r.ReadU32LE(); err != nil { // n_pages, unused
			return nil, utils.WrapError("reading nam header", err)
		}
		if _, err := r.ReadU32LE(); err != nil { // unk2 == 0x800, unused
			return nil, utils.WrapError("reading nam header", err)
		}
		if _, err := r.ReadU32LE(); err != nil { // eof, unused
			return nil, utils.WrapError("reading nam header", err)
		}
		if _, err := r.ReadWord(); err != nil { // unknown, unused
			return nil, utils.WrapError("reading nam header", err)
		}
		nnames, err := r.ReadWord()
		if err != nil {
			return nil, utils.WrapError("reading nam header", err)
		}
		n.nnames = nnames
		n.listOfs = 0x2000

	default:
		return nil, utils.WrapError("reading nam magic", ErrInvalidMagic)
	}

	if wordsize == 8 {
		n.nnames /= 2
	}

	return n, nil
}

// Count reports the logical number of named addresses.
func (n *NAM) Count() uint64 { return n.nnames }

func (n *NAM) ensureLoaded() error {
	if n.loaded {
		return nil
	}
	if n.nnames > 0 {
		if err := utils.ValidateBufferSize(n.nnames, utils.MaxNameCount, "name index"); err != nil {
			return utils.WrapError("reading nam list", err)
		}
	}
	r := NewByteReader(n.section, n.wordsize)
	if _, err := r.Seek(int64(n.listOfs), SeekStart); err != nil {
		return utils.WrapError("reading nam list", err)
	}
	addrs := make([]uint64, n.nnames)
	for i := range addrs {
		v, err := r.ReadWord()
		if err != nil {
			return utils.WrapError("reading nam list", err)
		}
		addrs[i] = v
	}
	n.addresses = addrs
	n.loaded = true
	return nil
}

// Addresses returns every named address in ascending order.
func (n *NAM) Addresses() ([]uint64, error) {
	if err := n.ensureLoaded(); err != nil {
		return nil, err
	}
	return n.addresses, nil
}

// FindName returns the largest stored address <= ea, or the first stored
// address if ea is below every stored address.
func (n *NAM) FindName(ea uint64) (uint64, error) {
	if err := n.ensureLoaded(); err != nil {
		return 0, err
	}
	if len(n.addresses) == 0 {
		return 0, utils.WrapError("finding name", ErrSectionMissing)
	}
	i := sort.Search(len(n.addresses), func(i int) bool { return n.addresses[i] > ea })
	if i == 0 {
		return n.addresses[0], nil
	}
	return n.addresses[i-1], nil
}
