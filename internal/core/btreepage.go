package core

import (
	"bytes"
	"sort"

	"github.com/nlitsme/idbutil/internal/utils"
)

// Relation is the outcome of a page-local or tree-wide key search.
type Relation int

// Relations used by Page.Find and BTree.Find, matching the five comparison
// operators plus the internal "descend further" signal.
const (
	RelLess Relation = iota
	RelLessEqual
	RelEqual
	RelGreaterEqual
	RelGreater
	RelRecurse
)

// FindResult is the outcome of a single-page lookup.
type FindResult struct {
	Act   Relation
	Index int
}

// pageEntry is one slot of a page's entry table.
type pageEntry struct {
	pageNr uint32
	indent int
	recOfs int
}

// pageLayout distinguishes the three historical on-disk page shapes. Their
// header and entry fields differ in width and in the +1 record-offset bias;
// the page-level algorithms (key reconstruction, find) are identical.
type pageLayout int

const (
	layout15 pageLayout = iota
	layout16
	layout20
)

// Page decodes one B-tree page: its preceding-page pointer, entry count,
// and (for leaf pages) front-compressed keys.
type Page struct {
	layout    pageLayout
	nr        uint32
	src       *SectionStream
	preceding uint32
	count     int
	entries   []pageEntry
	keys      [][]byte // populated for leaf pages only
}

// newPage decodes a page of the given layout and number from src, including
// its entry table and (if a leaf) its reconstructed keys.
func newPage(layout pageLayout, src *SectionStream, nr uint32) (*Page, error) {
	r := NewByteReader(src, 0)

	p := &Page{layout: layout, nr: nr, src: src}

	switch layout {
	case layout15:
		v, err := r.ReadU16LE()
		if err != nil {
			return nil, utils.WrapError("reading page header", err)
		}
		p.preceding = uint32(v)
		n, err := r.ReadU16LE()
		if err != nil {
			return nil, utils.WrapError("reading page header", err)
		}
		p.count = int(n)
	case layout16, layout20:
		v, err := r.ReadU32LE()
		if err != nil {
			return nil, utils.WrapError("reading page header", err)
		}
		p.preceding = v
		n, err := r.ReadU16LE()
		if err != nil {
			return nil, utils.WrapError("reading page header", err)
		}
		p.count = int(n)
	}

	p.entries = make([]pageEntry, p.count)
	for i := 0; i < p.count; i++ {
		ent, err := p.readEntry(r)
		if err != nil {
			return nil, utils.WrapError("reading page entry", err)
		}
		p.entries[i] = ent
	}

	if p.IsLeaf() {
		if err := p.readKeys(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Page) readEntry(r *ByteReader) (pageEntry, error) {
	switch p.layout {
	case layout15:
		if p.IsIndex() {
			pagenr, err := r.ReadU16LE()
			if err != nil {
				return pageEntry{}, err
			}
			ofs, err := r.ReadU16LE()
			if err != nil {
				return pageEntry{}, err
			}
			return pageEntry{pageNr: uint32(pagenr), recOfs: int(ofs) + 1}, nil
		}
		indent, err := r.ReadU8()
		if err != nil {
			return pageEntry{}, err
		}
		if _, err := r.ReadU8(); err != nil { // unused
			return pageEntry{}, err
		}
		ofs, err := r.ReadU16LE()
		if err != nil {
			return pageEntry{}, err
		}
		return pageEntry{indent: int(indent), recOfs: int(ofs) + 1}, nil

	case layout16:
		if p.IsIndex() {
			pagenr, err := r.ReadU32LE()
			if err != nil {
				return pageEntry{}, err
			}
			ofs, err := r.ReadU16LE()
			if err != nil {
				return pageEntry{}, err
			}
			return pageEntry{pageNr: pagenr, recOfs: int(ofs) + 1}, nil
		}
		indent, err := r.ReadU8()
		if err != nil {
			return pageEntry{}, err
		}
		if _, err := r.ReadU8(); err != nil { // unused
			return pageEntry{}, err
		}
		if _, err := r.ReadU16LE(); err != nil { // unused
			return pageEntry{}, err
		}
		ofs, err := r.ReadU16LE()
		if err != nil {
			return pageEntry{}, err
		}
		return pageEntry{indent: int(indent), recOfs: int(ofs) + 1}, nil

	default: // layout20
		if p.IsIndex() {
			pagenr, err := r.ReadU32LE()
			if err != nil {
				return pageEntry{}, err
			}
			ofs, err := r.ReadU16LE()
			if err != nil {
				return pageEntry{}, err
			}
			return pageEntry{pageNr: pagenr, recOfs: int(ofs)}, nil
		}
		indent, err := r.ReadU16LE()
		if err != nil {
			return pageEntry{}, err
		}
		if _, err := r.ReadU16LE(); err != nil { // unused
			return pageEntry{}, err
		}
		ofs, err := r.ReadU16LE()
		if err != nil {
			return pageEntry{}, err
		}
		return pageEntry{indent: int(indent), recOfs: int(ofs)}, nil
	}
}

// readKeys reconstructs every leaf key by prefixing each entry's stored
// suffix with the first `indent` bytes of the previously reconstructed key.
func (p *Page) readKeys() error {
	var prev []byte
	p.keys = make([][]byte, len(p.entries))
	for i, ent := range p.entries {
		r := NewByteReader(p.src, 0)
		if _, err := r.Seek(int64(ent.recOfs), SeekStart); err != nil {
			return utils.WrapError("seeking leaf key", err)
		}
		klen, err := r.ReadU16LE()
		if err != nil {
			return utils.WrapError("reading leaf key length", err)
		}
		suffix, err := r.ReadBytes(int(klen))
		if err != nil {
			return utils.WrapError("reading leaf key", err)
		}
		key := make([]byte, 0, ent.indent+len(suffix))
		if ent.indent > 0 {
			if ent.indent > len(prev) {
				return utils.WrapError("reconstructing leaf key", ErrCorruptTree)
			}
			key = append(key, prev[:ent.indent]...)
		}
		key = append(key, suffix...)
		p.keys[i] = key
		prev = key
	}
	return nil
}

// Nr is the page number.
func (p *Page) Nr() uint32 { return p.nr }

// IsIndex reports whether this is an internal (non-leaf) page.
func (p *Page) IsIndex() bool { return p.preceding != 0 }

// IsLeaf reports whether this is a leaf page.
func (p *Page) IsLeaf() bool { return p.preceding == 0 }

// IndexSize is the number of entries on this page.
func (p *Page) IndexSize() int { return len(p.entries) }

// GetPage returns the subpage number for entry i, or the preceding pointer
// if i < 0. Fails if called on a leaf page.
func (p *Page) GetPage(i int) (uint32, error) {
	if !p.IsIndex() {
		return 0, utils.WrapError("getting subpage", ErrOutOfBounds)
	}
	if i < 0 {
		return p.preceding, nil
	}
	if i >= len(p.entries) {
		return 0, utils.WrapError("getting subpage", ErrOutOfBounds)
	}
	return p.entries[i].pageNr, nil
}

// GetKey returns the reconstructed key at entry i.
func (p *Page) GetKey(i int) ([]byte, error) {
	if i < 0 || i >= len(p.entries) {
		return nil, utils.WrapError("getting key", ErrOutOfBounds)
	}
	if p.IsLeaf() {
		return p.keys[i], nil
	}
	ent := p.entries[i]
	r := NewByteReader(p.src, 0)
	if _, err := r.Seek(int64(ent.recOfs), SeekStart); err != nil {
		return nil, utils.WrapError("getting key", err)
	}
	klen, err := r.ReadU16LE()
	if err != nil {
		return nil, utils.WrapError("getting key", err)
	}
	return r.ReadBytes(int(klen))
}

// GetVal returns the value bytes stored at entry i.
func (p *Page) GetVal(i int) ([]byte, error) {
	if i < 0 || i >= len(p.entries) {
		return nil, utils.WrapError("getting value", ErrOutOfBounds)
	}
	ent := p.entries[i]
	r := NewByteReader(p.src, 0)
	if _, err := r.Seek(int64(ent.recOfs), SeekStart); err != nil {
		return nil, utils.WrapError("getting value", err)
	}
	klen, err := r.ReadU16LE()
	if err != nil {
		return nil, utils.WrapError("getting value", err)
	}
	if _, err := r.Seek(int64(klen), SeekCurrent); err != nil {
		return nil, utils.WrapError("getting value", err)
	}
	vlen, err := r.ReadU16LE()
	if err != nil {
		return nil, utils.WrapError("getting value", err)
	}
	return r.ReadBytes(int(vlen))
}

// Find searches this page only (no descent) for key, returning the
// relation of the match to the largest stored key <= target and its index.
func (p *Page) Find(key []byte) (FindResult, error) {
	var searchErr error
	i := sort.Search(len(p.entries), func(ix int) bool {
		k, err := p.GetKey(ix)
		if err != nil {
			searchErr = err
			return true
		}
		return bytes.Compare(key, k) < 0
	})
	if searchErr != nil {
		return FindResult{}, searchErr
	}

	if i == 0 {
		if p.IsIndex() {
			return FindResult{Act: RelRecurse, Index: -1}, nil
		}
		return FindResult{Act: RelGreater, Index: 0}, nil
	}

	ix := i - 1
	k, err := p.GetKey(ix)
	if err != nil {
		return FindResult{}, err
	}
	if bytes.Equal(k, key) {
		return FindResult{Act: RelEqual, Index: ix}, nil
	}
	if p.IsIndex() {
		return FindResult{Act: RelRecurse, Index: ix}, nil
	}
	return FindResult{Act: RelLess, Index: ix}, nil
}
