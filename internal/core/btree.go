package core

import (
	"github.com/nlitsme/idbutil/internal/utils"
)

var (
	banner15 = []byte("B-tree v 1.5 (C) Pol 1990")
	banner16 = []byte("B-tree v 1.6 (C) Pol 1990")
	banner20 = []byte("B-tree v2")
)

func detectLayout(header []byte) (pageLayout, error) {
	if len(header) >= 13+len(banner15) && string(header[13:13+len(banner15)]) == string(banner15) {
		return layout15, nil
	}
	if len(header) >= 19+len(banner16) && string(header[19:19+len(banner16)]) == string(banner16) {
		return layout16, nil
	}
	if len(header) >= 19+len(banner20) && string(header[19:19+len(banner20)]) == string(banner20) {
		return layout20, nil
	}
	return 0, utils.WrapError("detecting btree version", ErrUnknownVersion)
}

// BTree is the root-to-leaf engine shared by all three historical page
// layouts. It hands out Cursors rather than exposing pages directly.
type BTree struct {
	src      Source
	layout   pageLayout
	pageSize int64
	rootPage uint32
	reccount uint32
	pageCnt  uint32
}

// OpenBTree detects the page layout from the banner embedded in page 0 and
// parses the tree-wide header (page size, root page, record count).
func OpenBTree(src Source) (*BTree, error) {
	header := make([]byte, 64)
	n, _ := src.ReadAt(header, 0)
	if n < 44 {
		return nil, utils.WrapError("reading btree header", ErrTruncated)
	}
	header = header[:n]

	layout, err := detectLayout(header)
	if err != nil {
		return nil, err
	}

	r := NewByteReader(src, 0)
	bt := &BTree{src: src, layout: layout}

	switch layout {
	case layout15:
		if _, err := r.ReadU16LE(); err != nil { // firstfree, unused
			return nil, utils.WrapError("reading btree header", err)
		}
		ps, err := r.ReadU16LE()
		if err != nil {
			return nil, utils.WrapError("reading btree header", err)
		}
		fi, err := r.ReadU16LE()
		if err != nil {
			return nil, utils.WrapError("reading btree header", err)
		}
		rc, err := r.ReadU32LE()
		if err != nil {
			return nil, utils.WrapError("reading btree header", err)
		}
		pc, err := r.ReadU16LE()
		if err != nil {
			return nil, utils.WrapError("reading btree header", err)
		}
		bt.pageSize = int64(ps)
		bt.rootPage = uint32(fi)
		bt.reccount = rc
		bt.pageCnt = uint32(pc)

	case layout16, layout20:
		if _, err := r.ReadU32LE(); err != nil { // firstfree, unused
			return nil, utils.WrapError("reading btree header", err)
		}
		ps, err := r.ReadU16LE()
		if err != nil {
			return nil, utils.WrapError("reading btree header", err)
		}
		fi, err := r.ReadU32LE()
		if err != nil {
			return nil, utils.WrapError("reading btree header", err)
		}
		rc, err := r.ReadU32LE()
		if err != nil {
			return nil, utils.WrapError("reading btree header", err)
		}
		pc, err := r.ReadU32LE()
		if err != nil {
			return nil, utils.WrapError("reading btree header", err)
		}
		bt.pageSize = int64(ps)
		bt.rootPage = fi
		bt.reccount = rc
		bt.pageCnt = pc
	}

	return bt, nil
}

// RecordCount reports the tree-wide record count from the header.
func (bt *BTree) RecordCount() uint32 { return bt.reccount }

func (bt *BTree) getPage(nr uint32) (*Page, error) {
	section := NewSectionStream(bt.src, int64(nr)*bt.pageSize, bt.pageSize)
	return newPage(bt.layout, section, nr)
}

type cursorFrame struct {
	page  *Page
	index int
}

// Cursor designates a single record (or end-of-tree) reached by descent or
// by iteration from another cursor.
type Cursor struct {
	bt    *BTree
	stack []cursorFrame
}

// NewCursor returns an empty cursor over bt.
func NewCursor(bt *BTree) *Cursor { return &Cursor{bt: bt} }

// Add pushes a (page, index) frame, as used to rebuild a cursor after a
// manual descent.
func (c *Cursor) Add(page *Page, index int) {
	c.stack = append(c.stack, cursorFrame{page: page, index: index})
}

// Eof reports whether the cursor designates no record.
func (c *Cursor) Eof() bool { return len(c.stack) == 0 }

// GetKey returns the key at the cursor's current record.
func (c *Cursor) GetKey() ([]byte, error) {
	if c.Eof() {
		return nil, utils.WrapError("reading cursor key", ErrOutOfBounds)
	}
	top := c.stack[len(c.stack)-1]
	return top.page.GetKey(top.index)
}

// GetVal returns the value at the cursor's current record.
func (c *Cursor) GetVal() ([]byte, error) {
	if c.Eof() {
		return nil, utils.WrapError("reading cursor value", ErrOutOfBounds)
	}
	top := c.stack[len(c.stack)-1]
	return top.page.GetVal(top.index)
}

func (bt *BTree) descendLeftmost(stack []cursorFrame, pageNr uint32) ([]cursorFrame, error) {
	for {
		page, err := bt.getPage(pageNr)
		if err != nil {
			return nil, err
		}
		if page.IsLeaf() {
			return append(stack, cursorFrame{page: page, index: 0}), nil
		}
		stack = append(stack, cursorFrame{page: page, index: -1})
		pageNr, err = page.GetPage(-1)
		if err != nil {
			return nil, err
		}
	}
}

func (bt *BTree) descendRightmost(stack []cursorFrame, pageNr uint32) ([]cursorFrame, error) {
	for {
		page, err := bt.getPage(pageNr)
		if err != nil {
			return nil, err
		}
		if page.IsLeaf() {
			return append(stack, cursorFrame{page: page, index: page.IndexSize() - 1}), nil
		}
		last := page.IndexSize() - 1
		stack = append(stack, cursorFrame{page: page, index: last})
		pageNr, err = page.GetPage(last)
		if err != nil {
			return nil, err
		}
	}
}

// Next advances the cursor to the following record, or empties it if there
// is none. Index pages carry their own key/value record at each entry, in
// between the subtrees on either side of it, so a resting position on an
// index page (cur.index) must descend into that entry's own subtree before
// anything past it becomes reachable; only once a subtree is exhausted does
// climbing back up to the parent's next entry produce the following record.
func (c *Cursor) Next() error {
	if c.Eof() {
		return nil
	}
	cur := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]

	if cur.page.IsIndex() {
		c.stack = append(c.stack, cur)
		childNr, err := cur.page.GetPage(cur.index)
		if err != nil {
			return err
		}
		stack, err := c.bt.descendLeftmost(c.stack, childNr)
		if err != nil {
			return err
		}
		c.stack = stack
		return nil
	}

	cur.index++
	for {
		if cur.page.IsLeaf() {
			if cur.index < cur.page.IndexSize() {
				c.stack = append(c.stack, cur)
				return nil
			}
			if len(c.stack) == 0 {
				return nil // eof
			}
			cur = c.stack[len(c.stack)-1]
			c.stack = c.stack[:len(c.stack)-1]
			cur.index++
			continue
		}

		// cur is an index page whose entry-(cur.index-1) subtree we just
		// finished; entry cur.index, if present, is the next record.
		if cur.index < cur.page.IndexSize() {
			c.stack = append(c.stack, cur)
			return nil
		}
		if len(c.stack) == 0 {
			return nil // eof
		}
		cur = c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		cur.index++
	}
}

// Prev retreats the cursor to the preceding record, or empties it if there
// is none, mirroring Next across the same index-page-carries-records layout.
func (c *Cursor) Prev() error {
	if c.Eof() {
		return nil
	}
	cur := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]

	if cur.page.IsIndex() {
		idx := cur.index - 1
		c.stack = append(c.stack, cursorFrame{page: cur.page, index: idx})
		childNr, err := cur.page.GetPage(idx)
		if err != nil {
			return err
		}
		stack, err := c.bt.descendRightmost(c.stack, childNr)
		if err != nil {
			return err
		}
		c.stack = stack
		return nil
	}

	cur.index--
	for {
		if cur.page.IsLeaf() {
			if cur.index >= 0 {
				c.stack = append(c.stack, cur)
				return nil
			}
			if len(c.stack) == 0 {
				return nil // eof
			}
			cur = c.stack[len(c.stack)-1]
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}

		// cur is an index page whose entry-cur.index subtree we just
		// finished backing out of; entry cur.index itself, unchanged, is
		// the preceding record.
		if cur.index >= 0 {
			c.stack = append(c.stack, cur)
			return nil
		}
		if len(c.stack) == 0 {
			return nil // eof
		}
		cur = c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// Find descends from the root looking for key, then applies the requested
// relation's adjustment to the page-local result: an exact Equal request
// that missed empties the cursor, a Greater(-Equal) request that landed on
// Less advances once, and so on, mirroring the five comparison operators
// against the page's three possible outcomes (Less, Equal, Greater).
func (bt *BTree) Find(rel Relation, key []byte) (*Cursor, error) {
	var stack []cursorFrame
	pageNr := bt.rootPage
	var act Relation
	for {
		page, err := bt.getPage(pageNr)
		if err != nil {
			return nil, err
		}
		res, err := page.Find(key)
		if err != nil {
			return nil, err
		}
		stack = append(stack, cursorFrame{page: page, index: res.Index})
		if res.Act != RelRecurse {
			act = res.Act
			break
		}
		pageNr, err = page.GetPage(res.Index)
		if err != nil {
			return nil, err
		}
	}

	cur := &Cursor{bt: bt, stack: stack}

	switch {
	case rel == act:
		// accept as-is
	case rel == RelEqual && act != RelEqual:
		cur.stack = nil
	case (rel == RelLessEqual || rel == RelGreaterEqual) && act == RelEqual:
		// accept as-is
	case (rel == RelGreater || rel == RelGreaterEqual) && act == RelLess:
		if err := cur.Next(); err != nil {
			return nil, err
		}
	case rel == RelGreater && act == RelEqual:
		if err := cur.Next(); err != nil {
			return nil, err
		}
	case (rel == RelLess || rel == RelLessEqual) && act == RelGreater:
		if err := cur.Prev(); err != nil {
			return nil, err
		}
	case rel == RelLess && act == RelEqual:
		if err := cur.Prev(); err != nil {
			return nil, err
		}
	}

	return cur, nil
}
