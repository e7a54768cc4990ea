package core

import "bytes"

// StructMember is one field of a structure, decoded from a Struct's packed
// member blob plus a handful of per-member node-key lookups.
type StructMember struct {
	id0    *ID0
	nodeid uint64
	skip   uint64
	size   uint64
	flags  uint32
	props  uint32
	offset uint64
}

// NodeID is the member's node id, already offset by the database's node
// base.
func (m StructMember) NodeID() uint64 { return m.nodeid }

// Offset is the byte offset of this member within the structure.
func (m StructMember) Offset() uint64 { return m.offset }

// Size is the member's size in bytes.
func (m StructMember) Size() uint64 { return m.size }

// Flags is the member's raw type-flags word.
func (m StructMember) Flags() uint32 { return m.flags }

// Name resolves the member's display name.
func (m StructMember) Name() (string, error) { return m.id0.GetName(m.nodeid) }

// Comment returns the member's regular or repeatable comment.
func (m StructMember) Comment(repeatable bool) (string, error) {
	return m.id0.GetStr(m.nodeid, 'S', commentIndex(repeatable))
}

// EnumID is the id of the enum this member is typed as, or 0 if none.
func (m StructMember) EnumID() (uint64, error) {
	v, err := m.id0.GetUint(m.nodeid, 'A', 11)
	return minusOne(v), err
}

// StructID is the id of the struct this member is typed as, or 0 if none.
func (m StructMember) StructID() (uint64, error) {
	v, err := m.id0.GetUint(m.nodeid, 'A', 3)
	return minusOne(v), err
}

// TypeInfo returns the member's raw type descriptor blob, if any.
func (m StructMember) TypeInfo() ([]byte, error) {
	return m.id0.GetData(m.nodeid, 'S', 0x3000)
}

// PtrInfo returns the member's raw pointer-type descriptor blob, if any.
func (m StructMember) PtrInfo() ([]byte, error) {
	return m.id0.GetData(m.nodeid, 'S', 9)
}

// Skip is the gap in bytes between this member and the previous one.
func (m StructMember) Skip() uint64 { return m.skip }

// Props is the member's raw type-properties word.
func (m StructMember) Props() uint32 { return m.props }

func commentIndex(repeatable bool) int64 {
	if repeatable {
		return 1
	}
	return 0
}

// Struct is a structure/union definition: a node id plus an ordered list of
// members unpacked from a single 'M'-tagged blob.
type Struct struct {
	id0     *ID0
	nodeid  uint64
	flags   uint32
	members []StructMember
	seqnr   uint32
}

// OpenStruct decodes the struct rooted at nodeid.
func OpenStruct(id0 *ID0, nodeid uint64) (*Struct, error) {
	blob, err := id0.BlobAll(nodeid, 'M')
	if err != nil {
		return nil, err
	}
	u := NewUnpacker(blob, id0.WordSize() == 8)

	flags, err := u.Next32()
	if err != nil {
		return nil, err
	}
	nmember, err := u.Next32()
	if err != nil {
		return nil, err
	}

	s := &Struct{id0: id0, nodeid: nodeid, flags: flags}
	var ofs uint64
	for i := uint32(0); i < nmember; i++ {
		mnodeid, err := u.NextWord()
		if err != nil {
			return nil, err
		}
		skip, err := u.NextWord()
		if err != nil {
			return nil, err
		}
		size, err := u.NextWord()
		if err != nil {
			return nil, err
		}
		mflags, err := u.Next32()
		if err != nil {
			return nil, err
		}
		props, err := u.Next32()
		if err != nil {
			return nil, err
		}

		ofs += skip
		member := StructMember{
			id0:    id0,
			nodeid: mnodeid + id0.NodeBase(),
			skip:   skip,
			size:   size,
			flags:  mflags,
			props:  props,
			offset: ofs,
		}
		ofs += size
		s.members = append(s.members, member)
	}

	if !u.Eof() {
		seqnr, err := u.Next32()
		if err != nil {
			return nil, err
		}
		s.seqnr = seqnr
	}

	return s, nil
}

// NodeID is the struct's own node id.
func (s *Struct) NodeID() uint64 { return s.nodeid }

// Flags is the struct's raw flags word; bit 0 marks a union.
func (s *Struct) Flags() uint32 { return s.flags }

// Members returns the structure's fields in declaration order.
func (s *Struct) Members() []StructMember { return s.members }

// SeqNr is the structure's ordinal sequence number among all user types,
// trailing the member blob when present (0 if the blob predates that field).
func (s *Struct) SeqNr() uint32 { return s.seqnr }

// Name resolves the structure's display name.
func (s *Struct) Name() (string, error) { return s.id0.GetName(s.nodeid) }

// Comment returns the structure's regular or repeatable comment.
func (s *Struct) Comment(repeatable bool) (string, error) {
	return s.id0.GetStr(s.nodeid, 'S', commentIndex(repeatable))
}

// EnumMember is one named constant of an Enum or BitfieldValue.
type EnumMember struct {
	id0    *ID0
	nodeid uint64
	value  uint64
}

// NodeID is the member's node id.
func (m EnumMember) NodeID() uint64 { return m.nodeid }

// Value is the member's numeric value.
func (m EnumMember) Value() uint64 { return m.value }

// Name resolves the member's display name.
func (m EnumMember) Name() (string, error) { return m.id0.GetName(m.nodeid) }

// buildEnumMember resolves a member node's numeric value, stored at index
// -3 of its 'A' altval array, the same slot an enum or bitfield node itself
// uses for its representation flags.
func buildEnumMember(id0 *ID0, nodeid uint64) (EnumMember, error) {
	value, err := id0.GetUint(nodeid, 'A', -3)
	if err != nil {
		return EnumMember{}, err
	}
	return EnumMember{id0: id0, nodeid: nodeid, value: value}, nil
}

// Comment returns the member's regular or repeatable comment.
func (m EnumMember) Comment(repeatable bool) (string, error) {
	return m.id0.GetStr(m.nodeid, 'S', commentIndex(repeatable))
}

// tagRange walks every record with key in [(nodeid,tag), (nodeid,tag+1)],
// the convention shared by Enum member scanning and Bitfield mask/value
// scanning, invoking cb with each record's key and decoded value.
func tagRange(id0 *ID0, nodeid uint64, tag byte, cb func(key, val []byte) error) error {
	endKey := id0.Keys().NodeTagKey(nodeid, tag+1)
	cur, err := id0.Find(RelGreaterEqual, id0.Keys().NodeTagKey(nodeid, tag))
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
		if err := cb(k, v); err != nil {
			return err
		}
		if err := cur.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Enum is a named enumeration (or, when Flags()&1 is set, a Bitfield
// viewed through the enum accessors), whose members are reached by
// scanning tag range ['E', 'F').
type Enum struct {
	id0    *ID0
	nodeid uint64
}

// OpenEnum wraps the enum rooted at nodeid.
func OpenEnum(id0 *ID0, nodeid uint64) *Enum { return &Enum{id0: id0, nodeid: nodeid} }

// NodeID is the enum's own node id.
func (e *Enum) NodeID() uint64 { return e.nodeid }

// Count is the enum's declared member count.
func (e *Enum) Count() (uint64, error) { return e.id0.GetUint(e.nodeid, 'A', -1) }

// Representation is the enum's numeric base/representation flags.
func (e *Enum) Representation() (uint64, error) { return e.id0.GetUint(e.nodeid, 'A', -3) }

// Flags is the enum's raw flags word; bit 0 marks a bitfield.
func (e *Enum) Flags() (uint64, error) { return e.id0.GetUint(e.nodeid, 'A', -5) }

// IsBitfield reports whether this enum is in fact a bitfield.
func (e *Enum) IsBitfield() (bool, error) {
	f, err := e.Flags()
	return f&1 != 0, err
}

// Name resolves the enum's display name.
func (e *Enum) Name() (string, error) { return e.id0.GetName(e.nodeid) }

// Comment returns the enum's regular or repeatable comment.
func (e *Enum) Comment(repeatable bool) (string, error) {
	return e.id0.GetStr(e.nodeid, 'S', commentIndex(repeatable))
}

// Members returns the enum's named constants in key order.
func (e *Enum) Members() ([]EnumMember, error) {
	var out []EnumMember
	err := tagRange(e.id0, e.nodeid, 'E', func(_, val []byte) error {
		raw, err := GetUint(val)
		if err != nil {
			return err
		}
		id := minusOne(raw)
		member, err := buildEnumMember(e.id0, id)
		if err != nil {
			return err
		}
		out = append(out, member)
		return nil
	})
	return out, err
}

// BitfieldValue is one named constant belonging to a BitfieldMask.
type BitfieldValue = EnumMember

// BitfieldMask is one named bit mask within a Bitfield, with its own range
// of named values.
type BitfieldMask struct {
	id0    *ID0
	nodeid uint64
	mask   uint64
}

// NodeID is the mask's own node id.
func (m BitfieldMask) NodeID() uint64 { return m.nodeid }

// Mask is the raw bitmask.
func (m BitfieldMask) Mask() uint64 { return m.mask }

// Name resolves the mask's display name.
func (m BitfieldMask) Name() (string, error) { return m.id0.GetName(m.nodeid) }

// Comment returns the mask's regular or repeatable comment.
func (m BitfieldMask) Comment(repeatable bool) (string, error) {
	return m.id0.GetStr(m.nodeid, 'S', commentIndex(repeatable))
}

// Values returns the mask's named constants in key order.
func (m BitfieldMask) Values() ([]BitfieldValue, error) {
	var out []BitfieldValue
	err := tagRange(m.id0, m.nodeid, 'E', func(_, val []byte) error {
		raw, err := GetUint(val)
		if err != nil {
			return err
		}
		id := minusOne(raw)
		value, err := buildEnumMember(m.id0, id)
		if err != nil {
			return err
		}
		out = append(out, value)
		return nil
	})
	return out, err
}

// Bitfield is a named bitfield type: a set of named masks, each carrying its
// own set of named values, reached by scanning tag range ['m', 'n').
type Bitfield struct {
	id0    *ID0
	nodeid uint64
}

// OpenBitfield wraps the bitfield rooted at nodeid.
func OpenBitfield(id0 *ID0, nodeid uint64) *Bitfield { return &Bitfield{id0: id0, nodeid: nodeid} }

// NodeID is the bitfield's own node id.
func (b *Bitfield) NodeID() uint64 { return b.nodeid }

// Count is the bitfield's declared member count.
func (b *Bitfield) Count() (uint64, error) { return b.id0.GetUint(b.nodeid, 'A', -1) }

// Representation is the bitfield's numeric base/representation flags.
func (b *Bitfield) Representation() (uint64, error) { return b.id0.GetUint(b.nodeid, 'A', -3) }

// Flags is the bitfield's raw flags word.
func (b *Bitfield) Flags() (uint64, error) { return b.id0.GetUint(b.nodeid, 'A', -5) }

// Name resolves the bitfield's display name.
func (b *Bitfield) Name() (string, error) { return b.id0.GetName(b.nodeid) }

// Comment returns the bitfield's regular or repeatable comment.
func (b *Bitfield) Comment(repeatable bool) (string, error) {
	return b.id0.GetStr(b.nodeid, 'S', commentIndex(repeatable))
}

// extractMask pulls the raw mask value out of the tail of a mask-list key:
// for 64-bit databases the key must be 18 bytes with the mask as the last
// 8 bytes big-endian; for 32-bit databases it must be 10 bytes with the
// mask as the last 4 bytes big-endian.
func extractMask(key []byte, use64 bool) (uint64, error) {
	if use64 {
		if len(key) != 18 {
			return 0, ErrCorruptTree
		}
		return GetUintBE(key[10:18])
	}
	if len(key) != 10 {
		return 0, ErrCorruptTree
	}
	return GetUintBE(key[6:10])
}

// Masks returns the bitfield's named masks in key order.
func (b *Bitfield) Masks() ([]BitfieldMask, error) {
	use64 := b.id0.WordSize() == 8
	var out []BitfieldMask
	err := tagRange(b.id0, b.nodeid, 'm', func(key, val []byte) error {
		mask, err := extractMask(key, use64)
		if err != nil {
			return err
		}
		raw, err := GetUint(val)
		if err != nil {
			return err
		}
		id := minusOne(raw)
		out = append(out, BitfieldMask{id0: b.id0, nodeid: id, mask: mask})
		return nil
	})
	return out, err
}

// Script is a stored IDC/IDAPython script body plus its declared language.
type Script struct {
	id0    *ID0
	nodeid uint64
}

// OpenScript wraps the script rooted at nodeid.
func OpenScript(id0 *ID0, nodeid uint64) *Script { return &Script{id0: id0, nodeid: nodeid} }

// NodeID is the script's own node id.
func (s *Script) NodeID() uint64 { return s.nodeid }

// Name returns the script's stored name.
func (s *Script) Name() (string, error) { return s.id0.GetStr(s.nodeid, 'S', 0) }

// Language returns the script's declared language.
func (s *Script) Language() (string, error) { return s.id0.GetStr(s.nodeid, 'S', 1) }

// Body reassembles and returns the script's source text.
func (s *Script) Body() (string, error) {
	blob, err := s.id0.BlobAll(s.nodeid, 'X')
	if err != nil {
		return "", err
	}
	return GetStr(blob), nil
}

// List iterates the 'A'-tagged entries of a node: a sequence of ids, each
// stored offset by one (0 meaning absent), materialised into T by build.
// This is the list convention of the "$ structs", "$ enums" and
// "$ scriptsnippets" root nodes that the Database facade enumerates.
type List[T any] struct {
	id0    *ID0
	cursor *Cursor
	endKey []byte
	build  func(*ID0, uint64) (T, error)
}

// OpenList constructs a list view over nodeid's 'A'-tagged entries.
func OpenList[T any](id0 *ID0, nodeid uint64, build func(*ID0, uint64) (T, error)) (*List[T], error) {
	cursor, err := id0.Find(RelGreater, id0.Keys().NodeTagKey(nodeid, 'A'))
	if err != nil {
		return nil, err
	}
	endKey := id0.Keys().NodeIndexKey(nodeid, 'A', -1)
	return &List[T]{id0: id0, cursor: cursor, endKey: endKey, build: build}, nil
}

// Eof reports whether the list has been fully consumed.
func (l *List[T]) Eof() (bool, error) {
	if l.cursor.Eof() {
		return true, nil
	}
	k, err := l.cursor.GetKey()
	if err != nil {
		return false, err
	}
	return bytes.Compare(k, l.endKey) >= 0, nil
}

// Next decodes the current entry and advances the cursor.
func (l *List[T]) Next() (T, error) {
	var zero T
	v, err := l.cursor.GetVal()
	if err != nil {
		return zero, err
	}
	raw, err := GetUint(v)
	if err != nil {
		return zero, err
	}
	id := minusOne(raw)
	item, err := l.build(l.id0, id)
	if err != nil {
		return zero, err
	}
	if err := l.cursor.Next(); err != nil {
		return zero, err
	}
	return item, nil
}
