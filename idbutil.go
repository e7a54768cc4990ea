// Package idbutil reads IDA Pro .idb/.i64 database files: the container
// header, the ID0 B-tree of structs/enums/bitfields/scripts/names, the ID1
// per-byte flag map, and the NAM named-address index.
package idbutil

import (
	"os"

	"github.com/nlitsme/idbutil/internal/core"
)

// fileSource adapts an *os.File to core.Source.
type fileSource struct {
	f    *os.File
	size int64
}

func (s fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s fileSource) Size() int64                             { return s.size }

// Database is an open .idb/.i64 file. Sections are parsed lazily and cached
// on first access.
type Database struct {
	f         *os.File
	container *core.Container

	id0 *core.ID0
	id1 *core.ID1
	nam *core.NAM
}

// Open parses the container header of the file at path. The file remains
// open until Close is called.
func Open(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	src := fileSource{f: f, size: info.Size()}
	container, err := core.OpenContainer(src)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Database{f: f, container: container}, nil
}

// Close releases the underlying file handle.
func (d *Database) Close() error { return d.f.Close() }

// WordSize is 8 for .i64 databases, 4 otherwise.
func (d *Database) WordSize() int { return d.container.WordSize() }

// Generation reports the detected container generation.
func (d *Database) Generation() core.Generation { return d.container.Generation() }

// FileVersion reports the container header's file_version field.
func (d *Database) FileVersion() int { return d.container.FileVersion() }

// VerifyChecksum recomputes the CRC-32 of the given section index against
// the value recorded in the container's section table, returning true if
// they agree (or if this generation records no checksum for the section).
func (d *Database) VerifyChecksum(section int) (bool, error) {
	return d.container.VerifyChecksum(section)
}

// ID0 returns the struct/enum/bitfield/script/name key-value store,
// opening it on first call.
func (d *Database) ID0() (*core.ID0, error) {
	if d.id0 == nil {
		sec, err := d.container.Section(core.SectionID0)
		if err != nil {
			return nil, err
		}
		id0, err := core.OpenID0(sec, d.WordSize())
		if err != nil {
			return nil, err
		}
		d.id0 = id0
	}
	return d.id0, nil
}

// ID1 returns the per-byte flag map, opening it on first call.
func (d *Database) ID1() (*core.ID1, error) {
	if d.id1 == nil {
		sec, err := d.container.Section(core.SectionID1)
		if err != nil {
			return nil, err
		}
		id1, err := core.OpenID1(sec, d.WordSize())
		if err != nil {
			return nil, err
		}
		d.id1 = id1
	}
	return d.id1, nil
}

// NAM returns the named-address index, opening it on first call.
func (d *Database) NAM() (*core.NAM, error) {
	if d.nam == nil {
		sec, err := d.container.Section(core.SectionNAM)
		if err != nil {
			return nil, err
		}
		nam, err := core.OpenNAM(sec, d.WordSize())
		if err != nil {
			return nil, err
		}
		d.nam = nam
	}
	return d.nam, nil
}

// Structs returns every structure and union definition in the database.
func (d *Database) Structs() ([]*core.Struct, error) {
	id0, err := d.ID0()
	if err != nil {
		return nil, err
	}
	root, err := id0.Node("$ structs")
	if err != nil {
		return nil, err
	}
	list, err := core.OpenList(id0, root, func(id0 *core.ID0, id uint64) (*core.Struct, error) {
		return core.OpenStruct(id0, id)
	})
	if err != nil {
		return nil, err
	}
	var out []*core.Struct
	for {
		eof, err := list.Eof()
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		s, err := list.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Enums returns every enum and bitfield definition in the database. Bitfield
// definitions are surfaced as their Enum wrapper with IsBitfield() true;
// callers that need mask/value detail should call OpenBitfield directly on
// the enum's node id.
func (d *Database) Enums() ([]*core.Enum, error) {
	id0, err := d.ID0()
	if err != nil {
		return nil, err
	}
	root, err := id0.Node("$ enums")
	if err != nil {
		return nil, err
	}
	list, err := core.OpenList(id0, root, func(id0 *core.ID0, id uint64) (*core.Enum, error) {
		return core.OpenEnum(id0, id), nil
	})
	if err != nil {
		return nil, err
	}
	var out []*core.Enum
	for {
		eof, err := list.Eof()
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		e, err := list.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Scripts returns every stored IDC/IDAPython script.
func (d *Database) Scripts() ([]*core.Script, error) {
	id0, err := d.ID0()
	if err != nil {
		return nil, err
	}
	root, err := id0.Node("$ scriptsnippets")
	if err != nil {
		return nil, err
	}
	list, err := core.OpenList(id0, root, func(id0 *core.ID0, id uint64) (*core.Script, error) {
		return core.OpenScript(id0, id), nil
	})
	if err != nil {
		return nil, err
	}
	var out []*core.Script
	for {
		eof, err := list.Eof()
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		s, err := list.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// NamedAddress is one entry of the database's name table.
type NamedAddress struct {
	Address uint64
	Name    string
	Flags   uint32
}

// HasDummyName reports whether an address's flag word marks it as an
// auto-generated name (sub_, loc_ and similar) rather than a user-assigned
// one.
func HasDummyName(flags uint32) bool { return flags&0x8000 != 0 }

// Names returns every named address in the database. When includeDummy is
// false, addresses IDA itself named (per HasDummyName) are skipped, as the
// reference tool's default listing does.
func (d *Database) Names(includeDummy bool) ([]NamedAddress, error) {
	id0, err := d.ID0()
	if err != nil {
		return nil, err
	}
	id1, err := d.ID1()
	if err != nil {
		return nil, err
	}
	nam, err := d.NAM()
	if err != nil {
		return nil, err
	}
	addrs, err := nam.Addresses()
	if err != nil {
		return nil, err
	}
	var out []NamedAddress
	for _, ea := range addrs {
		flags, err := id1.GetFlags(ea)
		if err != nil {
			return nil, err
		}
		if !includeDummy && HasDummyName(flags) {
			continue
		}
		name, err := id0.GetName(ea)
		if err != nil {
			return nil, err
		}
		out = append(out, NamedAddress{Address: ea, Name: name, Flags: flags})
	}
	return out, nil
}

// DBInfo holds the root-node metadata the reference tool prints for -i/--info:
// loader identity, target CPU, IDA version, open count, creation time, the
// stored binary CRC/MD5, and the two license blobs: OriginalUser still
// RSA-encrypted, User1 already in plaintext license-block layout.
// Callers wanting the decoded license text must decrypt OriginalUser
// themselves (see cmd/idbtool/license.go); this package stops short of
// embedding the modular-exponentiation collaborator in the library surface.
type DBInfo struct {
	Loader       string
	LoaderParams string
	CPU          string
	IDAVersion   uint64
	Param1303    string
	NOpens       uint64
	CTime        uint64
	CRC          uint32
	MD5          []byte
	OriginalUser []byte
	User1        []byte
}

// truncateAtNul cuts b at its first zero byte, unlike core.GetStr which
// trims only a trailing run; the CPU name field is a fixed-width slot with
// the name at the front and arbitrary bytes after the terminator.
func truncateAtNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// rootNodeParamsTag is the 'S' index the reference tool reads target-CPU
// parameters from on the root node; the CPU name sits 5 bytes into the blob.
const rootNodeParamsTag = 0x41b994

// Info gathers the root-node metadata the reference tool's -i/--info flag
// prints.
func (d *Database) Info() (*DBInfo, error) {
	id0, err := d.ID0()
	if err != nil {
		return nil, err
	}

	loadernode, err := id0.Node("$ loader name")
	if err != nil {
		return nil, err
	}
	loader, err := id0.GetStr(loadernode, 'S', 0)
	if err != nil {
		return nil, err
	}
	loaderParams, err := id0.GetStr(loadernode, 'S', 1)
	if err != nil {
		return nil, err
	}

	rootnode, err := id0.Node("Root Node")
	if err != nil {
		return nil, err
	}
	params, err := id0.GetData(rootnode, 'S', rootNodeParamsTag)
	if err != nil {
		return nil, err
	}
	var cpu string
	if len(params) >= 13 {
		cpu = truncateAtNul(params[5:13])
	}
	idaversion, err := id0.GetUint(rootnode, 'A', -1)
	if err != nil {
		return nil, err
	}
	param1303, err := id0.GetStr(rootnode, 'S', 1303)
	if err != nil {
		return nil, err
	}
	nopens, err := id0.GetUint(rootnode, 'A', -4)
	if err != nil {
		return nil, err
	}
	ctime, err := id0.GetUint(rootnode, 'A', -2)
	if err != nil {
		return nil, err
	}
	crc, err := id0.GetUint(rootnode, 'A', -5)
	if err != nil {
		return nil, err
	}
	md5, err := id0.GetData(rootnode, 'S', 1302)
	if err != nil {
		return nil, err
	}

	originaluserNode, err := id0.Node("$ original user")
	if err != nil {
		return nil, err
	}
	originaluser, err := id0.GetData(originaluserNode, 'S', 0)
	if err != nil {
		return nil, err
	}
	user1Node, err := id0.Node("$ user1")
	if err != nil {
		return nil, err
	}
	user1, err := id0.GetData(user1Node, 'S', 0)
	if err != nil {
		return nil, err
	}

	return &DBInfo{
		Loader:       loader,
		LoaderParams: loaderParams,
		CPU:          cpu,
		IDAVersion:   idaversion,
		Param1303:    param1303,
		NOpens:       nopens,
		CTime:        ctime,
		CRC:          uint32(crc),
		MD5:          md5,
		OriginalUser: originaluser,
		User1:        user1,
	}, nil
}
