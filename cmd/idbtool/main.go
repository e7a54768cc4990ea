// Command idbtool inspects IDA Pro .idb/.i64 database files without
// running IDA: database info, structs, enums, scripts, names, and a
// low-level key/value dump and query mini-language over the ID0 B-tree.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/nlitsme/idbutil"
	"github.com/nlitsme/idbutil/internal/core"
)

func usage() {
	fmt.Fprintln(os.Stderr, "idbtool OPTIONS <files> [-- ADDRLIST]")
	fmt.Fprintln(os.Stderr, "    -s  | --scripts    print all scripts")
	fmt.Fprintln(os.Stderr, "    -t  | --structs    print all structs")
	fmt.Fprintln(os.Stderr, "    -e  | --enums      print all enums (and bitfields)")
	fmt.Fprintln(os.Stderr, "    -n  | --names      print defined names")
	fmt.Fprintln(os.Stderr, "    -a                 include auto-generated names")
	fmt.Fprintln(os.Stderr, "    -i  | --info       print database info (loader, cpu, version, license)")
	fmt.Fprintln(os.Stderr, "    -d  | --id0        low level db dump")
	fmt.Fprintln(os.Stderr, "    -inc| --inc        dump all records in ascending order")
	fmt.Fprintln(os.Stderr, "    -dec| --dec        dump all records in descending order")
	fmt.Fprintln(os.Stderr, "    -q  | --query Q    execute a query")
	fmt.Fprintln(os.Stderr, "    -m  | --limit N    limit iteration output to N records")
	fmt.Fprintln(os.Stderr, "when ADDRLIST is given, each address is printed as 'name+offset'")
	flag.PrintDefaults()
}

type options struct {
	info        bool
	scripts     bool
	structs     bool
	enums       bool
	names       bool
	allNames    bool
	id0dump     bool
	ascending   bool
	descending  bool
	query       string
	hasQuery    bool
	limit       int
}

func main() {
	var opt options

	flag.BoolVar(&opt.info, "i", false, "print database info")
	flag.BoolVar(&opt.info, "info", false, "print database info")
	flag.BoolVar(&opt.scripts, "s", false, "print all scripts")
	flag.BoolVar(&opt.scripts, "scripts", false, "print all scripts")
	flag.BoolVar(&opt.structs, "t", false, "print all structs")
	flag.BoolVar(&opt.structs, "structs", false, "print all structs")
	flag.BoolVar(&opt.enums, "e", false, "print all enums")
	flag.BoolVar(&opt.enums, "enums", false, "print all enums")
	flag.BoolVar(&opt.names, "n", false, "print defined names")
	flag.BoolVar(&opt.names, "names", false, "print defined names")
	flag.BoolVar(&opt.allNames, "a", false, "include auto-generated names")
	flag.BoolVar(&opt.id0dump, "d", false, "low level id0 dump")
	flag.BoolVar(&opt.id0dump, "id0", false, "low level id0 dump")
	flag.BoolVar(&opt.ascending, "inc", false, "dump all records ascending")
	flag.BoolVar(&opt.descending, "dec", false, "dump all records descending")
	flag.StringVar(&opt.query, "q", "", "execute a query")
	flag.StringVar(&opt.query, "query", "", "execute a query")
	limit := flag.Int("m", -1, "limit iteration output to N records")
	flag.IntVar(limit, "limit", -1, "limit iteration output to N records")
	flag.Usage = usage
	flag.Parse()
	opt.limit = *limit
	opt.hasQuery = opt.query != ""

	args := flag.Args()
	var files, addrstrs []string
	if sep := indexOf(args, "--"); sep >= 0 {
		files, addrstrs = args[:sep], args[sep+1:]
	} else {
		files = args
	}

	if len(files) == 0 {
		usage()
		os.Exit(1)
	}

	var addrs []uint64
	for _, s := range addrstrs {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid address %q: %v\n", s, err)
			os.Exit(1)
		}
		addrs = append(addrs, v)
	}

	status := 0
	for _, fn := range files {
		if len(files) > 1 {
			fmt.Printf("==> %s <==\n", fn)
		}
		if err := processFile(fn, opt, addrs); err != nil {
			log.Printf("%s: %v", fn, err)
			status = 1
		}
		if len(files) > 1 {
			fmt.Println()
		}
	}
	os.Exit(status)
}

func indexOf(args []string, needle string) int {
	for i, a := range args {
		if a == needle {
			return i
		}
	}
	return -1
}

func processFile(fn string, opt options, addrs []uint64) error {
	db, err := idbutil.Open(fn)
	if err != nil {
		return err
	}
	defer db.Close()

	if opt.info {
		if err := printInfo(db); err != nil {
			return err
		}
	}
	if opt.scripts {
		if err := printScripts(db); err != nil {
			return err
		}
	}
	if opt.structs {
		if err := printStructs(db); err != nil {
			return err
		}
	}
	if opt.enums {
		if err := printEnums(db); err != nil {
			return err
		}
	}
	if opt.names {
		if err := printNames(db, opt.allNames); err != nil {
			return err
		}
	}
	if len(addrs) > 0 {
		if err := printAddrs(db, addrs); err != nil {
			return err
		}
	}

	switch {
	case opt.hasQuery:
		if err := runQuery(db, opt.query, !opt.descending, opt.limit); err != nil {
			return err
		}
	case opt.ascending || opt.descending:
		if err := dumpNodes(db, opt.ascending, opt.limit); err != nil {
			return err
		}
	}

	if opt.id0dump {
		if err := dumpID0(db); err != nil {
			return err
		}
	}

	return nil
}

func printInfo(db *idbutil.Database) error {
	info, err := db.Info()
	if err != nil {
		return err
	}
	fmt.Printf("loader: %s  %s\n", info.Loader, info.LoaderParams)
	fmt.Printf("cpu: %-8s,  idaversion=%04d: %s\n", info.CPU, info.IDAVersion, info.Param1303)
	fmt.Printf("nopens=%d, ctime=%s, crc=%08x, binary md5=%x\n",
		info.NOpens, timestring(uint32(info.CTime)), info.CRC, info.MD5)

	if ok, _ := db.VerifyChecksum(core.SectionID0); !ok {
		fmt.Println("warning: id0 section checksum mismatch")
	}

	fmt.Print(formatLicense("orig: ", decryptUser(info.OriginalUser)))
	fmt.Print(formatLicense("curr: ", info.User1))
	return nil
}

func printScripts(db *idbutil.Database) error {
	scripts, err := db.Scripts()
	if err != nil {
		return err
	}
	for _, s := range scripts {
		name, err := s.Name()
		if err != nil {
			return err
		}
		lang, err := s.Language()
		if err != nil {
			return err
		}
		body, err := s.Body()
		if err != nil {
			return err
		}
		fmt.Printf("======= %s %s =======\n%s\n", lang, name, body)
	}
	return nil
}

func printStructs(db *idbutil.Database) error {
	structs, err := db.Structs()
	if err != nil {
		return err
	}
	for _, s := range structs {
		name, err := s.Name()
		if err != nil {
			return err
		}
		fmt.Printf("struct %s,   0x%x, 0x%x\n", name, s.Flags(), s.SeqNr())
		for _, m := range s.Members() {
			mname, err := m.Name()
			if err != nil {
				return err
			}
			fmt.Printf("     %02x %02x %08x %02x: %-40s", m.Skip(), m.Size(), m.Flags(), m.Props(), mname)
			if enumid, err := m.EnumID(); err != nil {
				return err
			} else if enumid != 0 {
				fmt.Printf(" enum %08x", enumid)
			}
			if structid, err := m.StructID(); err != nil {
				return err
			} else if structid != 0 {
				fmt.Printf(" struct %08x", structid)
			}
			if ptr, err := m.PtrInfo(); err != nil {
				return err
			} else if len(ptr) > 0 {
				fmt.Printf(" ptr %s", formatBytes(ptr))
			}
			if ti, err := m.TypeInfo(); err != nil {
				return err
			} else if len(ti) > 0 {
				fmt.Printf(" type %s", formatBytes(ti))
			}
			fmt.Println()
		}
	}
	return nil
}

func printEnums(db *idbutil.Database) error {
	enums, err := db.Enums()
	if err != nil {
		return err
	}
	id0, err := db.ID0()
	if err != nil {
		return err
	}
	for _, e := range enums {
		isBf, err := e.IsBitfield()
		if err != nil {
			return err
		}
		if isBf {
			if err := dumpBitfield(core.OpenBitfield(id0, e.NodeID())); err != nil {
				return err
			}
			continue
		}
		if err := dumpEnum(e); err != nil {
			return err
		}
	}
	return nil
}

func dumpEnum(e *core.Enum) error {
	name, err := e.Name()
	if err != nil {
		return err
	}
	count, err := e.Count()
	if err != nil {
		return err
	}
	rep, err := e.Representation()
	if err != nil {
		return err
	}
	flags, err := e.Flags()
	if err != nil {
		return err
	}
	fmt.Printf("enum %s, 0x%x, 0x%x, 0x%x\n", name, count, rep, flags)
	members, err := e.Members()
	if err != nil {
		return err
	}
	for _, m := range members {
		mname, err := m.Name()
		if err != nil {
			return err
		}
		fmt.Printf("    %08x %s\n", m.Value(), mname)
	}
	return nil
}

func dumpBitfield(b *core.Bitfield) error {
	name, err := b.Name()
	if err != nil {
		return err
	}
	count, err := b.Count()
	if err != nil {
		return err
	}
	rep, err := b.Representation()
	if err != nil {
		return err
	}
	flags, err := b.Flags()
	if err != nil {
		return err
	}
	fmt.Printf("bitfield %s, 0x%x, 0x%x, 0x%x\n", name, count, rep, flags)
	masks, err := b.Masks()
	if err != nil {
		return err
	}
	for _, msk := range masks {
		fmt.Printf("    mask %x", msk.Mask())
		mname, err := msk.Name()
		if err != nil {
			return err
		}
		if mname != "" {
			fmt.Printf(" - %s", mname)
		}
		fmt.Println()
		values, err := msk.Values()
		if err != nil {
			return err
		}
		for _, v := range values {
			vname, err := v.Name()
			if err != nil {
				return err
			}
			fmt.Printf("   %16x %s\n", v.Value(), vname)
		}
	}
	return nil
}

func printNames(db *idbutil.Database, includeAuto bool) error {
	names, err := db.Names(includeAuto)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Printf("%08x: [%08x] %s\n", n.Address, n.Flags, n.Name)
	}
	return nil
}

func printAddrs(db *idbutil.Database, addrs []uint64) error {
	id0, err := db.ID0()
	if err != nil {
		return err
	}
	id1, err := db.ID1()
	if err != nil {
		return err
	}
	nam, err := db.NAM()
	if err != nil {
		return err
	}

	for _, ea := range addrs {
		seg0 := id1.SegStart(ea)
		seg1 := id1.SegEnd(ea)

		var segspec string
		switch {
		case seg0 == core.BadAddr:
			segspec = "not in a seg"
		case seg0 == ea:
			segspec = fmt.Sprintf("seg:%08x start", seg0)
		case seg1 == ea:
			segspec = fmt.Sprintf("seg:%08x end", seg0)
		default:
			segspec = fmt.Sprintf("seg:%08x+0x%x", seg0, ea-seg0)
		}

		var namespec string
		fea, err := nam.FindName(ea)
		if errors.Is(err, core.ErrSectionMissing) {
			namespec = "-"
		} else if err != nil {
			return err
		} else {
			name, err := id0.GetName(fea)
			if err != nil {
				return err
			}
			switch {
			case fea == ea:
				namespec = name
			case fea < ea:
				namespec = fmt.Sprintf("%s+0x%x", name, ea-fea)
			default:
				namespec = fmt.Sprintf("%s-0x%x", name, fea-ea)
			}
		}
		fmt.Printf("%08x: %-23s %s\n", ea, segspec, namespec)
	}
	return nil
}

func dumpNodes(db *idbutil.Database, ascending bool, limit int) error {
	id0, err := db.ID0()
	if err != nil {
		return err
	}
	var cur *core.Cursor
	if ascending {
		cur, err = id0.Find(core.RelGreaterEqual, []byte{})
	} else {
		cur, err = id0.Find(core.RelLessEqual, []byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	if err != nil {
		return err
	}
	return iterateCursor(cur, ascending, limit, false)
}

func runQuery(db *idbutil.Database, query string, ascending bool, limit int) error {
	id0, err := db.ID0()
	if err != nil {
		return err
	}
	rel, rest := idbutil.ParseRelation(query)
	key, err := idbutil.ResolveKey(id0, strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	cur, err := id0.Find(rel, key)
	if err != nil {
		return err
	}
	return iterateCursor(cur, ascending, limit, rel == core.RelEqual)
}

func iterateCursor(cur *core.Cursor, ascending bool, limit int, stopAfterFirst bool) error {
	for !cur.Eof() && limit != 0 {
		k, err := cur.GetKey()
		if err != nil {
			return err
		}
		v, err := cur.GetVal()
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", formatBytes(k), formatBytes(v))
		if stopAfterFirst {
			break
		}
		if ascending {
			err = cur.Next()
		} else {
			err = cur.Prev()
		}
		if err != nil {
			return err
		}
		if limit > 0 {
			limit--
		}
	}
	return nil
}

func dumpID0(db *idbutil.Database) error {
	if ok, _ := db.VerifyChecksum(core.SectionID0); !ok {
		fmt.Println("warning: id0 section checksum mismatch")
	}
	return dumpNodes(db, true, -1)
}

// formatBytes renders a byte string for display: printable ASCII verbatim
// (except a backslash, which is doubled), everything else as a \xHH escape.
func formatBytes(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	return sb.String()
}
