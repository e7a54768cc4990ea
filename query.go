package idbutil

import (
	"strconv"
	"strings"

	"github.com/nlitsme/idbutil/internal/core"
)

// ParseRelation reads the leading 1-2 relation characters ('=', '<', '>')
// from a query expression and maps them to a core.Relation, returning the
// unconsumed remainder. An expression with no leading relation characters
// defaults to Equal.
func ParseRelation(expr string) (core.Relation, string) {
	const (
		flEQ = 1
		flGT = 2
		flLT = 4
	)
	var flags int
	consumed := 0
	for consumed < len(expr) && consumed < 2 {
		c := expr[consumed]
		if c != '=' && c != '>' && c != '<' {
			break
		}
		switch c {
		case '=':
			flags |= flEQ
		case '>':
			flags |= flGT
		case '<':
			flags |= flLT
		}
		consumed++
	}
	rest := expr[consumed:]

	switch flags {
	case flEQ | flGT:
		return core.RelGreaterEqual, rest
	case flGT:
		return core.RelGreater, rest
	case flEQ | flLT:
		return core.RelLessEqual, rest
	case flLT:
		return core.RelLess, rest
	default:
		return core.RelEqual, rest
	}
}

// ResolveKey builds the B-tree key for a key expression of the form used by
// the query flag: "?name" resolves a name key; ".nnn[;tag[;idx]]" is a
// literal node id; "#nnn[;tag[;idx]]" is a node id offset from the node
// base; a bare "name[;tag[;idx]]" resolves the leading name via id0.Node.
// tag 'H' causes the final field to be parsed as a raw hash-key instead of
// an unsigned index.
func ResolveKey(id0 *core.ID0, expr string) ([]byte, error) {
	if strings.HasPrefix(expr, "?") {
		return id0.Keys().NameKey(expr[1:]), nil
	}

	parts := strings.SplitN(expr, ";", 3)

	var nodeid uint64
	switch {
	case strings.HasPrefix(parts[0], "."):
		v, err := strconv.ParseUint(parts[0][1:], 0, 64)
		if err != nil {
			return nil, core.ErrInvalidKeySpec
		}
		nodeid = v
	case strings.HasPrefix(parts[0], "#"):
		v, err := strconv.ParseUint(parts[0][1:], 0, 64)
		if err != nil {
			return nil, core.ErrInvalidKeySpec
		}
		nodeid = id0.NodeBase() + v
	default:
		v, err := id0.Node(parts[0])
		if err != nil {
			return nil, err
		}
		nodeid = v
	}

	if len(parts) == 1 {
		return id0.Keys().NodeKey(nodeid), nil
	}

	tag := parts[1]
	if len(tag) != 1 {
		return nil, core.ErrInvalidKeySpec
	}

	if len(parts) == 2 {
		return id0.Keys().NodeTagKey(nodeid, tag[0]), nil
	}

	if tag[0] == 'H' {
		return id0.Keys().NodeHashKey(nodeid, tag[0], []byte(parts[2])), nil
	}
	idx, err := strconv.ParseInt(parts[2], 0, 64)
	if err != nil {
		return nil, core.ErrInvalidKeySpec
	}
	return id0.Keys().NodeIndexKey(nodeid, tag[0], idx), nil
}
