package core

import (
	"io"

	"github.com/nlitsme/idbutil/internal/utils"
)

// SectionStream is a bounded view over a parent Source, translating local
// offsets in [0, size) to absolute offsets [first, first+size) in the
// parent. Because every read goes through ReadAt with an absolute parent
// offset computed from the caller-supplied local offset, two SectionStreams
// over the same parent never share or corrupt a seek position — there is
// none to share.
type SectionStream struct {
	parent utils.ReaderAt
	first  int64
	size   int64
}

// NewSectionStream builds a section view [first, first+size) over parent.
func NewSectionStream(parent utils.ReaderAt, first, size int64) *SectionStream {
	return &SectionStream{parent: parent, first: first, size: size}
}

// Size reports the logical length of the section.
func (s *SectionStream) Size() int64 { return s.size }

// ReadAt reads from the local offset off, clipping to the section bound and
// reporting io.EOF when fewer bytes than requested are available.
func (s *SectionStream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, utils.WrapError("reading section", ErrOutOfBounds)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	avail := s.size - off
	want := int64(len(p))
	n := want
	var err error
	if n > avail {
		n = avail
		err = io.EOF
	}
	got, rerr := s.parent.ReadAt(p[:n], s.first+off)
	if rerr != nil {
		return got, rerr
	}
	return got, err
}
