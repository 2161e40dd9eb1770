package bucket

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// fileRef is the shared handle state a File bucket and any bucket split from
// it hold a reference to — refcount > 1 is exactly the case spec.md §9
// forbids beaming for ("the source refuses to beam file buckets with shared
// ownership... zero-copy transfer requires exclusive control").
type fileRef struct {
	f        *os.File
	refcount int32
}

// File is a bucket backed by a (offset, length) region of an open file,
// transferable either by rebinding the handle (zero-copy) or by reading and
// copying, depending on CopyFiles policy and refcount.
type File struct {
	ref    *fileRef
	offset int64
	length int64
	arena  Arena
	noMmap bool
}

// NewFile wraps [offset, offset+length) of f as a single-owner file bucket.
func NewFile(f *os.File, offset, length int64) *File {
	return &File{ref: &fileRef{f: f, refcount: 1}, offset: offset, length: length}
}

func (fb *File) Kind() Kind                 { return KindFile }
func (fb *File) Length() int64              { return fb.length }
func (fb *File) Start() int64               { return fb.offset }
func (fb *File) IsMetadata() bool           { return false }
func (fb *File) MetaKind() (MetaKind, bool) { return 0, false }
func (fb *File) Arena() Arena               { return fb.arena }

// Refcount reports how many live buckets (this one plus any siblings from a
// prior Split) share the underlying file handle.
func (fb *File) Refcount() int32 { return fb.ref.refcount }

// DisableMmap marks the bucket so a future Read never takes the
// mmap fast path, mirroring apr_bucket_file_enable_mmap(ng, 0) in
// h2_beam_receive — used after rebinding a file bucket into the receiver's
// arena to avoid PR 59348-style segfaults if the underlying file changes
// size while a stale mapping is held.
func (fb *File) DisableMmap() { fb.noMmap = true }

func (fb *File) Read(bool) ([]byte, error) {
	buf := make([]byte, fb.length)
	n, err := fb.ref.f.ReadAt(buf, fb.offset)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "bucket: file read")
	}
	return buf[:n], nil
}

// Split divides the file region at byte `at`, returning a bucket for the
// trailing remainder that shares the same handle (and refcount).
func (fb *File) Split(at int64) (Bucket, error) {
	if at < 0 || at > fb.length {
		return nil, ErrNotSplittable
	}
	fb.ref.refcount++
	tail := &File{ref: fb.ref, offset: fb.offset + at, length: fb.length - at, arena: fb.arena, noMmap: fb.noMmap}
	fb.length = at
	return tail, nil
}

// Setaside rebinds the file bucket to arena a, preserving the file's
// current offset and without disturbing any other bucket's region of the
// same handle, satisfying the "preserve file offset and close semantics
// across arenas" requirement in spec.md §6.
func (fb *File) Setaside(a Arena) error {
	fb.arena = a
	return nil
}

// CanBeam reports whether this file bucket is eligible for zero-copy
// transfer: exclusive ownership and the caller hasn't disabled it, per the
// append_bucket algorithm in spec.md §4.4 ("can_beam = !copy_files &&
// single-owner").
func (fb *File) CanBeam(copyFiles bool) bool {
	return !copyFiles && fb.ref.refcount == 1
}
