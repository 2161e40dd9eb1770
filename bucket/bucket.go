// Package bucket implements the uniform handle to a data fragment that the
// Beam transfers: a tagged variant over heap-owned bytes, a file region, a
// generic lazily-materialized reader, or a metadata marker. See spec.md §3
// and §4.1 (component C1).
package bucket

import "errors"

// Unknown is the length sentinel meaning "must be materialised by reading",
// mirroring APR's (apr_size_t)-1.
const Unknown int64 = -1

// Kind tags the variant a Bucket implements.
type Kind int

const (
	KindHeap Kind = iota
	KindFile
	KindMmap
	KindReader
	KindMetadata
	KindProxy
)

func (k Kind) String() string {
	switch k {
	case KindHeap:
		return "heap"
	case KindFile:
		return "file"
	case KindMmap:
		return "mmap"
	case KindReader:
		return "reader"
	case KindMetadata:
		return "metadata"
	case KindProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// MetaKind distinguishes the recognised metadata marker kinds.
type MetaKind int

const (
	MetaEOS MetaKind = iota
	MetaFlush
	MetaError
)

func (k MetaKind) String() string {
	switch k {
	case MetaEOS:
		return "eos"
	case MetaFlush:
		return "flush"
	case MetaError:
		return "error"
	default:
		return "unknown-meta"
	}
}

// Arena is the minimal allocator-identity contract a Bucket's Setaside needs.
// *arena.Arena satisfies this without bucket importing arena (avoids a
// package cycle with beam, which imports both).
type Arena interface {
	Name() string
}

var (
	// ErrWrongThread is returned (or, in production builds, merely invites a
	// debug.Assert) when a bucket's payload is read from a thread whose
	// allocator identity does not match the bucket's, per spec.md §3
	// invariant 1. This repo does not track goroutine identity (Go has no
	// portable concept of "current OS thread" for user code), so this error
	// exists for documentation and for bucket implementations that choose to
	// self-check against an explicitly passed arena.
	ErrWrongThread = errors.New("bucket: payload read from foreign arena")
	// ErrNotSplittable is returned by Split on metadata buckets, which carry
	// no payload to divide, and by any Split given an offset outside
	// [0, Length()].
	ErrNotSplittable = errors.New("bucket: not splittable")
	// ErrSharedFile names the case of a file bucket whose handle has more
	// than one owner. No function returns it: File.CanBeam reports false for
	// such a bucket and the beam copies its contents instead.
	ErrSharedFile = errors.New("bucket: file handle is shared, cannot beam")
)

// Bucket is the uniform handle the Beam operates on.
type Bucket interface {
	// Kind reports which variant this bucket is.
	Kind() Kind
	// Length returns the payload length, or Unknown if it must be resolved
	// by reading first.
	Length() int64
	// Start is the offset of this bucket's payload within its underlying
	// allocation, used to let Split produce a trailing bucket cheaply.
	Start() int64
	// IsMetadata reports whether this is a control marker with no payload.
	IsMetadata() bool
	// MetaKind returns the marker kind; ok is false for non-metadata
	// buckets.
	MetaKind() (kind MetaKind, ok bool)
	// Read materialises and returns the payload. For Heap buckets this is
	// always legal from any goroutine; for File/Mmap/Reader buckets it is
	// only legal on the owning arena's thread until Setaside has rebound
	// the bucket, per spec.md §3.
	Read(blocking bool) ([]byte, error)
	// Split divides the bucket at byte offset `at`, shrinking the receiver
	// in place and returning a new bucket for the trailing remainder.
	Split(at int64) (tail Bucket, err error)
	// Setaside rebinds the bucket's backing allocation to a (the receiver
	// or beam) arena, extending its lifetime beyond the originating one.
	Setaside(a Arena) error
	// Arena returns the arena the bucket was last set aside to, or nil if it
	// has not been set aside (beam proxies always report nil).
	Arena() Arena
}

// Underliner is implemented by beam-internal proxy buckets to expose the
// sender-side bucket they shadow, so MemUsed can see through a proxy to the
// File/Mmap bucket it was created from without package bucket importing
// package beam.
type Underliner interface {
	Underlying() Bucket
}

// MemUsed reports the accounting weight of b for buffer-size purposes, per
// spec.md §4.4's accounting policy: zero-copy File/Mmap buckets (and their
// beam proxies, handled in package beam) cost nothing because their payload
// lives once, on the sender side.
func MemUsed(b Bucket) int64 {
	k := b.Kind()
	if k == KindProxy {
		if u, ok := b.(Underliner); ok {
			if target := u.Underlying(); target != nil {
				k = target.Kind()
			}
		}
	}
	switch k {
	case KindFile, KindMmap:
		return 0
	default:
		if b.Length() == Unknown {
			return 0
		}
		return b.Length()
	}
}
