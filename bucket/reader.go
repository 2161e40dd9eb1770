package bucket

import (
	"io"

	"github.com/pkg/errors"
)

// Reader is a bucket whose length is not known up front and whose payload
// must be pulled from an io.Reader — the Go analogue of apr_bucket_pipe or
// apr_bucket_socket, the "Other" variant spec.md §4.1's append_bucket
// algorithm resolves by reading once to materialise a length. Once read, a
// Reader bucket is materialised in place and behaves like Heap from then on.
type Reader struct {
	src      io.Reader
	resolved []byte
	haveLen  bool
	start    int64
	arena    Arena
}

// NewReader wraps src as a bucket of unknown length.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

func (r *Reader) Kind() Kind { return KindReader }

func (r *Reader) Length() int64 {
	if !r.haveLen {
		return Unknown
	}
	return int64(len(r.resolved)) - r.start
}

func (r *Reader) Start() int64              { return r.start }
func (r *Reader) IsMetadata() bool          { return false }
func (r *Reader) MetaKind() (MetaKind, bool) { return 0, false }
func (r *Reader) Arena() Arena              { return r.arena }

// Read resolves the bucket (reading the whole underlying reader to EOF, as
// apr_bucket_read(APR_BLOCK_READ) does for an indeterminate-length bucket)
// on first call, then returns the materialised slice on every call after.
func (r *Reader) Read(bool) ([]byte, error) {
	if !r.haveLen {
		data, err := io.ReadAll(r.src)
		if err != nil {
			return nil, errors.Wrap(err, "bucket: reader materialise")
		}
		r.resolved = data
		r.haveLen = true
	}
	return r.resolved[r.start:], nil
}

// Split is only legal after the bucket has been materialised by Read.
func (r *Reader) Split(at int64) (Bucket, error) {
	if !r.haveLen {
		return nil, errors.New("bucket: split before length resolved")
	}
	if at < 0 || at > r.Length() {
		return nil, ErrNotSplittable
	}
	tail := &Reader{resolved: r.resolved, haveLen: true, start: r.start + at, arena: r.arena}
	r.resolved = r.resolved[:r.start+at]
	return tail, nil
}

// Setaside has no payload-lifetime effect once materialised (the resolved
// slice is heap memory like any Heap bucket); it only updates arena
// bookkeeping.
func (r *Reader) Setaside(a Arena) error {
	r.arena = a
	return nil
}

// AsHeap materialises (if needed) and returns an equivalent *Heap bucket,
// used by append_bucket's "we know of no special shortcut... make it a heap
// bucket" fallback (spec.md §4.4 step 4).
func (r *Reader) AsHeap() (*Heap, error) {
	data, err := r.Read(true)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Heap{data: cp, arena: r.arena}, nil
}
