package beam

import "github.com/aistore/beam2/bucket"

// releaser is implemented by buckets that must notify something on
// destruction; currently only *proxy, but kept as an interface so Brigade
// need not import the concrete proxy type.
type releaser interface {
	Release()
}

// Brigade is an ordered batch of buckets, the unit of bulk transfer at the
// Beam's boundary (spec.md GLOSSARY "Brigade"). It stands in for the
// apr_bucket_brigade the original source passes to send/receive: callers
// build one to hand to Send, and receive appends into one supplied by the
// caller.
type Brigade struct {
	buckets []bucket.Bucket
}

// NewBrigade returns an empty brigade, optionally pre-seeded with bb.
func NewBrigade(bb ...bucket.Bucket) *Brigade {
	g := &Brigade{}
	g.buckets = append(g.buckets, bb...)
	return g
}

// Append adds b to the end of the brigade.
func (g *Brigade) Append(b bucket.Bucket) { g.buckets = append(g.buckets, b) }

// Buckets returns the brigade's contents in order. The slice is shared;
// callers must not retain it across a Destroy.
func (g *Brigade) Buckets() []bucket.Bucket { return g.buckets }

// Len reports how many buckets the brigade holds.
func (g *Brigade) Len() int { return len(g.buckets) }

// Empty reports whether the brigade holds no buckets.
func (g *Brigade) Empty() bool { return len(g.buckets) == 0 }

// Destroy releases every bucket in the brigade — for a receiver-side proxy,
// this is the destructor that drives the emitted protocol (spec.md §4.4);
// non-proxy buckets are simply dropped for the garbage collector to
// reclaim, mirroring apr_brigade_destroy walking each bucket's destroy hook.
// The brigade is left empty after this call.
func (g *Brigade) Destroy() {
	for _, b := range g.buckets {
		if r, ok := b.(releaser); ok {
			r.Release()
		}
	}
	g.buckets = g.buckets[:0]
}
