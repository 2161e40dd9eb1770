package beam

import (
	"github.com/aistore/beam2/bucket"
	"github.com/aistore/beam2/internal/debug"
)

// proxyState is the shared, refcounted record behind every receiver-side
// proxy bucket created from a single sender bucket — the Go analogue of
// h2_beam_proxy. One state is registered in the owning Beam's proxies list
// at creation time; Split produces additional *proxy views sharing this same
// state (bumping refcount) rather than a second registry entry, matching how
// apr_bucket_shared_split in the original source reuses the shared data
// pointer instead of calling h2_beam_bucket_make again.
type proxyState struct {
	beam     *Beam
	sender   bucket.Bucket
	n        int64
	refcount int32
	elem     *proxyNode
}

type proxyNode struct {
	state      *proxyState
	prev, next *proxyNode
}

// proxyRegistry is the FIFO-ish set of live proxyStates for a Beam — the Go
// analogue of the beam->proxies ring.
type proxyRegistry struct {
	head, tail *proxyNode
}

func (r *proxyRegistry) add(s *proxyState) *proxyNode {
	nd := &proxyNode{state: s, prev: r.tail}
	if r.tail != nil {
		r.tail.next = nd
	} else {
		r.head = nd
	}
	r.tail = nd
	return nd
}

func (r *proxyRegistry) remove(nd *proxyNode) {
	if nd.prev != nil {
		nd.prev.next = nd.next
	} else {
		r.head = nd.next
	}
	if nd.next != nil {
		nd.next.prev = nd.prev
	} else {
		r.tail = nd.prev
	}
	nd.prev, nd.next = nil, nil
}

// detachAll visits every live proxyState, detaching it from the beam (nulling
// beam/sender) as it goes — used by Beam.teardown when the binding arena is
// destroyed, mirroring beam_send_cleanup's walk over beam->proxies.
func (r *proxyRegistry) detachAll() {
	for nd := r.head; nd != nil; nd = nd.next {
		nd.state.beam = nil
		nd.state.sender = nil
		nd.state.elem = nil
	}
	r.head, r.tail = nil, nil
}

// proxy is a receiver-side bucket standing in for a sender-side bucket still
// owned by the beam (component C3). Reading it delegates to the sender
// bucket while the beam is alive; once every view sharing its proxyState has
// been Released, the beam is notified (h2_beam_emitted) so the sender bucket
// can move from hold_list to purge_list.
type proxy struct {
	state         *proxyState
	start, length int64
}

func newProxy(b *Beam, sender bucket.Bucket, seq int64) *proxy {
	st := &proxyState{beam: b, sender: sender, n: seq, refcount: 1}
	st.elem = b.proxies.add(st)
	return &proxy{state: st, start: 0, length: sender.Length()}
}

func (p *proxy) Kind() bucket.Kind { return bucket.KindProxy }
func (p *proxy) Length() int64     { return p.length }
func (p *proxy) Start() int64      { return p.start }
func (p *proxy) IsMetadata() bool  { return false }

func (p *proxy) MetaKind() (bucket.MetaKind, bool) { return 0, false }

func (p *proxy) Arena() bucket.Arena { return nil }

// Underlying implements bucket.Underliner so MemUsed can see through to the
// sender bucket's real kind without package bucket depending on package beam.
func (p *proxy) Underlying() bucket.Bucket { return p.state.sender }

func (p *proxy) Read(blocking bool) ([]byte, error) {
	if p.state.sender == nil {
		return nil, ErrDetached
	}
	data, err := p.state.sender.Read(blocking)
	if err != nil {
		return nil, err
	}
	if p.start == 0 && p.length == int64(len(data)) {
		return data, nil
	}
	end := p.start + p.length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[p.start:end], nil
}

// Split divides this view of the proxy, bumping the shared refcount so the
// sender bucket is only released back to the beam once both halves have
// been destroyed.
func (p *proxy) Split(at int64) (bucket.Bucket, error) {
	if at < 0 || at > p.length {
		return nil, bucket.ErrNotSplittable
	}
	b := p.state.beam
	if b != nil {
		b.mu.Lock()
		p.state.refcount++
		b.mu.Unlock()
	} else {
		p.state.refcount++
	}
	tail := &proxy{state: p.state, start: p.start + at, length: p.length - at}
	p.length = at
	return tail, nil
}

func (p *proxy) Setaside(bucket.Arena) error { return nil }

// Release drops this view's reference to the shared proxyState. When the
// last view sharing it is released, the owning beam is notified (emitted)
// so the underlying sender bucket can be moved to purge_list.
func (p *proxy) Release() {
	st := p.state
	b := st.beam
	if b == nil {
		return
	}
	b.mu.Lock()
	st.refcount--
	rc := st.refcount
	b.mu.Unlock()
	debug.Assert(rc >= 0, "proxy refcount underflow", rc)
	if rc <= 0 {
		b.emitted(st)
	}
}
