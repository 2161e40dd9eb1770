// Package beam implements a thread-to-thread data pipe conveying a
// heterogeneous sequence of buckets from a sender goroutine to a receiver
// goroutine without copying payloads whose lifetime the Beam can safely
// govern. See DESIGN.md's "C4 — Beam core" section for how the algorithms
// in this file are laid out.
package beam

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/teris-io/shortid"
	atomic "go.uber.org/atomic"

	"github.com/aistore/beam2/arena"
	"github.com/aistore/beam2/bucket"
	"github.com/aistore/beam2/internal/cos"
	"github.com/aistore/beam2/internal/nlog"
)

var nextID atomic.Int64

// Blocking selects whether Send/Receive/WaitEmpty suspend the calling
// goroutine or return ErrWouldBlock immediately.
type Blocking int

const (
	Block Blocking = iota
	NonBlock
)

// Side identifies which end of a Beam is calling Close or Abort, since the
// two sides have different semantics for both (spec.md §4.4 close/abort
// tables).
type Side int

const (
	SideSender Side = iota
	SideReceiver
)

// ConsumedEventFunc and ConsumedBytesFunc are the two on_consumed callback
// variants: one fires whenever consumption is reported, the other reports
// the number of newly-consumed bytes.
type ConsumedEventFunc func(ctx any, b *Beam)
type ConsumedBytesFunc func(ctx any, b *Beam, n int64)

// EmptyFunc is the on_was_empty callback: Send invokes it when it adds data
// to a send_list that was empty, a sender Close invokes it when send_list is
// empty, and a sender Abort invokes it when it discards a non-empty
// send_list.
type EmptyFunc func(ctx any, b *Beam)

// SendBlockFunc is invoked the first time a blocking Send suspends waiting
// for buffer space.
type SendBlockFunc func(ctx any, b *Beam)

// Options configures a new Beam. The zero value means unbounded buffering,
// infinite timeout, zero-copy file transfer enabled, and tx_mem_limits
// accounting enabled (NoTxMemLimits defaults false, i.e. limits are on).
type Options struct {
	MaxBufSize    int64
	Timeout       time.Duration
	CopyFiles     bool
	NoTxMemLimits bool
}

// Beam is a strict FIFO pipe with at-most-one sender and at-most-one
// receiver (spec.md §1 non-goals). All mutable state is guarded by mu; a
// single condition variable signals every state transition a waiter might
// care about, woken with Broadcast (never Signal) so every waiter
// re-evaluates its own predicate, per spec.md §5.
type Beam struct {
	id   int64
	name string

	mu   sync.Mutex
	cond *sync.Cond

	arena      *arena.Arena
	unregister func()

	sendList  blist
	holdList  blist
	purgeList blist
	proxies   proxyRegistry

	maxBufSize  int64
	timeout     time.Duration
	copyFiles   bool
	txMemLimits bool

	closed    bool
	aborted   bool
	closeSent bool

	sentBytes         int64
	receivedBytes     int64
	consBytesReported int64
	bucketsSent       int64

	onConsumedEvent ConsumedEventFunc
	onConsumedBytes ConsumedBytesFunc
	consumedCtx     any

	onWasEmpty    EmptyFunc
	onWasEmptyCtx any

	onSendBlock    SendBlockFunc
	onSendBlockCtx any
}

// New creates a Beam bound to parent: parent's destruction runs the Beam's
// teardown as a pre-cleanup, detaching every live proxy (spec.md §4.6).
func New(parent *arena.Arena, tag string, opts Options) (*Beam, error) {
	if parent == nil {
		return nil, errors.New("beam: nil arena")
	}
	sid, err := shortid.Generate()
	if err != nil {
		return nil, errors.Wrap(err, "beam: generate name")
	}
	b := &Beam{
		id:          nextID.Inc(),
		name:        tag + "-" + sid,
		arena:       parent,
		maxBufSize:  opts.MaxBufSize,
		timeout:     opts.Timeout,
		copyFiles:   opts.CopyFiles,
		txMemLimits: !opts.NoTxMemLimits,
	}
	b.cond = sync.NewCond(&b.mu)
	b.unregister = parent.OnPreCleanup(b.teardown)
	beamsCreated.Inc()
	if nlog.FastV(4, "beam") {
		nlog.Infof("beam: created %s (arena=%s max_buf=%d timeout=%s)", b.name, parent.Name(), b.maxBufSize, b.timeout)
	}
	return b, nil
}

func (b *Beam) ID() int64     { return b.id }
func (b *Beam) Name() string  { return b.name }
func (b *Beam) Arena() string { return b.arena.Name() }

// Destroy unregisters the arena pre-cleanup (so a later, legitimate arena
// teardown doesn't run it twice) and tears the Beam down immediately — the
// explicit half of h2_beam_destroy.
func (b *Beam) Destroy() {
	if b.unregister != nil {
		b.unregister()
	}
	b.teardown()
}

// teardown is the C6 lifetime-binder pre-cleanup: it detaches every live
// proxy and frees all three lists, run before the binding arena is
// destroyed (or explicitly via Destroy).
func (b *Beam) teardown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.proxies.detachAll()
	b.sendList.drain()
	b.holdList.drain()
	b.purgeList.drain()
	b.aborted = true
	b.cond.Broadcast()
}

// BufferSizeSet updates the max_buf_size policy; 0 means unbounded.
func (b *Beam) BufferSizeSet(n int64) {
	b.mu.Lock()
	b.maxBufSize = n
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *Beam) BufferSizeGet() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxBufSize
}

// SetCopyFiles disables zero-copy file/mmap transfer when v is true.
func (b *Beam) SetCopyFiles(v bool) {
	b.mu.Lock()
	b.copyFiles = v
	b.mu.Unlock()
}

// TimeoutSet updates the blocking-wait timeout; 0 means infinite.
func (b *Beam) TimeoutSet(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

func (b *Beam) OnConsumed(event ConsumedEventFunc, bytesFn ConsumedBytesFunc, ctx any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConsumedEvent = event
	b.onConsumedBytes = bytesFn
	b.consumedCtx = ctx
}

func (b *Beam) OnWasEmpty(fn EmptyFunc, ctx any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onWasEmpty = fn
	b.onWasEmptyCtx = ctx
}

func (b *Beam) OnSendBlock(fn SendBlockFunc, ctx any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSendBlock = fn
	b.onSendBlockCtx = ctx
}

// GetBuffered reports the raw (non-zero-copy-discounted) byte length
// currently sitting in send_list.
func (b *Beam) GetBuffered() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendList.length()
}

// GetMemUsed reports send_list's accounting weight under the tx_mem_limits
// policy: zero-copy File/Mmap buckets count as 0 when the policy is
// enabled (the default), their nominal length otherwise.
func (b *Beam) GetMemUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.txMemLimits {
		return b.sendList.sum()
	}
	return b.sendList.length()
}

func (b *Beam) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendList.isEmpty()
}

func (b *Beam) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Beam) IsAborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}

// Snapshot reports a point-in-time set of named counters for this beam,
// mirroring the (name, value) stats pairs aistore reports through cos.NamedVal64.
func (b *Beam) Snapshot() []cos.NamedVal64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return []cos.NamedVal64{
		{Name: "beam.buffered", Value: b.sendList.length()},
		{Name: "beam.mem_used", Value: b.sendList.sum()},
		{Name: "beam.sent.bytes", Value: b.sentBytes},
		{Name: "beam.received.bytes", Value: b.receivedBytes},
		{Name: "beam.sent.buckets", Value: b.bucketsSent},
	}
}

// DumpSnapshot marshals Snapshot to JSON for debug logging.
func (b *Beam) DumpSnapshot() []byte { return cos.MustMarshal(b.Snapshot()) }

// ReportConsumption publishes the current buffered-bytes gauge and, if new
// bytes have been received since the last report, invokes the on_consumed
// callbacks. Either side may call it; Send and Receive also call it
// internally at the points spec.md §4.4 specifies.
func (b *Beam) ReportConsumption() {
	b.mu.Lock()
	b.reportConsumedLocked()
	b.mu.Unlock()
}

// reportConsumedLocked must be called with mu held; it may unlock, invoke
// callbacks, and relock, per the callback-discipline rule in spec.md §5.
func (b *Beam) reportConsumedLocked() {
	bufferedBytes.Set(float64(b.sendList.sum()))
	delta := b.receivedBytes - b.consBytesReported
	if delta <= 0 {
		return
	}
	b.consBytesReported = b.receivedBytes
	event, bytesFn, ctx := b.onConsumedEvent, b.onConsumedBytes, b.consumedCtx
	if event == nil && bytesFn == nil {
		return
	}
	b.mu.Unlock()
	if event != nil {
		event(ctx, b)
	}
	if bytesFn != nil {
		bytesFn(ctx, b, delta)
	}
	b.mu.Lock()
}

func (b *Beam) fireOnWasEmpty() {
	b.mu.Lock()
	fn, ctx := b.onWasEmpty, b.onWasEmptyCtx
	b.mu.Unlock()
	if fn != nil {
		fn(ctx, b)
	}
}

func (b *Beam) fireOnSendBlock() {
	b.mu.Lock()
	fn, ctx := b.onSendBlock, b.onSendBlockCtx
	b.mu.Unlock()
	sendBlockedTotal.Inc()
	if fn != nil {
		fn(ctx, b)
	}
}

// waitPredicate blocks the caller until pred holds, the timeout elapses, or
// a non-blocking caller is told to retry later. Must be called with mu
// held; returns with mu held in all cases.
func (b *Beam) waitPredicate(block Blocking, pred func() bool) error {
	if pred() {
		return nil
	}
	if block == NonBlock {
		return ErrWouldBlock
	}
	var deadline time.Time
	var timer *time.Timer
	if b.timeout > 0 {
		deadline = time.Now().Add(b.timeout)
		timer = time.AfterFunc(b.timeout, b.cond.Broadcast)
		defer timer.Stop()
	}
	for !pred() {
		b.cond.Wait()
		if !deadline.IsZero() && !pred() && !time.Now().Before(deadline) {
			return ErrTimedOut
		}
	}
	return nil
}

// purgeSentLocked drains purge_list, the sender-thread-only r_purge_sent
// step run at the top of every Send and at Close/Abort.
func (b *Beam) purgeSentLocked() { b.purgeList.drain() }

func bucketCounts(nb bucket.Bucket, copyFiles bool) bool {
	if nb.IsMetadata() {
		return false
	}
	switch v := nb.(type) {
	case *bucket.File:
		return !v.CanBeam(copyFiles)
	case *bucket.Mmap:
		return !v.CanBeam(copyFiles)
	}
	return true
}

// Send enqueues bb onto send_list, implementing the algorithm of spec.md
// §4.4 "send algorithm": purge, short-circuit on aborted/closed, then
// append each bucket, blocking (or not) on buffer space as needed.
func (b *Beam) Send(bb []bucket.Bucket, block Blocking) (int64, error) {
	b.mu.Lock()
	b.purgeSentLocked()

	if b.aborted {
		b.holdList.concat(toBlist(bb))
		b.mu.Unlock()
		return 0, ErrAborted
	}
	if b.closed {
		var n int64
		for _, nb := range bb {
			if l := nb.Length(); l > 0 {
				n += l
			}
		}
		b.holdList.concat(toBlist(bb))
		b.mu.Unlock()
		return n, nil
	}

	wasEmpty := b.sendList.isEmpty()
	var sent int64
	blockedOnce := false

	idx := 0
	for idx < len(bb) {
		nb := bb[idx]
		if b.maxBufSize > 0 && bucketCounts(nb, b.copyFiles) {
			free := b.maxBufSize - b.sendList.sum()
			if free <= 0 {
				b.cond.Broadcast()
				if !blockedOnce && block == Block {
					blockedOnce = true
					b.mu.Unlock()
					b.fireOnSendBlock()
					b.mu.Lock()
				}
				if err := b.waitPredicate(block, func() bool {
					return b.aborted || b.sendList.sum() < b.maxBufSize
				}); err != nil {
					b.mu.Unlock()
					return sent, err
				}
				if b.aborted {
					b.mu.Unlock()
					return sent, ErrAborted
				}
				continue
			}
			if l := nb.Length(); l != bucket.Unknown && l > free && free > 0 {
				if tail, err := nb.Split(free); err == nil {
					rest := make([]bucket.Bucket, 0, len(bb)-idx)
					rest = append(rest, bb[:idx+1]...)
					rest = append(rest, tail)
					rest = append(rest, bb[idx+1:]...)
					bb = rest
				}
			}
		}

		n, err := b.appendLocked(nb)
		if err != nil {
			b.mu.Unlock()
			return sent, err
		}
		sent += n
		b.sentBytes += n
		if n > 0 {
			bytesSentTotal.Add(float64(n))
		}
		if wasEmpty && n > 0 {
			wasEmpty = false
			b.mu.Unlock()
			b.fireOnWasEmpty()
			b.mu.Lock()
		}
		idx++
	}

	b.cond.Broadcast()
	b.reportConsumedLocked()
	b.mu.Unlock()
	return sent, nil
}

func toBlist(bb []bucket.Bucket) *blist {
	l := &blist{}
	for _, nb := range bb {
		l.pushBack(nb)
	}
	return l
}

// appendLocked implements append_bucket (spec.md §4.4 steps 1-4) for a
// single bucket: metadata is rebound and enqueued as-is; Heap buckets and
// zero-copy-eligible File/Mmap buckets are rebound; everything else is read
// and replaced with a heap-owned copy.
func (b *Beam) appendLocked(nb bucket.Bucket) (int64, error) {
	if nb.IsMetadata() {
		if err := nb.Setaside(b.arena); err != nil {
			return 0, err
		}
		b.sendList.pushBack(nb)
		return 0, nil
	}

	switch v := nb.(type) {
	case *bucket.File:
		if v.CanBeam(b.copyFiles) {
			if err := v.Setaside(b.arena); err != nil {
				return 0, err
			}
			b.sendList.pushBack(v)
			bucketsSentTotal.WithLabelValues("file").Inc()
			return v.Length(), nil
		}
		return b.appendMaterializedLocked(v)
	case *bucket.Mmap:
		if v.CanBeam(b.copyFiles) {
			if err := v.Setaside(b.arena); err != nil {
				return 0, err
			}
			b.sendList.pushBack(v)
			bucketsSentTotal.WithLabelValues("mmap").Inc()
			return v.Length(), nil
		}
		return b.appendMaterializedLocked(v)
	case *bucket.Heap:
		if v.Length() == 0 {
			return 0, nil
		}
		if err := v.Setaside(b.arena); err != nil {
			return 0, err
		}
		b.sendList.pushBack(v)
		bucketsSentTotal.WithLabelValues("heap").Inc()
		return v.Length(), nil
	case *bucket.Reader:
		if v.Length() == bucket.Unknown {
			if _, err := v.Read(true); err != nil {
				return 0, err
			}
		}
		if v.Length() == 0 {
			return 0, nil
		}
		hv, err := v.AsHeap()
		if err != nil {
			return 0, err
		}
		if err := hv.Setaside(b.arena); err != nil {
			return 0, err
		}
		b.sendList.pushBack(hv)
		bucketsSentTotal.WithLabelValues("reader").Inc()
		return hv.Length(), nil
	default:
		return b.appendMaterializedLocked(nb)
	}
}

// appendMaterializedLocked reads nb to exhaustion and replaces it with an
// arena-bound heap copy — the "we know of no special shortcut, make it a
// heap bucket" fallback.
func (b *Beam) appendMaterializedLocked(nb bucket.Bucket) (int64, error) {
	data, err := nb.Read(true)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	hv := bucket.NewHeap(cp)
	if err := hv.Setaside(b.arena); err != nil {
		return 0, err
	}
	b.sendList.pushBack(hv)
	bucketsSentTotal.WithLabelValues("materialized").Inc()
	return hv.Length(), nil
}

// Receive drains send_list into dest, implementing spec.md §4.4's receive
// algorithm. An overshooting data bucket is split at the remain boundary and
// its tail pushed back onto send_list's front rather than into a separate
// recv_buffer (see DESIGN.md's recorded deviations). It returns closeSent
// (whether the receiver has now observed and emitted the stream's
// end-of-stream marker) and an error which is io.EOF once the beam is closed
// and fully drained, ErrAborted, ErrWouldBlock, or ErrTimedOut.
func (b *Beam) Receive(dest *Brigade, block Blocking, maxBytes int64) (closeSent bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.aborted {
			return false, ErrAborted
		}

		remain := maxBytes
		movedAny := false

		for !b.sendList.isEmpty() {
			nb := b.sendList.front()

			// Only a positive-length data head can exhaust the budget and
			// stop the drain; metadata and zero-length buckets never
			// consume remain; so a trailing marker immediately behind a
			// bucket that exactly exhausts remain is still drained in this
			// same call instead of being stranded until the next Receive.
			if !nb.IsMetadata() {
				if l := nb.Length(); l != bucket.Unknown && l > 0 && maxBytes > 0 && remain <= 0 {
					break
				}
			}

			if nb.IsMetadata() {
				b.sendList.popFront()
				meta, _ := nb.(*bucket.Metadata)
				if mk, _ := meta.MetaKind(); mk == bucket.MetaEOS {
					dest.Append(bucket.NewEOS())
					b.closeSent = true
				} else {
					dest.Append(meta.Clone())
				}
				b.holdList.pushBackChecked(nb, func() bool { return true })
				movedAny = true
				continue
			}

			length := nb.Length()
			if length == 0 {
				b.sendList.popFront()
				b.holdList.pushBackChecked(nb, func() bool { return true })
				continue
			}

			var overflow bucket.Bucket
			if maxBytes > 0 && remain > 0 && length != bucket.Unknown && length > remain {
				if tail, serr := nb.Split(remain); serr == nil {
					overflow = tail
					length = remain
				}
			}
			b.sendList.popFront()
			if overflow != nil {
				b.sendList.pushFront(overflow)
			}

			if fb, ok := nb.(*bucket.File); ok {
				fb.DisableMmap()
			}

			if outs, ok := runConverters(nb); ok {
				for _, ob := range outs {
					dest.Append(ob)
				}
				b.holdList.pushBackChecked(nb, func() bool { return true })
			} else {
				seq := b.bucketsSent
				b.bucketsSent++
				p := newProxy(b, nb, seq)
				dest.Append(p)
				st := p.state
				b.holdList.pushBackChecked(nb, func() bool { return st.refcount <= 0 })
			}

			b.receivedBytes += length
			if maxBytes > 0 {
				remain -= length
			}
			movedAny = true
		}

		if b.closed && b.sendList.isEmpty() && !b.closeSent {
			dest.Append(bucket.NewEOS())
			b.closeSent = true
			movedAny = true
		}

		if movedAny {
			b.reportConsumedLocked()
			b.cond.Broadcast()
			return b.closeSent, nil
		}
		if b.closed {
			return true, io.EOF
		}
		if werr := b.waitPredicate(block, func() bool {
			return b.aborted || !b.sendList.isEmpty() || b.closed
		}); werr != nil {
			return false, werr
		}
	}
}

// WaitEmpty blocks until send_list drains (or the beam aborts).
func (b *Beam) WaitEmpty(block Blocking) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.waitPredicate(block, func() bool {
		return b.aborted || b.sendList.isEmpty()
	}); err != nil {
		return err
	}
	if b.aborted {
		return ErrAborted
	}
	return nil
}

// Close implements spec.md §4.4's close-semantics-by-initiator table. A
// sender close is a normal EOS-equivalent state transition; per the
// open question in spec.md §9, a receiver close is treated as an abort
// and returns ErrAborted — preserved deliberately, not "fixed" to return
// success, to match observable behavior of the source this was modeled on.
func (b *Beam) Close(side Side) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch side {
	case SideSender:
		if !b.closed {
			b.closed = true
			beamsClosed.Inc()
		}
		b.purgeSentLocked()
		b.reportConsumedLocked()
		wasEmpty := b.sendList.isEmpty()
		b.cond.Broadcast()
		if wasEmpty {
			b.mu.Unlock()
			b.fireOnWasEmpty()
			b.mu.Lock()
		}
		return nil
	case SideReceiver:
		if !b.aborted {
			b.aborted = true
			beamsAborted.Inc()
		}
		b.cond.Broadcast()
		return ErrAborted
	}
	return nil
}

// Abort is sticky: once set, no further data may be enqueued or
// transferred (spec.md §3 invariant 5).
func (b *Beam) Abort(side Side) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.aborted {
		b.cond.Broadcast()
		return
	}
	b.aborted = true
	beamsAborted.Inc()

	switch side {
	case SideSender:
		b.purgeSentLocked()
		wasEmptyBefore := b.sendList.isEmpty()
		b.sendList.drain()
		b.onConsumedEvent = nil
		b.onConsumedBytes = nil
		b.cond.Broadcast()
		if !wasEmptyBefore {
			b.mu.Unlock()
			b.fireOnWasEmpty()
			b.mu.Lock()
		}
	case SideReceiver:
		b.cond.Broadcast()
	}
}

// emitted is the deferred-cleanup protocol pivot (spec.md §4.4 "emitted"):
// invoked once the last view of a receiver-side proxy has been released, it
// removes the proxy's registry entry, detaches its sender reference, and
// sweeps the now-possibly-dead prefix of hold_list into purge_list.
func (b *Beam) emitted(state *proxyState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state.elem != nil {
		b.proxies.remove(state.elem)
		state.elem = nil
	}
	state.sender = nil
	b.sweepHoldLocked()
}

// sweepHoldLocked moves the leading run of hold_list entries whose dead
// predicate now holds true into purge_list, stopping at the first entry
// that is still referenced — this is the Go-idiomatic equivalent of
// walking hold_list from the head looking for a specific just-released
// target: since every entry (metadata, zero-length, or proxy-backed data)
// carries its own liveness check, a generalized dead-prefix sweep produces
// exactly the same externally observable ordering without needing a
// pointer-identity search, and it never leaves an already-dead entry
// permanently stuck behind a still-live one (it gets swept on the next
// call that clears the blocker). Must be called with mu held.
func (b *Beam) sweepHoldLocked() {
	for {
		nd := b.holdList.head
		if nd == nil || nd.dead == nil || !nd.dead() {
			break
		}
		b.holdList.remove(nd)
		b.purgeList.pushBack(nd.b)
	}
	b.cond.Broadcast()
}
