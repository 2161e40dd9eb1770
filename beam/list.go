package beam

import "github.com/aistore/beam2/bucket"

// blist is a FIFO queue of buckets with O(1) append/remove, playing the role
// of the APR_RING-based send_list/hold_list/purge_list from spec.md §4.2
// (component C2). Go buckets are always held behind a pointer-backed
// interface value, so two Bucket values compare equal with == exactly when
// they name the same underlying bucket — the same identity test the C code
// gets for free from raw pointer comparison (b == proxy->bsender).
type blist struct {
	head, tail *bnode
	n          int
}

type bnode struct {
	b          bucket.Bucket
	prev, next *bnode
	// dead reports whether this hold_list entry may be swept into
	// purge_list: nil for nodes outside hold_list (they're never swept),
	// a constant-true closure for metadata and zero-length entries, or a
	// closure reading a proxyState's refcount for data entries awaiting
	// the last proxy view to release. See Beam.sweepHoldLocked.
	dead func() bool
}

func (l *blist) isEmpty() bool { return l.head == nil }

func (l *blist) len() int { return l.n }

func (l *blist) pushBack(b bucket.Bucket) *bnode {
	nd := &bnode{b: b, prev: l.tail}
	if l.tail != nil {
		l.tail.next = nd
	} else {
		l.head = nd
	}
	l.tail = nd
	l.n++
	return nd
}

func (l *blist) pushBackChecked(b bucket.Bucket, dead func() bool) *bnode {
	nd := l.pushBack(b)
	nd.dead = dead
	return nd
}

func (l *blist) pushFront(b bucket.Bucket) *bnode {
	nd := &bnode{b: b, next: l.head}
	if l.head != nil {
		l.head.prev = nd
	} else {
		l.tail = nd
	}
	l.head = nd
	l.n++
	return nd
}

func (l *blist) front() bucket.Bucket {
	if l.head == nil {
		return nil
	}
	return l.head.b
}

func (l *blist) popFront() bucket.Bucket {
	if l.head == nil {
		return nil
	}
	nd := l.head
	l.remove(nd)
	return nd.b
}

func (l *blist) remove(nd *bnode) {
	if nd.prev != nil {
		nd.prev.next = nd.next
	} else {
		l.head = nd.next
	}
	if nd.next != nil {
		nd.next.prev = nd.prev
	} else {
		l.tail = nd.prev
	}
	nd.prev, nd.next = nil, nil
	l.n--
}

// concat appends all of other's buckets onto l, in order, and empties
// other — the Go analogue of H2_BLIST_CONCAT, used by the aborted/closed
// short-circuit paths in send (spec.md §4.4's move_to_hold). No proxy
// references the moved buckets, so each node is marked always-dead.
func (l *blist) concat(other *blist) {
	for !other.isEmpty() {
		l.pushBackChecked(other.popFront(), func() bool { return true })
	}
}

// drain removes and discards every bucket, the Go equivalent of
// h2_blist_cleanup / r_purge_sent: since buckets carry no destructor of
// their own here, "deleting" one is simply dropping the last reference to
// it and letting the Go garbage collector reclaim it.
func (l *blist) drain() {
	l.head, l.tail, l.n = nil, nil, 0
}

// walk visits every node front-to-back; visit returns false to stop early.
func (l *blist) walk(visit func(nd *bnode) bool) {
	for nd := l.head; nd != nil; {
		next := nd.next
		if !visit(nd) {
			return
		}
		nd = next
	}
}

// sum totals bucket.MemUsed across every bucket in the list, implementing
// calc_buffered from spec.md §4.4: it drives Send's buffer bound,
// GetMemUsed under tx_mem_limits, and the buffered-bytes gauge.
func (l *blist) sum() int64 {
	var total int64
	for nd := l.head; nd != nil; nd = nd.next {
		total += bucket.MemUsed(nd.b)
	}
	return total
}

// length totals raw bucket.Length() (no zero-copy discount), used by
// get_buffered_data_len in the C source, which "should all have
// determinate length" by the time buckets sit in send_list.
func (l *blist) length() int64 {
	var total int64
	for nd := l.head; nd != nil; nd = nd.next {
		if n := nd.b.Length(); n > 0 {
			total += n
		}
	}
	return total
}
