package beam

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aistore/beam2/arena"
	"github.com/aistore/beam2/bucket"
)

func newTestBeam(t *testing.T, opts Options) (*Beam, *arena.Arena) {
	t.Helper()
	a := arena.New("test", nil)
	b, err := New(a, "test", opts)
	if err != nil {
		t.Fatalf("beam.New: %v", err)
	}
	t.Cleanup(a.Destroy)
	return b, a
}

func heapOf(n int) *bucket.Heap { return bucket.NewHeap(make([]byte, n)) }

// Scenario 1: simple transfer.
func TestSimpleTransfer(t *testing.T) {
	b, _ := newTestBeam(t, Options{MaxBufSize: 1024})

	if _, err := b.Send([]bucket.Bucket{heapOf(100), heapOf(200), heapOf(300)}, Block); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := b.Send([]bucket.Bucket{bucket.NewEOS()}, Block); err != nil {
		t.Fatalf("send eos: %v", err)
	}
	if err := b.Close(SideSender); err != nil {
		t.Fatalf("close: %v", err)
	}

	g := NewBrigade()
	closeSent, err := b.Receive(g, Block, -1)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !closeSent {
		t.Fatal("expected closeSent after draining an EOS")
	}

	var total int64
	sawEOS := false
	for _, bk := range g.Buckets() {
		if mk, ok := bk.MetaKind(); ok {
			if mk != bucket.MetaEOS {
				t.Fatalf("unexpected metadata kind %v", mk)
			}
			sawEOS = true
			continue
		}
		total += bk.Length()
	}
	if total != 600 {
		t.Fatalf("received %d bytes, want 600", total)
	}
	if !sawEOS {
		t.Fatal("expected an EOS marker in the brigade")
	}
	g.Destroy()

	g2 := NewBrigade()
	if _, err := b.Receive(g2, Block, -1); err != io.EOF {
		t.Fatalf("second receive err = %v, want io.EOF", err)
	}

	if b.GetBuffered() != 0 {
		t.Fatalf("GetBuffered = %d, want 0", b.GetBuffered())
	}
}

// Scenario 2: backpressure.
func TestBackpressure(t *testing.T) {
	b, _ := newTestBeam(t, Options{MaxBufSize: 100})

	var blocked int32
	var mu sync.Mutex
	b.OnSendBlock(func(any, *Beam) {
		mu.Lock()
		blocked++
		mu.Unlock()
	}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := b.Send([]bucket.Bucket{heapOf(250)}, Block)
		done <- err
	}()

	drain := func(want int64) {
		t.Helper()
		for {
			if b.GetBuffered() > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		g := NewBrigade()
		if _, err := b.Receive(g, Block, want); err != nil {
			t.Fatalf("receive: %v", err)
		}
		var n int64
		for _, bk := range g.Buckets() {
			n += bk.Length()
		}
		if n != want {
			t.Fatalf("drained %d bytes, want %d", n, want)
		}
		g.Destroy()
	}

	drain(100)
	drain(100)
	drain(50)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("send: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send did not complete after full drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if blocked == 0 {
		t.Fatal("expected OnSendBlock to fire at least once")
	}
}

// Scenario 3: non-blocking receive on an open, empty beam.
func TestNonBlockingEmptyReceive(t *testing.T) {
	b, _ := newTestBeam(t, Options{})

	g := NewBrigade()
	_, err := b.Receive(g, NonBlock, -1)
	if err != ErrWouldBlock {
		t.Fatalf("err = %v, want ErrWouldBlock", err)
	}
	if g.Len() != 0 {
		t.Fatalf("brigade has %d buckets, want 0", g.Len())
	}
}

// Scenario 4: abort mid-flight.
func TestAbortMidFlight(t *testing.T) {
	b, _ := newTestBeam(t, Options{MaxBufSize: 0})

	if _, err := b.Send([]bucket.Bucket{heapOf(500)}, Block); err != nil {
		t.Fatalf("send: %v", err)
	}

	g := NewBrigade()
	if _, err := b.Receive(g, Block, 200); err != nil {
		t.Fatalf("receive: %v", err)
	}
	g.Destroy()

	b.Abort(SideReceiver)

	if _, err := b.Send([]bucket.Bucket{heapOf(10)}, Block); err != ErrAborted {
		t.Fatalf("post-abort send err = %v, want ErrAborted", err)
	}

	g2 := NewBrigade()
	if _, err := b.Receive(g2, Block, -1); err != ErrAborted {
		t.Fatalf("post-abort receive err = %v, want ErrAborted", err)
	}
}

// Scenario 5: file zero-copy transfer, then proxy release frees the sender bucket.
func TestFileZeroCopyThenProxyRelease(t *testing.T) {
	b, _ := newTestBeam(t, Options{CopyFiles: false})

	f, err := os.CreateTemp(t.TempDir(), "beam-file-*")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	const size = 10 << 20
	if _, err := f.Write(make([]byte, size)); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Send([]bucket.Bucket{bucket.NewFile(f, 0, size)}, Block); err != nil {
		t.Fatalf("send: %v", err)
	}
	if b.GetMemUsed() != 0 {
		t.Fatalf("GetMemUsed = %d, want 0 (tx_mem_limits default on)", b.GetMemUsed())
	}

	g := NewBrigade()
	if _, err := b.Receive(g, Block, -1); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("brigade has %d buckets, want 1", g.Len())
	}
	if b.GetMemUsed() != 0 {
		t.Fatalf("GetMemUsed after receive = %d, want 0", b.GetMemUsed())
	}

	if _, err := g.Buckets()[0].Read(true); err != nil {
		t.Fatalf("proxy read: %v", err)
	}

	g.Destroy()

	// The sender's next Send call drains purge_list, freeing the file bucket.
	if _, err := b.Send(nil, Block); err != nil {
		t.Fatalf("send (drain purge): %v", err)
	}
}

// Scenario 6: out-of-order proxy drop — data may not jump metadata.
func TestOutOfOrderProxyDrop(t *testing.T) {
	b, _ := newTestBeam(t, Options{})

	hdrA := heapOf(10)
	m := bucket.NewFlush()
	hdrB := heapOf(10)
	if _, err := b.Send([]bucket.Bucket{hdrA, m, hdrB}, Block); err != nil {
		t.Fatalf("send: %v", err)
	}

	g := NewBrigade()
	if _, err := b.Receive(g, Block, -1); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("brigade has %d buckets, want 3", g.Len())
	}
	bb := g.Buckets()
	pA, pM, pB := bb[0], bb[1], bb[2]

	releaseOne(t, pB)
	if b.holdList.len() != 3 {
		t.Fatalf("hold_list len = %d, want 3 (A must stay, blocking the sweep)", b.holdList.len())
	}

	releaseOne(t, pA)
	if b.holdList.len() != 0 {
		t.Fatalf("hold_list len = %d, want 0 after A's drop sweeps A, M and the already-dead B", b.holdList.len())
	}
	if b.purgeList.len() != 3 {
		t.Fatalf("purge_list len = %d, want 3", b.purgeList.len())
	}
	_ = pM
}

func releaseOne(t *testing.T, b bucket.Bucket) {
	t.Helper()
	r, ok := b.(releaser)
	if !ok {
		t.Fatalf("%T does not implement releaser", b)
	}
	r.Release()
}
