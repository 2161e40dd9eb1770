package beam

import (
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aistore/beam2/arena"
	"github.com/aistore/beam2/bucket"
)

var _ = Describe("Close and Abort", func() {
	var (
		a *arena.Arena
		b *Beam
	)

	BeforeEach(func() {
		a = arena.New("suite", nil)
		var err error
		b, err = New(a, "suite", Options{})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		a.Destroy()
	})

	Describe("sender close", func() {
		It("lets the receiver drain then observe EOF", func() {
			_, err := b.Send([]bucket.Bucket{bucket.NewHeap([]byte("hi"))}, Block)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Close(SideSender)).To(Succeed())
			Expect(b.IsClosed()).To(BeTrue())

			g := NewBrigade()
			closeSent, err := b.Receive(g, Block, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(closeSent).To(BeTrue())
			g.Destroy()

			g2 := NewBrigade()
			_, err = b.Receive(g2, Block, -1)
			Expect(err).To(Equal(io.EOF))
		})

		It("silently discards sends after close", func() {
			Expect(b.Close(SideSender)).To(Succeed())
			n, err := b.Send([]bucket.Bucket{bucket.NewHeap([]byte("late"))}, Block)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(4))
			Expect(b.GetBuffered()).To(BeZero(), "data after close must never reach send_list")
		})
	})

	Describe("receiver close", func() {
		// Preserved deliberately per the open question in SPEC_FULL.md:
		// the source this was modeled on sets the aborted flag when the
		// receiver closes, so Close(SideReceiver) returns ErrAborted
		// rather than nil.
		It("returns ErrAborted, matching observable behavior of the source", func() {
			err := b.Close(SideReceiver)
			Expect(err).To(Equal(ErrAborted))
			Expect(b.IsAborted()).To(BeTrue())
		})

		It("rejects further sends", func() {
			Expect(b.Close(SideReceiver)).To(Equal(ErrAborted))
			_, err := b.Send([]bucket.Bucket{bucket.NewHeap([]byte("x"))}, Block)
			Expect(err).To(Equal(ErrAborted))
		})
	})

	Describe("abort", func() {
		It("is sticky and dominates subsequent operations", func() {
			b.Abort(SideSender)
			Expect(b.IsAborted()).To(BeTrue())

			_, err := b.Send([]bucket.Bucket{bucket.NewHeap([]byte("x"))}, Block)
			Expect(err).To(Equal(ErrAborted))

			g := NewBrigade()
			_, err = b.Receive(g, Block, -1)
			Expect(err).To(Equal(ErrAborted))
		})

		It("wakes a blocked sender", func() {
			small, err := New(a, "small", Options{MaxBufSize: 10})
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() {
				_, serr := small.Send([]bucket.Bucket{bucket.NewHeap(make([]byte, 100))}, Block)
				done <- serr
			}()

			Eventually(func() bool { return small.GetBuffered() > 0 }).Should(BeTrue())
			small.Abort(SideSender)

			Eventually(done).Should(Receive(Equal(ErrAborted)))
		})
	})
})
