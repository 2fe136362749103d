package pending

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/tilesim/mem/coherence"
)

var _ = Describe("Queue", func() {
	var q *Queue

	BeforeEach(func() {
		q = NewQueue()
	})

	It("should keep one active transaction per address", func() {
		r1 := &Request{Type: coherence.ReqRead, Address: 0x40, Requester: 0}
		r2 := &Request{Type: coherence.ReqWrite, Address: 0x40, Requester: 1}
		r3 := &Request{Type: coherence.ReqRead, Address: 0x80, Requester: 2}

		Expect(q.Enqueue(r1)).To(BeTrue())
		Expect(q.Enqueue(r2)).To(BeFalse())
		Expect(q.Enqueue(r3)).To(BeTrue())

		Expect(q.Active(0x40)).To(BeIdenticalTo(r1))
		Expect(q.Active(0x80)).To(BeIdenticalTo(r3))
		Expect(q.Count(0x40)).To(Equal(2))
		Expect(q.Len()).To(Equal(3))
		Expect(q.Addresses()).To(Equal([]uint64{0x40, 0x80}))
	})

	It("should dequeue in arrival order", func() {
		reqs := make([]*Request, 4)
		for i := range reqs {
			reqs[i] = &Request{Address: 0x40, Requester: coherence.TileID(i)}
			q.Enqueue(reqs[i])
		}

		for i := 1; i < 4; i++ {
			Expect(q.DequeueNext(0x40)).To(BeIdenticalTo(reqs[i]))
		}

		Expect(q.DequeueNext(0x40)).To(BeNil())
		Expect(q.Busy(0x40)).To(BeFalse())
		Expect(q.Len()).To(BeZero())
	})

	It("should panic when dequeuing an idle address", func() {
		Expect(func() { q.DequeueNext(0x40) }).To(Panic())
	})

	Context("when waiting for named senders", func() {
		BeforeEach(func() {
			q.Enqueue(&Request{Address: 0x40})
			q.ExpectAcks(0x40, coherence.CacheInvalid,
				[]coherence.TileID{1, 3})
		})

		It("should complete when every sender answered", func() {
			Expect(q.IsExpected(0x40, 1)).To(BeTrue())
			Expect(q.IsExpected(0x40, 2)).To(BeFalse())

			Expect(q.AckReceived(0x40, 3)).To(BeFalse())
			Expect(q.AckReceived(0x40, 1)).To(BeTrue())
			Expect(q.Awaiting(0x40)).To(BeNil())
		})

		It("should panic on an ack from another tile", func() {
			Expect(func() { q.AckReceived(0x40, 2) }).To(Panic())
		})

		It("should panic on a second ack from one tile", func() {
			q.AckReceived(0x40, 1)
			Expect(func() { q.AckReceived(0x40, 1) }).To(Panic())
		})

		It("should not wait twice", func() {
			Expect(func() {
				q.ExpectAcks(0x40, coherence.CacheInvalid,
					[]coherence.TileID{0})
			}).To(Panic())
		})
	})

	It("should count broadcast answers", func() {
		q.Enqueue(&Request{Address: 0x40})
		q.ExpectBroadcastAcks(0x40, coherence.CacheInvalid, 3, false)

		await := q.Awaiting(0x40)
		Expect(await.Broadcast).To(BeTrue())
		Expect(await.CountWritebacks).To(BeTrue())

		Expect(q.AckReceived(0x40, 5)).To(BeFalse())
		Expect(q.AckReceived(0x40, 0)).To(BeFalse())
		Expect(q.AckReceived(0x40, 7)).To(BeTrue())
		Expect(q.IsExpected(0x40, 1)).To(BeFalse())
	})

	It("should panic on acks without a transaction", func() {
		Expect(func() { q.AckReceived(0x40, 0) }).To(Panic())
	})
})
