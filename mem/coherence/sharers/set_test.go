package sharers

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/tilesim/mem/coherence"
)

func newSet(s Scheme, k, tiles int) *Set {
	return MakeFactoryBuilder().
		WithScheme(s).
		WithMaxHWSharers(k).
		WithNumTiles(tiles).
		WithSoftwareTrapPenalty(100).
		Build().
		New()
}

var _ = Describe("Set", func() {
	Context("full map", func() {
		var s *Set

		BeforeEach(func() {
			s = newSet(FullMap, 0, 8)
		})

		It("should track every tile exactly", func() {
			for i := 0; i < 8; i++ {
				Expect(s.AddSharer(coherence.TileID(i))).To(BeTrue())
			}

			all, ids := s.SharersList()
			Expect(all).To(BeFalse())
			Expect(ids).To(HaveLen(8))
			Expect(s.NumSharers()).To(Equal(8))
			Expect(s.Latency()).To(BeZero())
		})

		It("should panic on adding a sharer twice", func() {
			s.AddSharer(1)
			Expect(func() { s.AddSharer(1) }).To(Panic())
		})

		It("should panic on removing a non-member", func() {
			Expect(func() { s.RemoveSharer(3, false) }).To(Panic())
		})

		It("should panic on tiles out of range", func() {
			Expect(func() { s.HasSharer(8) }).To(Panic())
		})
	})

	Context("limited no broadcast", func() {
		It("should refuse the sharer beyond K", func() {
			s := newSet(LimitedNoBroadcast, 2, 8)

			Expect(s.AddSharer(0)).To(BeTrue())
			Expect(s.AddSharer(1)).To(BeTrue())
			Expect(s.AddSharer(2)).To(BeFalse())
			Expect(s.HasSharer(2)).To(BeFalse())
			Expect(s.NumSharers()).To(Equal(2))

			s.RemoveSharer(0, false)
			Expect(s.AddSharer(2)).To(BeTrue())
		})
	})

	Context("limited broadcast", func() {
		var s *Set

		BeforeEach(func() {
			s = newSet(LimitedBroadcast, 2, 4)
			s.AddSharer(0)
			s.AddSharer(1)
		})

		It("should go global on overflow", func() {
			Expect(s.AddSharer(2)).To(BeTrue())

			all, ids := s.SharersList()
			Expect(all).To(BeTrue())
			Expect(ids).To(ConsistOf(coherence.TileID(0), coherence.TileID(1)))
			Expect(s.NumSharers()).To(Equal(4))
			Expect(s.InBroadcastMode()).To(BeTrue())
		})

		It("should leave global mode after every tile replied", func() {
			s.AddSharer(2)

			for i := 0; i < 4; i++ {
				Expect(s.InBroadcastMode()).To(BeTrue())
				s.RemoveSharer(coherence.TileID(i), true)
			}

			Expect(s.InBroadcastMode()).To(BeFalse())
			Expect(s.NumSharers()).To(BeZero())
			Expect(s.IsEmpty()).To(BeTrue())
		})

		It("should ignore unnamed tiles leaving in global mode", func() {
			s.AddSharer(2)
			s.RemoveSharer(3, false)

			Expect(s.NumSharers()).To(Equal(4))
		})

		It("should reject broadcast replies outside of global mode", func() {
			Expect(func() { s.RemoveSharer(0, true) }).To(Panic())
		})
	})

	Context("ackwise", func() {
		It("should count sharers it cannot name", func() {
			s := newSet(Ackwise, 1, 4)

			s.AddSharer(0)
			Expect(s.InBroadcastMode()).To(BeFalse())

			s.AddSharer(1)
			Expect(s.InBroadcastMode()).To(BeTrue())
			Expect(s.NumUntracked()).To(Equal(1))
			Expect(s.NumSharers()).To(Equal(2))

			s.RemoveSharer(1, false)
			s.RemoveSharer(0, false)

			Expect(s.InBroadcastMode()).To(BeFalse())
			Expect(s.NumSharers()).To(BeZero())
		})

		It("should stay global while unnamed sharers remain", func() {
			s := newSet(Ackwise, 1, 4)
			s.AddSharer(0)
			s.AddSharer(1)
			s.AddSharer(2)

			s.RemoveSharer(0, false)
			Expect(s.InBroadcastMode()).To(BeTrue())
			Expect(s.NumSharers()).To(Equal(2))

			s.RemoveSharer(2, false)
			Expect(s.InBroadcastMode()).To(BeTrue())

			s.RemoveSharer(1, false)
			Expect(s.InBroadcastMode()).To(BeFalse())
		})
	})

	Context("limitless", func() {
		var s *Set

		BeforeEach(func() {
			s = newSet(Limitless, 2, 8)
		})

		It("should trap to software on overflow", func() {
			s.AddSharer(0)
			s.AddSharer(1)
			Expect(s.Latency()).To(BeZero())

			s.AddSharer(5)

			all, ids := s.SharersList()
			Expect(all).To(BeFalse())
			Expect(ids).To(ConsistOf(
				coherence.TileID(0), coherence.TileID(1), coherence.TileID(5)))
			Expect(s.InSoftwareMode()).To(BeTrue())
			Expect(s.Latency()).To(Equal(uint64(100)))
		})

		It("should stay in software mode after sharers leave", func() {
			s.AddSharer(0)
			s.AddSharer(1)
			s.AddSharer(2)

			s.RemoveSharer(0, false)
			s.RemoveSharer(1, false)
			s.RemoveSharer(2, false)

			Expect(s.NumSharers()).To(BeZero())
			Expect(s.InSoftwareMode()).To(BeTrue())
		})

		It("should panic on broadcast replies", func() {
			s.AddSharer(0)
			Expect(func() { s.RemoveSharer(0, true) }).To(Panic())
		})
	})

	It("should pick one of the named sharers", func() {
		s := newSet(FullMap, 0, 16)
		s.AddSharer(3)
		s.AddSharer(9)

		for i := 0; i < 20; i++ {
			Expect(s.OneSharer()).To(BeElementOf(
				coherence.TileID(3), coherence.TileID(9)))
		}
	})

	It("should not pick from an empty set", func() {
		s := newSet(FullMap, 0, 4)
		Expect(func() { s.OneSharer() }).To(Panic())
	})

	It("should return no tile when a broadcast set names nobody", func() {
		s := newSet(Ackwise, 1, 4)
		s.AddSharer(0)
		s.AddSharer(1)
		s.RemoveSharer(0, false)

		Expect(s.OneSharer()).To(Equal(coherence.InvalidTileID))
	})
})
