package directory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/directory"
	"github.com/sarchlab/tilesim/mem/coherence/sharers"
)

func newFactory() *sharers.Factory {
	return sharers.MakeFactoryBuilder().
		WithScheme(sharers.FullMap).
		WithNumTiles(4).
		Build()
}

var _ = Describe("Directory", func() {
	var d *directory.Directory

	BeforeEach(func() {
		d = directory.New(4, 2, 64, 1, newFactory())
	})

	It("should reject set counts that are not powers of 2", func() {
		Expect(func() { directory.New(3, 2, 64, 1, newFactory()) }).To(Panic())
	})

	It("should fold the line address into the set index", func() {
		Expect(d.SetID(0x0)).To(Equal(0))
		Expect(d.SetID(0x40)).To(Equal(1))
		Expect(d.SetID(0xc0)).To(Equal(3))
		// line 4 = 0b100 folds to 0b01 ^ 0b00
		Expect(d.SetID(0x100)).To(Equal(1))
		// line 5 = 0b101 folds to 0b01 ^ 0b01
		Expect(d.SetID(0x140)).To(Equal(0))
	})

	It("should remove the slice interleaving before folding", func() {
		sliced := directory.New(4, 2, 64, 2, newFactory())

		Expect(sliced.SetID(0x40)).To(Equal(0))
		Expect(sliced.SetID(0x80)).To(Equal(1))
	})

	It("should map everything to set 0 when there is one set", func() {
		one := directory.New(1, 4, 64, 1, newFactory())
		Expect(one.SetID(0x12345678)).To(Equal(0))
	})

	It("should allocate and look up", func() {
		e, ok := d.GetOrAllocate(0x40)
		Expect(ok).To(BeTrue())
		Expect(e.State).To(Equal(coherence.DirUncached))
		Expect(e.Owner).To(Equal(coherence.InvalidTileID))
		Expect(e.Sharers.IsEmpty()).To(BeTrue())

		found, ok := d.Lookup(0x40)
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(e))

		again, _ := d.GetOrAllocate(0x40)
		Expect(again).To(BeIdenticalTo(e))
		Expect(d.Stats().Accesses).To(Equal(uint64(2)))
	})

	It("should fail to allocate in a full set", func() {
		d.GetOrAllocate(0x000)
		d.GetOrAllocate(0x140)

		_, ok := d.GetOrAllocate(0x500)
		Expect(ok).To(BeFalse())
	})

	It("should order candidates from least recently used", func() {
		a, _ := d.GetOrAllocate(0x000)
		b, _ := d.GetOrAllocate(0x140)

		Expect(d.ReplacementCandidates(0x500)).To(Equal([]*directory.Entry{a, b}))

		d.Visit(a)
		Expect(d.ReplacementCandidates(0x500)).To(Equal([]*directory.Entry{b, a}))
	})

	Context("when replacing", func() {
		var victim *directory.Entry

		BeforeEach(func() {
			victim, _ = d.GetOrAllocate(0x000)
			victim.State = coherence.DirExclusive
			victim.Owner = 0
			victim.Sharers.AddSharer(0)
			d.GetOrAllocate(0x140)
		})

		It("should keep the victim reachable while it retires", func() {
			e := d.Replace(0x000, 0x500)

			Expect(e.Address).To(Equal(uint64(0x500)))
			Expect(e.WayID).To(Equal(victim.WayID))
			Expect(victim.Retiring).To(BeTrue())

			found, ok := d.Lookup(0x000)
			Expect(ok).To(BeTrue())
			Expect(found).To(BeIdenticalTo(victim))
			Expect(d.ReplacementCandidates(0x500)).NotTo(ContainElement(victim))
			Expect(d.Stats().Evictions).To(Equal(uint64(1)))
			Expect(d.Stats().BackInvalidations).To(Equal(uint64(1)))
		})

		It("should drop the victim on retire", func() {
			d.Replace(0x000, 0x500)

			victim.Sharers.RemoveSharer(0, false)
			victim.State = coherence.DirUncached
			victim.Owner = coherence.InvalidTileID
			d.Retire(0x000)

			_, ok := d.Lookup(0x000)
			Expect(ok).To(BeFalse())
			Expect(d.Entries()).To(HaveLen(2))
		})

		It("should not retire a line that still has sharers", func() {
			d.Replace(0x000, 0x500)
			Expect(func() { d.Retire(0x000) }).To(Panic())
		})

		It("should not retire a live entry", func() {
			Expect(func() { d.Retire(0x140) }).To(Panic())
		})

		It("should reuse arena slots", func() {
			d.Replace(0x000, 0x500)
			victim.Sharers.RemoveSharer(0, false)
			victim.State = coherence.DirUncached
			d.Retire(0x000)

			e := d.Replace(0x140, 0x000)
			Expect(e.Index()).To(Equal(victim.Index()))
		})
	})

	It("should check entry invariants", func() {
		e, _ := d.GetOrAllocate(0x40)
		Expect(d.CheckInvariants()).To(Succeed())

		e.State = coherence.DirShared
		Expect(d.CheckInvariants()).To(HaveOccurred())

		e.Sharers.AddSharer(1)
		e.Sharers.AddSharer(2)
		Expect(d.CheckInvariants()).To(Succeed())

		e.State = coherence.DirExclusive
		e.Owner = 1
		Expect(d.CheckInvariants()).To(MatchError(ContainSubstring("EXCLUSIVE")))

		e.State = coherence.DirOwned
		e.Owner = 3
		Expect(d.CheckInvariants()).To(HaveOccurred())
	})
})

var _ = Describe("VictimFinder", func() {
	var (
		mockCtrl *gomock.Controller
		busy     *MockBusyChecker
		d        *directory.Directory
		a, b, c  *directory.Entry
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		busy = NewMockBusyChecker(mockCtrl)
		d = directory.New(1, 3, 64, 1, newFactory())

		a, _ = d.GetOrAllocate(0x00)
		a.State = coherence.DirShared
		a.Sharers.AddSharer(0)
		a.Sharers.AddSharer(1)

		b, _ = d.GetOrAllocate(0x40)
		b.State = coherence.DirShared
		b.Sharers.AddSharer(2)

		c, _ = d.GetOrAllocate(0x80)
		c.State = coherence.DirShared
		c.Sharers.AddSharer(3)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pick the entry with fewest sharers, oldest first", func() {
		busy.EXPECT().Busy(gomock.Any()).Return(false).AnyTimes()

		victim, ok := directory.NewFewestSharersVictimFinder().
			FindVictim(d, 0xc0, busy)

		Expect(ok).To(BeTrue())
		Expect(victim).To(BeIdenticalTo(b))
	})

	It("should skip busy entries", func() {
		busy.EXPECT().Busy(uint64(0x00)).Return(false).AnyTimes()
		busy.EXPECT().Busy(uint64(0x40)).Return(true).AnyTimes()
		busy.EXPECT().Busy(uint64(0x80)).Return(false).AnyTimes()

		victim, _ := directory.NewFewestSharersVictimFinder().
			FindVictim(d, 0xc0, busy)
		Expect(victim).To(BeIdenticalTo(c))

		victim, _ = directory.NewLRUVictimFinder().FindVictim(d, 0xc0, busy)
		Expect(victim).To(BeIdenticalTo(a))
	})

	It("should fail when every entry is busy", func() {
		busy.EXPECT().Busy(gomock.Any()).Return(true).AnyTimes()

		_, ok := directory.NewLRUVictimFinder().FindVictim(d, 0xc0, busy)
		Expect(ok).To(BeFalse())

		_, ok = directory.NewFewestSharersVictimFinder().
			FindVictim(d, 0xc0, busy)
		Expect(ok).To(BeFalse())
	})
})
