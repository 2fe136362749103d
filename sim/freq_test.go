package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Freq", func() {
	freq := 1 * GHz

	It("should compute the period", func() {
		Expect(freq.Period()).To(BeNumerically("~", 1e-9, 1e-18))
	})

	It("should round to the current tick", func() {
		Expect(freq.ThisTick(1.0e-9)).To(BeNumerically("~", 1.0e-9, 1e-18))
		Expect(freq.ThisTick(1.2e-9)).To(BeNumerically("~", 2.0e-9, 1e-18))
	})

	It("should find the next tick", func() {
		Expect(freq.NextTick(1.0e-9)).To(BeNumerically("~", 2.0e-9, 1e-18))
		Expect(freq.NextTick(1.5e-9)).To(BeNumerically("~", 2.0e-9, 1e-18))
	})

	It("should move n cycles later", func() {
		Expect(freq.NCyclesLater(3, 1.0e-9)).To(BeNumerically("~", 4.0e-9, 1e-18))
	})

	It("should count cycles", func() {
		Expect(freq.Cycle(10e-9)).To(Equal(uint64(10)))
	})

	It("should panic on zero frequency", func() {
		Expect(func() { Freq(0).Period() }).To(Panic())
	})
})

var _ = Describe("Buffer", func() {
	It("should keep FIFO order", func() {
		buf := NewBuffer("Buf", 2)

		buf.Push(1)
		buf.Push(2)

		Expect(buf.CanPush()).To(BeFalse())
		Expect(buf.Peek()).To(Equal(1))
		Expect(buf.Pop()).To(Equal(1))
		Expect(buf.Pop()).To(Equal(2))
		Expect(buf.Pop()).To(BeNil())
	})

	It("should panic on overflow", func() {
		buf := NewBuffer("Buf", 1)
		buf.Push(1)

		Expect(func() { buf.Push(2) }).To(Panic())
	})
})

var _ = Describe("Names", func() {
	It("should accept hierarchical names", func() {
		Expect(func() { NameMustBeValid("Tile[3].Cache") }).NotTo(Panic())
		Expect(BuildNameWithIndex("Chip", "Dir", 2)).To(Equal("Chip.Dir[2]"))
	})

	It("should reject lower-case names", func() {
		Expect(func() { NameMustBeValid("tile.Cache") }).To(Panic())
		Expect(func() { NameMustBeValid("Tile..Cache") }).To(Panic())
	})
})
