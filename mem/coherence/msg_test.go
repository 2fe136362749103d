package coherence

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/tilesim/sim"
)

var _ = Describe("Messages", func() {
	It("should build a request whose requester is the sender", func() {
		req := RequestMsgBuilder{}.
			WithSender(3).
			WithReceiver(1).
			WithAddress(0x40).
			WithReqType(ReqWrite).
			Build()

		Expect(req.Requester).To(Equal(TileID(3)))
		Expect(req.Header().Receiver).To(Equal(TileID(1)))
		Expect(req.ID).NotTo(BeEmpty())
	})

	It("should link a reply to its request", func() {
		req := RequestMsgBuilder{}.WithSender(2).WithReqType(ReqRead).Build()
		rsp := ReplyMsgBuilder{}.
			WithRspTo(req).
			WithNewState(CacheShared).
			WithData(make([]byte, 64)).
			Build()

		Expect(rsp.GetRspTo()).To(Equal(req.ID))
		Expect(rsp.ReqType).To(Equal(ReqRead))
		Expect(rsp.Meta().TrafficBytes).To(Equal(64 + controlByteOverhead))
	})

	It("should give clones a new ID", func() {
		ack := AckMsgBuilder{}.WithSender(1).RemoveFromSharers().Build()
		clone := ack.Clone().(*AckMsg)

		Expect(clone.ID).NotTo(Equal(ack.ID))
		Expect(clone.RemoveFromSharers).To(BeTrue())
	})

	It("should mark broadcasts", func() {
		upd := UpdateMsgBuilder{}.
			WithNewState(CacheInvalid).
			AsBroadcast(true).
			Build()

		Expect(upd.Broadcast).To(BeTrue())
		Expect(upd.ReplyExpected).To(BeTrue())
	})

	It("should only mark writebacks with data as dirty", func() {
		clean := WritebackMsgBuilder{}.Build()
		dirty := WritebackMsgBuilder{}.WithDirtyData([]byte{1}).Build()

		Expect(clean.Dirty).To(BeFalse())
		Expect(dirty.Dirty).To(BeTrue())
	})
})

var _ = Describe("LineInterleavedHomeLookup", func() {
	It("should map consecutive lines to consecutive homes", func() {
		l := NewLineInterleavedHomeLookup(64,
			[]TileID{0, 1},
			[]sim.RemotePort{"Dir[0].Port", "Dir[1].Port"})

		Expect(l.Home(0)).To(Equal(TileID(0)))
		Expect(l.Home(64)).To(Equal(TileID(1)))
		Expect(l.Home(128)).To(Equal(TileID(0)))
		Expect(l.HomePort(64)).To(Equal(sim.RemotePort("Dir[1].Port")))
	})

	It("should parse protocol names", func() {
		p, err := ParseProtocol("MOSI")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(MOSI))

		_, err = ParseProtocol("mesi")
		Expect(err).To(HaveOccurred())
	})
})
