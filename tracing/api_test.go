package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/tilesim/sim"
)

var _ = Describe("Api", func() {
	var (
		mockCtrl *gomock.Controller
		domain   *MockNamedHookable
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		domain = NewMockNamedHookable(mockCtrl)
		domain.EXPECT().NumHooks().Return(1).AnyTimes()
		domain.EXPECT().InvokeHook(gomock.Any()).AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic if ID is not given", func() {
		domain.EXPECT().Name().Return("domain").AnyTimes()
		Expect(func() {
			StartTask("", "123", domain, "kind", "what", nil)
		}).Should(Panic())
	})

	It("should panic if domain is nil", func() {
		Expect(func() {
			StartTask("id", "123", nil, "kind", "what", nil)
		}).Should(Panic())
	})

	It("should panic if the domain has no name", func() {
		domain.EXPECT().Name().Return("").AnyTimes()
		Expect(func() {
			StartTask("id", "123", domain, "kind", "what", nil)
		}).Should(Panic())
	})

	It("should panic if kind is empty", func() {
		domain.EXPECT().Name().Return("domain").AnyTimes()
		Expect(func() {
			StartTask("id", "123", domain, "", "what", nil)
		}).Should(Panic())
	})

	It("should panic if what is empty", func() {
		domain.EXPECT().Name().Return("domain").AnyTimes()
		Expect(func() {
			StartTask("id", "123", domain, "kind", "", nil)
		}).Should(Panic())
	})

	It("should skip the hooks when the domain has none", func() {
		quiet := NewMockNamedHookable(mockCtrl)
		quiet.EXPECT().NumHooks().Return(0).AnyTimes()

		StartTask("", "", quiet, "", "", nil)
		AddTaskStep("", quiet, "")
		EndTask("", quiet)
	})

	It("should send task steps to the hooks", func() {
		stepping := NewMockNamedHookable(mockCtrl)
		stepping.EXPECT().NumHooks().Return(1)
		stepping.EXPECT().InvokeHook(gomock.Any()).Do(func(ctx sim.HookCtx) {
			Expect(ctx.Pos).To(BeIdenticalTo(HookPosTaskStep))
			task := ctx.Item.(Task)
			Expect(task.ID).To(Equal("req1"))
			Expect(task.Steps).To(HaveLen(1))
			Expect(task.Steps[0].What).To(Equal("ack"))
		})

		AddTaskStep("req1", stepping, "ack")
	})
})
