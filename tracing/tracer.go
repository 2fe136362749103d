package tracing

import (
	"log"
	"reflect"

	"github.com/sarchlab/tilesim/sim"
)

// A Tracer can collect task traces
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}

// CollectTrace makes the tracer receive the tasks of a domain. A tracer can
// be attached to a domain only once.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	for _, hook := range domain.Hooks() {
		if h, ok := hook.(*traceHook); ok && h.t == tracer {
			log.Panicf("domain %s already has tracer %s",
				domain.Name(), reflect.TypeOf(tracer))
		}
	}

	domain.AcceptHook(&traceHook{t: tracer})
}

type traceHook struct {
	t Tracer
}

func (h *traceHook) Func(ctx sim.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		h.t.StartTask(task)
	case HookPosTaskStep:
		h.t.StepTask(task)
	case HookPosTaskEnd:
		h.t.EndTask(task)
	}
}
