package sim

import (
	"log"
	"reflect"
)

// LogHookBase provides the logger shared by the log hooks.
type LogHookBase struct {
	*log.Logger
}

// EventLogger is a hook that prints every event before it is handled.
type EventLogger struct {
	LogHookBase
}

// NewEventLogger returns a new EventLogger that writes into the logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	h := new(EventLogger)
	h.Logger = logger

	return h
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	if comp, ok := evt.Handler().(Named); ok {
		h.Printf("%.10f, %s -> %s", evt.Time(), reflect.TypeOf(evt), comp.Name())
		return
	}

	h.Printf("%.10f, %s", evt.Time(), reflect.TypeOf(evt))
}

// PortMsgLogger is a hook that logs messages as they go across a port.
type PortMsgLogger struct {
	LogHookBase
	TimeTeller
}

// NewPortMsgLogger returns a new PortMsgLogger that writes into the logger.
func NewPortMsgLogger(logger *log.Logger, tt TimeTeller) *PortMsgLogger {
	h := new(PortMsgLogger)
	h.Logger = logger
	h.TimeTeller = tt

	return h
}

// Func writes the message information into the logger.
func (h *PortMsgLogger) Func(ctx HookCtx) {
	msg, ok := ctx.Item.(Msg)
	if !ok {
		return
	}

	port, ok := ctx.Domain.(Port)
	if !ok {
		return
	}

	h.Printf("%.10f,%s,%s,%s,%s,%s,%s",
		h.CurrentTime(), port.Name(), ctx.Pos.Name,
		msg.Meta().Src, msg.Meta().Dst,
		reflect.TypeOf(msg), msg.Meta().ID)
}
