package dirctrl

import (
	"log"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/sim"
)

type queuedMsg struct {
	msg        coherence.Msg
	readyCycle uint64
}

// Comp is a home directory. It feeds the messages that arrive at its port
// into the protocol engine and sends out what the engine produces once the
// access latency has passed. Outgoing messages leave in the order they are
// produced.
type Comp struct {
	*sim.TickingComponent
	sim.MiddlewareHolder

	port      sim.Port
	engine    *Engine
	tilePorts []sim.RemotePort

	sendQueue    []queuedMsg
	sendCapacity int
	width        int
}

// Engine returns the protocol engine.
func (c *Comp) Engine() *Engine {
	return c.engine
}

// Port returns the network port.
func (c *Comp) Port() sim.Port {
	return c.port
}

// SetTilePorts sets the ports of the caches, indexed by tile.
func (c *Comp) SetTilePorts(ports []sim.RemotePort) {
	c.tilePorts = ports
}

// Send queues a message produced by the engine.
func (c *Comp) Send(msg coherence.Msg, delayCycles uint64) {
	receiver := msg.Header().Receiver
	if receiver < 0 || int(receiver) >= len(c.tilePorts) {
		log.Panicf("%s has no port for tile %d", c.Name(), receiver)
	}

	meta := msg.Meta()
	meta.Src = c.port.AsRemote()
	meta.Dst = c.tilePorts[receiver]

	ready := c.Freq.Cycle(c.CurrentTime()) + delayCycles
	if n := len(c.sendQueue); n > 0 && c.sendQueue[n-1].readyCycle > ready {
		ready = c.sendQueue[n-1].readyCycle
	}

	c.sendQueue = append(c.sendQueue, queuedMsg{msg: msg, readyCycle: ready})
}

// Tick sends due messages and handles incoming ones.
func (c *Comp) Tick() bool {
	madeProgress := c.MiddlewareHolder.Tick()

	return madeProgress || len(c.sendQueue) > 0
}
