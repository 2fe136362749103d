package sim

import "log"

// DirectConnection connects ports without latency. Messages from one source
// port are delivered in the order they are sent.
type DirectConnection struct {
	*TickingComponent

	nextPortID int
	ports      []Port
	portIndex  map[RemotePort]Port
}

// NewDirectConnection creates a new DirectConnection.
func NewDirectConnection(
	name string,
	engine Engine,
	freq Freq,
) *DirectConnection {
	c := new(DirectConnection)
	c.TickingComponent = NewSecondaryTickingComponent(name, engine, freq, c)
	c.portIndex = make(map[RemotePort]Port)

	return c
}

// PlugIn connects the port to this DirectConnection.
func (c *DirectConnection) PlugIn(port Port) {
	c.Lock()
	defer c.Unlock()

	if _, found := c.portIndex[port.AsRemote()]; found {
		log.Panicf("port %s is already plugged in", port.Name())
	}

	c.ports = append(c.ports, port)
	c.portIndex[port.AsRemote()] = port

	port.SetConnection(c)
}

// Unplug disconnects the port from this DirectConnection.
func (c *DirectConnection) Unplug(_ Port) {
	panic("not implemented")
}

// NotifyAvailable is called by a port when it can receive messages again.
func (c *DirectConnection) NotifyAvailable(p Port) {
	for _, port := range c.ports {
		if port == p {
			continue
		}

		port.NotifyAvailable()
	}

	c.TickNow()
}

// NotifySend is called by a port when it has a message to send.
func (c *DirectConnection) NotifySend() {
	c.TickNow()
}

// Tick delivers the messages waiting in the outgoing buffers of the ports.
func (c *DirectConnection) Tick() bool {
	if len(c.ports) == 0 {
		return false
	}

	madeProgress := false

	for i := 0; i < len(c.ports); i++ {
		portID := (i + c.nextPortID) % len(c.ports)
		madeProgress = c.forwardMany(c.ports[portID]) || madeProgress
	}

	c.nextPortID = (c.nextPortID + 1) % len(c.ports)

	return madeProgress
}

func (c *DirectConnection) forwardMany(port Port) bool {
	madeProgress := false

	for {
		head := port.PeekOutgoing()
		if head == nil {
			break
		}

		dst, found := c.portIndex[head.Meta().Dst]
		if !found {
			log.Panicf("destination %s is not connected", head.Meta().Dst)
		}

		if err := dst.Deliver(head); err != nil {
			break
		}

		if c.NumHooks() > 0 {
			c.InvokeHook(HookCtx{
				Domain: c,
				Pos:    HookPosConnDeliver,
				Item:   head,
			})
		}

		madeProgress = true

		port.RetrieveOutgoing()
	}

	return madeProgress
}
