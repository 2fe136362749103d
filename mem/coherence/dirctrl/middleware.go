package dirctrl

// sendMW sends the queued messages whose latency has passed.
type sendMW struct {
	*Comp
}

func (m *sendMW) Tick() bool {
	madeProgress := false

	for i := 0; i < m.width; i++ {
		madeProgress = m.sendOne() || madeProgress
	}

	return madeProgress
}

func (m *sendMW) sendOne() bool {
	if len(m.sendQueue) == 0 {
		return false
	}

	head := m.sendQueue[0]
	if m.Freq.Cycle(m.CurrentTime()) < head.readyCycle {
		return false
	}

	if err := m.port.Send(head.msg); err != nil {
		return false
	}

	m.sendQueue[0] = queuedMsg{}
	m.sendQueue = m.sendQueue[1:]

	return true
}

// handleMW feeds incoming messages to the engine while the send queue has
// room for what the engine may produce.
type handleMW struct {
	*Comp
}

func (m *handleMW) Tick() bool {
	madeProgress := false

	for i := 0; i < m.width; i++ {
		madeProgress = m.handleOne() || madeProgress
	}

	return madeProgress
}

func (m *handleMW) handleOne() bool {
	if len(m.sendQueue) >= m.sendCapacity {
		return false
	}

	msg := m.port.RetrieveIncoming()
	if msg == nil {
		return false
	}

	m.engine.Handle(msg)

	return true
}
