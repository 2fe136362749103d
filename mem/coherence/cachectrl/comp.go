// Package cachectrl provides the private cache of a tile. It serves loads and
// stores from the core and keeps its lines coherent by talking to the home
// directories.
package cachectrl

import (
	"log"
	"reflect"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/mem"
	"github.com/sarchlab/tilesim/sim"
	"github.com/sarchlab/tilesim/tracing"
)

// Stats are the counters of a private cache.
type Stats struct {
	ReadHits          uint64
	ReadMisses        uint64
	WriteHits         uint64
	WriteMisses       uint64
	Upgrades          uint64
	Evictions         uint64
	DirtyEvictions    uint64
	Invalidations     uint64
	Demotions         uint64
	DroppedBroadcasts uint64
}

type miss struct {
	reqType coherence.ReqType
	msg     *coherence.RequestMsg
	waiting []mem.AccessReq
}

type timedMsg struct {
	msg        sim.Msg
	readyCycle uint64
}

// Comp is a private cache.
type Comp struct {
	*sim.TickingComponent

	tile       coherence.TileID
	topPort    sim.Port
	netPort    sim.Port
	homes      coherence.AddressHomeLookup
	tags       *tagArray
	lineSize   uint64
	hitLatency uint64
	width      int

	misses   map[uint64]*miss
	netQueue []sim.Msg
	rspQueue []timedMsg
	maxQueue int

	stats Stats
}

// Tile returns the tile of the cache.
func (c *Comp) Tile() coherence.TileID {
	return c.tile
}

// TopPort returns the port that receives loads and stores.
func (c *Comp) TopPort() sim.Port {
	return c.topPort
}

// NetPort returns the port that talks to the directories.
func (c *Comp) NetPort() sim.Port {
	return c.netPort
}

// Stats returns the counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// LineState returns the state of the line that holds the address.
func (c *Comp) LineState(addr uint64) coherence.CacheState {
	b, ok := c.tags.lookup(c.lineOf(addr))
	if !ok {
		return coherence.CacheInvalid
	}

	return b.State
}

// HeldLines returns the state of every line that the cache holds.
func (c *Comp) HeldLines() map[uint64]coherence.CacheState {
	lines := make(map[uint64]coherence.CacheState)

	for _, b := range c.tags.blocks() {
		if b.Held() {
			lines[b.Tag] = b.State
		}
	}

	return lines
}

// Idle tells if the cache has no outstanding work.
func (c *Comp) Idle() bool {
	return len(c.misses) == 0 && len(c.netQueue) == 0 && len(c.rspQueue) == 0
}

func (c *Comp) lineOf(addr uint64) uint64 {
	return addr &^ (c.lineSize - 1)
}

// Tick updates the state of the cache.
func (c *Comp) Tick() bool {
	madeProgress := false

	for i := 0; i < c.width; i++ {
		madeProgress = c.sendToNet() || madeProgress
		madeProgress = c.respond() || madeProgress
	}

	for i := 0; i < c.width; i++ {
		madeProgress = c.handleNetMsg() || madeProgress
	}

	for i := 0; i < c.width; i++ {
		madeProgress = c.handleAccess() || madeProgress
	}

	if len(c.rspQueue) > 0 {
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) now() uint64 {
	return c.Freq.Cycle(c.CurrentTime())
}

func (c *Comp) sendToNet() bool {
	if len(c.netQueue) == 0 {
		return false
	}

	if err := c.netPort.Send(c.netQueue[0]); err != nil {
		return false
	}

	c.netQueue[0] = nil
	c.netQueue = c.netQueue[1:]

	return true
}

func (c *Comp) respond() bool {
	if len(c.rspQueue) == 0 {
		return false
	}

	head := c.rspQueue[0]
	if c.now() < head.readyCycle {
		return false
	}

	if err := c.topPort.Send(head.msg); err != nil {
		return false
	}

	c.rspQueue[0] = timedMsg{}
	c.rspQueue = c.rspQueue[1:]

	return true
}

func (c *Comp) queueFull() bool {
	return len(c.netQueue) >= c.maxQueue || len(c.rspQueue) >= c.maxQueue
}

func (c *Comp) sendCoherenceMsg(msg coherence.Msg) {
	meta := msg.Meta()
	meta.Src = c.netPort.AsRemote()
	meta.Dst = c.homes.HomePort(msg.Header().Address)

	c.netQueue = append(c.netQueue, msg)
}

// handleNetMsg never waits for queue space. Replies and updates always
// drain so that the directories can make progress.
func (c *Comp) handleNetMsg() bool {
	msg := c.netPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	switch m := msg.(type) {
	case *coherence.ReplyMsg:
		c.handleReply(m)
	case *coherence.UpdateMsg:
		c.handleUpdate(m)
	default:
		log.Panicf("%s cannot handle message of type %s",
			c.Name(), reflect.TypeOf(msg))
	}

	return true
}

func (c *Comp) handleAccess() bool {
	if c.queueFull() {
		return false
	}

	item := c.topPort.PeekIncoming()
	if item == nil {
		return false
	}

	req, ok := item.(mem.AccessReq)
	if !ok {
		log.Panicf("%s cannot handle message of type %s",
			c.Name(), reflect.TypeOf(item))
	}

	c.accessMustBeInOneLine(req)

	line := c.lineOf(req.GetAddress())
	if m, found := c.misses[line]; found {
		c.accept(req)
		m.waiting = append(m.waiting, req)

		return true
	}

	if c.canServe(req) {
		c.accept(req)
		c.serve(req)

		return true
	}

	if !c.startMiss(line, []mem.AccessReq{req}) {
		return false
	}

	c.accept(req)

	return true
}

func (c *Comp) accept(req mem.AccessReq) {
	c.topPort.RetrieveIncoming()
	tracing.TraceReqReceive(req, c)
}

func (c *Comp) accessMustBeInOneLine(req mem.AccessReq) {
	addr := req.GetAddress()
	size := req.GetByteSize()

	if size == 0 || c.lineOf(addr) != c.lineOf(addr+size-1) {
		log.Panicf("%s: access of %d bytes at 0x%x crosses a line boundary",
			c.Name(), size, addr)
	}
}

func (c *Comp) canServe(req mem.AccessReq) bool {
	b, found := c.tags.lookup(c.lineOf(req.GetAddress()))
	if !found {
		return false
	}

	if _, isWrite := req.(*mem.WriteReq); isWrite {
		return b.State.CanWrite()
	}

	return b.State.CanRead()
}

// serve completes an access that hits in the cache.
func (c *Comp) serve(req mem.AccessReq) {
	line := c.lineOf(req.GetAddress())
	offset := req.GetAddress() - line
	b, _ := c.tags.lookup(line)

	var rsp sim.Msg

	switch r := req.(type) {
	case *mem.ReadReq:
		data := make([]byte, r.AccessByteSize)
		copy(data, b.Data[offset:])

		rsp = mem.DataReadyRspBuilder{}.
			WithSrc(c.topPort.AsRemote()).
			WithDst(r.Src).
			WithRspTo(r.ID).
			WithData(data).
			Build()
		c.stats.ReadHits++
	case *mem.WriteReq:
		copy(b.Data[offset:], r.Data)
		b.Dirty = true

		rsp = mem.WriteDoneRspBuilder{}.
			WithSrc(c.topPort.AsRemote()).
			WithDst(r.Src).
			WithRspTo(r.ID).
			Build()
		c.stats.WriteHits++
	default:
		log.Panicf("%s cannot handle access of type %s",
			c.Name(), reflect.TypeOf(req))
	}

	c.tags.visit(b)

	c.rspQueue = append(c.rspQueue, timedMsg{
		msg:        rsp,
		readyCycle: c.now() + c.hitLatency,
	})
	tracing.TraceReqComplete(req, c)
}

// startMiss asks the home directory for the line. It returns false if no
// block can be allocated for the line.
func (c *Comp) startMiss(line uint64, waiting []mem.AccessReq) bool {
	reqType := coherence.ReqRead
	if _, isWrite := waiting[0].(*mem.WriteReq); isWrite {
		reqType = coherence.ReqWrite
	}

	b, found := c.tags.lookup(line)
	if found {
		c.stats.Upgrades++
	} else {
		victim, ok := c.tags.findVictim(line)
		if !ok {
			return false
		}

		c.evict(victim)

		b = victim
		b.Tag = line
		b.Valid = true
		b.State = coherence.CacheInvalid
		b.Dirty = false
		b.Data = nil
	}

	if reqType == coherence.ReqRead {
		c.stats.ReadMisses++
	} else {
		c.stats.WriteMisses++
	}

	b.Locked = true
	c.tags.visit(b)

	msg := coherence.RequestMsgBuilder{}.
		WithSender(c.tile).
		WithReceiver(c.homes.Home(line)).
		WithAddress(line).
		WithReqType(reqType).
		Build()
	c.sendCoherenceMsg(msg)
	tracing.TraceReqInitiate(msg, c, "")

	c.misses[line] = &miss{
		reqType: reqType,
		msg:     msg,
		waiting: waiting,
	}

	return true
}

// evict drops the line in the block and tells the home directory. Dirty
// lines carry their data.
func (c *Comp) evict(b *Block) {
	if !b.Held() {
		b.Valid = false
		return
	}

	builder := coherence.WritebackMsgBuilder{}.
		WithSender(c.tile).
		WithReceiver(c.homes.Home(b.Tag)).
		WithAddress(b.Tag)

	if b.State.HoldsDirtyData() && b.Dirty {
		builder = builder.WithDirtyData(append([]byte(nil), b.Data...))
		c.stats.DirtyEvictions++
	}

	c.sendCoherenceMsg(builder.Build())
	c.stats.Evictions++

	b.Valid = false
	b.State = coherence.CacheInvalid
	b.Dirty = false
	b.Data = nil
}

func (c *Comp) handleReply(m *coherence.ReplyMsg) {
	line := m.Address

	pendingMiss, found := c.misses[line]
	if !found || pendingMiss.msg.ID != m.RespondTo {
		log.Panicf("%s received a reply for 0x%x that it did not ask for",
			c.Name(), line)
	}

	b, found := c.tags.lookup(line)
	if !found || !b.Locked {
		log.Panicf("%s has no block waiting for line 0x%x", c.Name(), line)
	}

	if !b.State.CanRead() {
		if uint64(len(m.Data)) != c.lineSize {
			log.Panicf("%s: reply for invalid line 0x%x carries %d bytes",
				c.Name(), line, len(m.Data))
		}

		b.Data = append([]byte(nil), m.Data...)
		b.Dirty = false
	}

	b.State = m.NewState
	b.Locked = false

	delete(c.misses, line)
	tracing.TraceReqFinalize(pendingMiss.msg, c)

	c.resume(line, pendingMiss.waiting)
}

// resume serves the accesses that waited for a miss. The first one that
// still cannot be served starts a new miss for itself and the rest.
func (c *Comp) resume(line uint64, waiting []mem.AccessReq) {
	for i, req := range waiting {
		if c.canServe(req) {
			c.serve(req)
			continue
		}

		if !c.startMiss(line, waiting[i:]) {
			log.Panicf("%s cannot reallocate line 0x%x", c.Name(), line)
		}

		return
	}
}

func (c *Comp) handleUpdate(m *coherence.UpdateMsg) {
	line := m.Address
	b, found := c.tags.lookup(line)

	if !found || !b.Held() {
		if m.Broadcast && !m.ReplyExpected {
			c.stats.DroppedBroadcasts++
			return
		}

		c.sendAck(m, nil, false, true)

		return
	}

	var data []byte

	dirty := false
	if b.State.HoldsDirtyData() {
		data = append([]byte(nil), b.Data...)
		dirty = b.Dirty
	}

	switch m.NewState {
	case coherence.CacheInvalid:
		c.stats.Invalidations++
		b.State = coherence.CacheInvalid
		b.Dirty = false
		b.Data = nil

		if !b.Locked {
			b.Valid = false
		}
	case coherence.CacheShared:
		c.stats.Demotions++
		b.State = coherence.CacheShared
		b.Dirty = false
	case coherence.CacheOwned:
		c.stats.Demotions++
		b.State = coherence.CacheOwned
	default:
		log.Panicf("%s cannot move line 0x%x to %s",
			c.Name(), line, m.NewState)
	}

	c.sendAck(m, data, dirty, false)
}

func (c *Comp) sendAck(
	m *coherence.UpdateMsg,
	data []byte,
	dirty bool,
	notHeld bool,
) {
	builder := coherence.AckMsgBuilder{}.
		WithSender(c.tile).
		WithReceiver(m.Sender).
		WithAddress(m.Address).
		WithNewState(m.NewState)

	if data != nil {
		builder = builder.WithData(data, dirty)
	}

	if notHeld {
		builder = builder.RemoveFromSharers()
	}

	c.sendCoherenceMsg(builder.Build())
}
