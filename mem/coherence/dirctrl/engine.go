// Package dirctrl provides the home directory controller. The Engine runs the
// coherence protocol and Comp connects it to the network.
package dirctrl

import (
	"log"
	"reflect"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/directory"
	"github.com/sarchlab/tilesim/mem/coherence/pending"
	"github.com/sarchlab/tilesim/mem/coherence/sharers"
	"github.com/sarchlab/tilesim/sim"
	"github.com/sarchlab/tilesim/tracing"
)

// Outbox takes the messages that the engine sends. delayCycles is the time
// the directory spends before the message can leave.
type Outbox interface {
	Send(msg coherence.Msg, delayCycles uint64)
}

// BackingStore holds the content of the lines homed at the directory.
type BackingStore interface {
	ReadLine(addr uint64) []byte
	WriteLine(addr uint64, data []byte)
}

// Stats are the protocol counters of a directory.
type Stats struct {
	Reads      uint64
	Writes     uint64
	Nullifies  uint64
	Updates    uint64
	Broadcasts uint64
	Acks       uint64
	Writebacks uint64
	Replies    uint64
	MemReads   uint64
	MemWrites  uint64
	Stalls     uint64
}

// Engine is the coherence state machine of one home directory. It never
// blocks. A transaction that needs answers from sharers records what it
// waits for and resumes when the last ack arrives.
type Engine struct {
	domain tracing.NamedHookable

	home         coherence.TileID
	protocol     coherence.Protocol
	numTiles     int
	lineSize     uint64
	accessCycles uint64
	dramCycles   uint64

	dir          *directory.Directory
	queue        *pending.Queue
	victimFinder directory.VictimFinder
	store        BackingStore
	outbox       Outbox

	stalled map[int][]*pending.Request
	blocked map[uint64]*pending.Request

	ready    []*pending.Request
	draining bool

	stats Stats
}

// Directory returns the directory storage.
func (e *Engine) Directory() *directory.Directory {
	return e.dir
}

// Queue returns the pending request queue.
func (e *Engine) Queue() *pending.Queue {
	return e.queue
}

// Stats returns the protocol counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Home returns the tile that hosts the directory.
func (e *Engine) Home() coherence.TileID {
	return e.home
}

// Idle tells if no transaction is queued.
func (e *Engine) Idle() bool {
	return e.queue.Len() == 0
}

// Handle dispatches a message to the matching handler.
func (e *Engine) Handle(msg sim.Msg) {
	switch m := msg.(type) {
	case *coherence.RequestMsg:
		e.OnRequest(m)
	case *coherence.AckMsg:
		e.OnAck(m)
	case *coherence.WritebackMsg:
		e.OnWriteback(m)
	default:
		log.Panicf("directory %d cannot handle message of type %s",
			e.home, reflect.TypeOf(msg))
	}
}

func (e *Engine) mustBeLineAligned(addr uint64) {
	if addr%e.lineSize != 0 {
		log.Panicf("address 0x%x is not aligned to the %d-byte line",
			addr, e.lineSize)
	}
}

// OnRequest queues a request from a cache and starts it if the address is
// idle.
func (e *Engine) OnRequest(m *coherence.RequestMsg) {
	e.mustBeLineAligned(m.Address)

	switch m.ReqType {
	case coherence.ReqRead:
		e.stats.Reads++
	case coherence.ReqWrite:
		e.stats.Writes++
	default:
		log.Panicf("caches cannot send %s requests", m.ReqType)
	}

	req := &pending.Request{
		Type:      m.ReqType,
		Address:   m.Address,
		Requester: m.Requester,
		Msg:       m,
	}

	if e.queue.Enqueue(req) {
		e.kick(req)
	}

	e.drain()
}

// OnAck routes an ack to the transaction waiting for it.
func (e *Engine) OnAck(m *coherence.AckMsg) {
	addr := m.Address
	sender := m.Sender

	req := e.queue.Active(addr)
	if req == nil || req.Await == nil {
		log.Panicf("ack from tile %d on address 0x%x without a waiting "+
			"transaction", sender, addr)
	}

	if !e.queue.IsExpected(addr, sender) {
		log.Panicf("unexpected ack from tile %d on address 0x%x",
			sender, addr)
	}

	entry := e.mustLookup(addr)
	await := req.Await

	e.stats.Acks++

	if m.RemoveFromSharers {
		e.removeAbsentSharer(entry, sender, await)
	} else {
		if m.NewState != await.NewState {
			log.Panicf("tile %d acked address 0x%x with state %s, "+
				"expecting %s", sender, addr, m.NewState, await.NewState)
		}

		e.absorbData(req, await, m)
		e.applyAck(entry, sender, m.NewState, await.ReplyExpected)
	}

	e.settle(entry)

	if e.domain != nil && req.TaskID != "" {
		tracing.AddTaskStep(req.TaskID, e.domain, "ack")
	}

	if e.queue.AckReceived(addr, sender) {
		e.kick(req)
	}

	e.drain()
}

func (e *Engine) removeAbsentSharer(
	entry *directory.Entry,
	sender coherence.TileID,
	await *pending.Await,
) {
	switch {
	case await.ReplyExpected:
		entry.Sharers.RemoveSharer(sender, true)
	case entry.Sharers.HasSharer(sender):
		entry.Sharers.RemoveSharer(sender, false)
	}

	if entry.Owner == sender {
		entry.Owner = coherence.InvalidTileID
	}
}

func (e *Engine) absorbData(
	req *pending.Request,
	await *pending.Await,
	m *coherence.AckMsg,
) {
	if len(m.Data) == 0 {
		return
	}

	if await.NewState == coherence.CacheOwned {
		req.Data = append([]byte(nil), m.Data...)
		req.HasData = true

		return
	}

	if m.Dirty {
		e.writeMemory(m.Address, m.Data)
	}
}

func (e *Engine) applyAck(
	entry *directory.Entry,
	sender coherence.TileID,
	state coherence.CacheState,
	replyExpected bool,
) {
	switch state {
	case coherence.CacheInvalid:
		entry.Sharers.RemoveSharer(sender, replyExpected)

		if entry.Owner == sender {
			entry.Owner = coherence.InvalidTileID
		}
	case coherence.CacheShared:
		if entry.Owner == sender {
			entry.Owner = coherence.InvalidTileID
		}

		entry.State = coherence.DirShared
	case coherence.CacheOwned:
		if entry.Owner != sender {
			log.Panicf("tile %d is not the owner of address 0x%x",
				sender, entry.Address)
		}

		entry.State = coherence.DirOwned
	default:
		log.Panicf("tile %d acked address 0x%x with state %s",
			sender, entry.Address, state)
	}
}

// settle derives the state from the sharers after a sharer left or changed.
func (e *Engine) settle(entry *directory.Entry) {
	if entry.Sharers.IsEmpty() {
		entry.State = coherence.DirUncached
		entry.Owner = coherence.InvalidTileID

		return
	}

	if entry.Owner == coherence.InvalidTileID &&
		(entry.State == coherence.DirExclusive ||
			entry.State == coherence.DirOwned) {
		entry.State = coherence.DirShared
	}
}

// OnWriteback handles a line evicted by a cache. It takes effect at once,
// even while a transaction holds the address.
func (e *Engine) OnWriteback(m *coherence.WritebackMsg) {
	addr := m.Address
	sender := m.Sender
	entry := e.mustLookup(addr)

	e.stats.Writebacks++

	if m.Dirty && len(m.Data) > 0 {
		e.writeMemory(addr, m.Data)
	}

	entry.Sharers.RemoveSharer(sender, false)

	if entry.Owner == sender {
		entry.Owner = coherence.InvalidTileID
	}

	e.settle(entry)

	await := e.queue.Awaiting(addr)
	if await != nil && await.CountWritebacks {
		req := e.queue.Active(addr)
		if e.queue.AckReceived(addr, sender) {
			e.kick(req)
		}
	}

	e.drain()
}

func (e *Engine) mustLookup(addr uint64) *directory.Entry {
	entry, ok := e.dir.Lookup(addr)
	if !ok {
		log.Panicf("directory %d has no entry for address 0x%x", e.home, addr)
	}

	return entry
}

func (e *Engine) kick(req *pending.Request) {
	e.ready = append(e.ready, req)
}

// drain runs the transactions that are ready to make progress. Finishing a
// transaction can make others ready, so they are run from a work list
// rather than by recursion.
func (e *Engine) drain() {
	if e.draining {
		return
	}

	e.draining = true
	defer func() { e.draining = false }()

	for len(e.ready) > 0 {
		req := e.ready[0]
		e.ready = e.ready[1:]

		e.process(req)
	}
}

func (e *Engine) process(req *pending.Request) {
	if e.queue.Active(req.Address) != req {
		log.Panicf("running a %s on address 0x%x that is not active",
			req.Type, req.Address)
	}

	if req.Await != nil || req.Blocked || req.Stalled {
		return
	}

	if req.Type == coherence.ReqNullify {
		e.processNullify(req)
		return
	}

	entry := e.resolveEntry(req)
	if entry == nil {
		return
	}

	switch req.Type {
	case coherence.ReqRead:
		e.processRead(req, entry)
	case coherence.ReqWrite:
		e.processWrite(req, entry)
	}
}

func (e *Engine) startTrace(req *pending.Request, entry *directory.Entry) {
	req.Started = true
	req.InitialState = entry.State

	if e.domain == nil {
		return
	}

	req.TaskID = sim.GetIDGenerator().Generate()

	parentID := ""
	if req.Msg != nil {
		parentID = req.Msg.ID + "_req_out"
	}

	tracing.StartTask(req.TaskID, parentID, e.domain,
		"coherence_transaction", req.Type.String(), req)
}

// resolveEntry finds or allocates the entry of a request. It returns nil if
// the request has to wait for a free slot.
func (e *Engine) resolveEntry(req *pending.Request) *directory.Entry {
	if req.Started {
		return e.mustLookup(req.Address)
	}

	entry, ok := e.dir.GetOrAllocate(req.Address)
	if ok {
		e.startTrace(req, entry)
		return entry
	}

	victim, ok := e.victimFinder.FindVictim(e.dir, req.Address, e.queue)
	if !ok {
		setID := e.dir.SetID(req.Address)
		req.Stalled = true
		e.stalled[setID] = append(e.stalled[setID], req)
		e.stats.Stalls++

		return nil
	}

	e.evict(victim, req)

	return nil
}

// evict starts retiring the victim. The fresh entry takes the victim's slot
// right away, but the request only runs after the victim is retired.
func (e *Engine) evict(victim *directory.Entry, req *pending.Request) {
	e.dir.Replace(victim.Address, req.Address)

	req.Blocked = true
	req.BlockedOn = victim.Address
	e.blocked[victim.Address] = req

	nullify := &pending.Request{
		Type:      coherence.ReqNullify,
		Address:   victim.Address,
		Requester: e.home,
	}

	e.stats.Nullifies++

	if !e.queue.Enqueue(nullify) {
		log.Panicf("evicting address 0x%x that has queued requests",
			victim.Address)
	}

	e.kick(nullify)
}

func (e *Engine) processNullify(req *pending.Request) {
	entry := e.mustLookup(req.Address)
	if !entry.Retiring {
		log.Panicf("nullifying address 0x%x that is not retiring",
			req.Address)
	}

	if !req.Started {
		e.startTrace(req, entry)
	}

	if !entry.Sharers.IsEmpty() {
		e.invalidate(req, entry, coherence.InvalidTileID)
		return
	}

	entry.State = coherence.DirUncached
	entry.Owner = coherence.InvalidTileID
	e.dir.Retire(req.Address)
	e.finish(req)

	if blocked, ok := e.blocked[req.Address]; ok {
		delete(e.blocked, req.Address)
		blocked.Blocked = false
		e.kick(blocked)
	}
}

func (e *Engine) processRead(req *pending.Request, entry *directory.Entry) {
	r := req.Requester

	if entry.Sharers.HasSharer(r) {
		e.reply(req, entry, e.stateHeldBy(entry, r), nil)
		e.finish(req)

		return
	}

	switch entry.State {
	case coherence.DirUncached:
		e.addSharer(entry, r)
		entry.State = coherence.DirShared
		e.reply(req, entry, coherence.CacheShared, e.readMemory(req.Address))
		e.finish(req)
	case coherence.DirShared:
		if !entry.Sharers.AddSharer(r) {
			e.sendUpdates(req, entry, coherence.CacheInvalid,
				[]coherence.TileID{entry.Sharers.OneSharer()})

			return
		}

		e.reply(req, entry, coherence.CacheShared, e.readMemory(req.Address))
		e.finish(req)
	case coherence.DirExclusive:
		state := coherence.CacheShared
		if e.protocol == coherence.MOSI {
			state = coherence.CacheOwned
		}

		e.sendUpdates(req, entry, state, []coherence.TileID{entry.Owner})
	case coherence.DirOwned:
		if !req.HasData {
			e.sendUpdates(req, entry, coherence.CacheOwned,
				[]coherence.TileID{entry.Owner})

			return
		}

		if !entry.Sharers.AddSharer(r) {
			e.sendUpdates(req, entry, coherence.CacheInvalid,
				[]coherence.TileID{entry.Sharers.OneSharer()})

			return
		}

		e.reply(req, entry, coherence.CacheShared, req.Data)
		e.finish(req)
	}
}

func (e *Engine) stateHeldBy(
	entry *directory.Entry,
	tile coherence.TileID,
) coherence.CacheState {
	if entry.Owner == tile {
		switch entry.State {
		case coherence.DirExclusive:
			return coherence.CacheExclusive
		case coherence.DirOwned:
			return coherence.CacheOwned
		}
	}

	return coherence.CacheShared
}

func (e *Engine) processWrite(req *pending.Request, entry *directory.Entry) {
	r := req.Requester

	if entry.State == coherence.DirExclusive && entry.Owner == r {
		e.reply(req, entry, coherence.CacheExclusive, nil)
		e.finish(req)

		return
	}

	if entry.Sharers.IsEmpty() {
		e.addSharer(entry, r)
		e.grantExclusive(req, entry)

		return
	}

	all, ids := entry.Sharers.SharersList()
	if !all && len(ids) == 1 && ids[0] == r {
		e.grantExclusive(req, entry)
		return
	}

	e.invalidate(req, entry, r)
}

func (e *Engine) grantExclusive(req *pending.Request, entry *directory.Entry) {
	entry.State = coherence.DirExclusive
	entry.Owner = req.Requester

	e.reply(req, entry, coherence.CacheExclusive, e.readMemory(req.Address))
	e.finish(req)
}

func (e *Engine) addSharer(entry *directory.Entry, tile coherence.TileID) {
	if !entry.Sharers.AddSharer(tile) {
		log.Panicf("cannot add tile %d to the empty sharer set of 0x%x",
			tile, entry.Address)
	}
}

// invalidate asks every sharer except the given tile to drop the line. When
// the set cannot name its sharers, every tile is asked.
func (e *Engine) invalidate(
	req *pending.Request,
	entry *directory.Entry,
	except coherence.TileID,
) {
	all, ids := entry.Sharers.SharersList()
	if all {
		e.broadcast(req, entry, coherence.CacheInvalid)
		return
	}

	targets := make([]coherence.TileID, 0, len(ids))
	for _, id := range ids {
		if id != except {
			targets = append(targets, id)
		}
	}

	e.sendUpdates(req, entry, coherence.CacheInvalid, targets)
}

func (e *Engine) sendUpdates(
	req *pending.Request,
	entry *directory.Entry,
	state coherence.CacheState,
	targets []coherence.TileID,
) {
	for _, t := range targets {
		msg := coherence.UpdateMsgBuilder{}.
			WithSender(e.home).
			WithReceiver(t).
			WithAddress(req.Address).
			WithNewState(state).
			Build()
		e.send(msg, entry, false)
	}

	e.stats.Updates += uint64(len(targets))
	e.queue.ExpectAcks(req.Address, state, targets)
}

// broadcast sends the update to every tile. LimitedBroadcast sets have lost
// their sharers, so every tile answers. Ackwise sets know how many sharers
// there are, so only the sharers answer.
func (e *Engine) broadcast(
	req *pending.Request,
	entry *directory.Entry,
	state coherence.CacheState,
) {
	replyExpected := entry.Sharers.Scheme() == sharers.LimitedBroadcast

	n := entry.Sharers.NumSharers()
	if replyExpected {
		n = e.numTiles
	}

	for t := 0; t < e.numTiles; t++ {
		msg := coherence.UpdateMsgBuilder{}.
			WithSender(e.home).
			WithReceiver(coherence.TileID(t)).
			WithAddress(req.Address).
			WithNewState(state).
			AsBroadcast(replyExpected).
			Build()
		e.send(msg, entry, false)
	}

	e.stats.Updates += uint64(e.numTiles)
	e.stats.Broadcasts++
	e.queue.ExpectBroadcastAcks(req.Address, state, n, replyExpected)
}

func (e *Engine) reply(
	req *pending.Request,
	entry *directory.Entry,
	state coherence.CacheState,
	data []byte,
) {
	msg := coherence.ReplyMsgBuilder{}.
		WithSender(e.home).
		WithReceiver(req.Requester).
		WithAddress(req.Address).
		WithRspTo(req.Msg).
		WithNewState(state).
		WithData(data).
		Build()

	e.stats.Replies++
	e.send(msg, entry, data != nil && !req.HasData)
}

func (e *Engine) send(msg coherence.Msg, entry *directory.Entry, memRead bool) {
	delay := e.accessCycles + entry.Sharers.Latency()
	if memRead {
		delay += e.dramCycles
	}

	e.outbox.Send(msg, delay)
}

func (e *Engine) readMemory(addr uint64) []byte {
	e.stats.MemReads++
	return e.store.ReadLine(addr)
}

func (e *Engine) writeMemory(addr uint64, data []byte) {
	e.stats.MemWrites++
	e.store.WriteLine(addr, data)
}

// finish completes the active transaction of the address and starts the
// next one. Requests stalled on the set get another chance.
func (e *Engine) finish(req *pending.Request) {
	if e.domain != nil && req.TaskID != "" {
		tracing.EndTask(req.TaskID, e.domain)
	}

	if next := e.queue.DequeueNext(req.Address); next != nil {
		e.kick(next)
	}

	setID := e.dir.SetID(req.Address)

	stalled := e.stalled[setID]
	if len(stalled) == 0 {
		return
	}

	delete(e.stalled, setID)

	for _, s := range stalled {
		s.Stalled = false
		e.kick(s)
	}
}
