// Package pending serializes the coherence transactions of a home directory.
// Requests to one address run one at a time in arrival order. Requests to
// different addresses interleave freely.
package pending

import (
	"log"
	"sort"

	"github.com/sarchlab/tilesim/mem/coherence"
)

// A Request is one coherence transaction waiting for or holding its address.
type Request struct {
	Type      coherence.ReqType
	Address   uint64
	Requester coherence.TileID

	// Msg is the request from the cache. It is nil for NULLIFY, which the
	// directory creates itself.
	Msg *coherence.RequestMsg

	// InitialState is the directory state when the transaction started.
	InitialState coherence.DirState
	Started      bool

	// Data holds line data collected from an owner that the reply carries
	// instead of memory data.
	Data    []byte
	HasData bool

	// Await is non-nil while the transaction waits for acks.
	Await *Await

	// Stalled means every slot of the directory set is busy.
	Stalled bool

	// Blocked means the request waits for its evicted victim to retire.
	Blocked   bool
	BlockedOn uint64

	TaskID string
}

// An Await records the acks a transaction still expects.
type Await struct {
	NewState coherence.CacheState

	// Senders lists the tiles that must still answer. It is nil when the
	// await only counts answers.
	Senders map[coherence.TileID]bool

	Remaining int

	Broadcast     bool
	ReplyExpected bool

	// CountWritebacks makes eviction writebacks from any tile count as
	// answers.
	CountWritebacks bool
}

// Queue holds the per-address request queues.
type Queue struct {
	queues map[uint64][]*Request
	total  int
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{
		queues: make(map[uint64][]*Request),
	}
}

// Enqueue appends a request to the queue of its address. It returns true if
// the request becomes the active transaction of the address.
func (q *Queue) Enqueue(req *Request) bool {
	list := q.queues[req.Address]
	list = append(list, req)
	q.queues[req.Address] = list
	q.total++

	return len(list) == 1
}

// Active returns the transaction that holds the address, or nil.
func (q *Queue) Active(addr uint64) *Request {
	list := q.queues[addr]
	if len(list) == 0 {
		return nil
	}

	return list[0]
}

// Count returns the number of requests queued on the address, including the
// active one.
func (q *Queue) Count(addr uint64) int {
	return len(q.queues[addr])
}

// Len returns the number of requests in all the queues.
func (q *Queue) Len() int {
	return q.total
}

// Busy tells if any request is queued on the address.
func (q *Queue) Busy(addr uint64) bool {
	return len(q.queues[addr]) > 0
}

func (q *Queue) mustBeActive(addr uint64) *Request {
	req := q.Active(addr)
	if req == nil {
		log.Panicf("no active transaction on address 0x%x", addr)
	}

	return req
}

func (q *Queue) mustNotAwait(req *Request) {
	if req.Await != nil {
		log.Panicf("transaction on address 0x%x is already waiting for acks",
			req.Address)
	}
}

// ExpectAcks makes the active transaction wait for one ack from each of the
// senders.
func (q *Queue) ExpectAcks(
	addr uint64,
	newState coherence.CacheState,
	senders []coherence.TileID,
) {
	req := q.mustBeActive(addr)
	q.mustNotAwait(req)

	if len(senders) == 0 {
		log.Panicf("expecting acks from no tile on address 0x%x", addr)
	}

	await := &Await{
		NewState: newState,
		Senders:  make(map[coherence.TileID]bool, len(senders)),
	}

	for _, s := range senders {
		if await.Senders[s] {
			log.Panicf("expecting two acks from tile %d on address 0x%x",
				s, addr)
		}

		await.Senders[s] = true
	}

	await.Remaining = len(senders)
	req.Await = await
}

// ExpectBroadcastAcks makes the active transaction wait for n answers to a
// broadcast. If replyExpected is false, only the real sharers answer, so
// writebacks also count as answers.
func (q *Queue) ExpectBroadcastAcks(
	addr uint64,
	newState coherence.CacheState,
	n int,
	replyExpected bool,
) {
	req := q.mustBeActive(addr)
	q.mustNotAwait(req)

	if n <= 0 {
		log.Panicf("expecting %d broadcast acks on address 0x%x", n, addr)
	}

	req.Await = &Await{
		NewState:        newState,
		Remaining:       n,
		Broadcast:       true,
		ReplyExpected:   replyExpected,
		CountWritebacks: !replyExpected,
	}
}

// Awaiting returns the await of the active transaction, or nil.
func (q *Queue) Awaiting(addr uint64) *Await {
	req := q.Active(addr)
	if req == nil {
		return nil
	}

	return req.Await
}

// IsExpected tells if the active transaction waits for an answer from the
// sender.
func (q *Queue) IsExpected(addr uint64, sender coherence.TileID) bool {
	await := q.Awaiting(addr)
	if await == nil {
		return false
	}

	if await.Senders == nil {
		return await.Remaining > 0
	}

	return await.Senders[sender]
}

// AckReceived records an answer from the sender. It returns true when all the
// answers are in, which also clears the await.
func (q *Queue) AckReceived(addr uint64, sender coherence.TileID) bool {
	req := q.mustBeActive(addr)

	if !q.IsExpected(addr, sender) {
		log.Panicf("unexpected ack from tile %d on address 0x%x", sender, addr)
	}

	await := req.Await
	if await.Senders != nil {
		delete(await.Senders, sender)
	}

	await.Remaining--
	if await.Remaining > 0 {
		return false
	}

	req.Await = nil

	return true
}

// DequeueNext removes the active transaction of the address and returns the
// next one, or nil if the queue of the address is empty.
func (q *Queue) DequeueNext(addr uint64) *Request {
	list := q.queues[addr]
	if len(list) == 0 {
		log.Panicf("dequeuing from the empty queue of address 0x%x", addr)
	}

	list[0] = nil
	list = list[1:]
	q.total--

	if len(list) == 0 {
		delete(q.queues, addr)
		return nil
	}

	q.queues[addr] = list

	return list[0]
}

// Addresses returns the addresses that have queued requests, in ascending
// order.
func (q *Queue) Addresses() []uint64 {
	addrs := make([]uint64, 0, len(q.queues))
	for a := range q.queues {
		addrs = append(addrs, a)
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	return addrs
}
