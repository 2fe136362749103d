// Package workload provides an agent that drives the private caches of all
// the tiles with random loads and stores and checks that every load returns
// the last value stored to its address.
package workload

import (
	"encoding/binary"
	"fmt"
	"log"
	"math/rand"
	"reflect"

	"github.com/sarchlab/tilesim/mem/mem"
	"github.com/sarchlab/tilesim/sim"
)

const wordSize = 4

// A Mismatch is a load that did not return the last stored value.
type Mismatch struct {
	Tile     int
	Address  uint64
	Expected uint32
	Actual   uint32
}

func (m Mismatch) String() string {
	return fmt.Sprintf("tile %d read 0x%x at 0x%x, expected 0x%x",
		m.Tile, m.Actual, m.Address, m.Expected)
}

type access struct {
	tile    int
	address uint64
	isRead  bool
}

// ProgressReporter is told about the accesses as they are issued and
// completed.
type ProgressReporter interface {
	IncrementInProgress(amount uint64)
	MoveInProgressToFinished(amount uint64)
}

// Agent issues loads and stores to the private caches.
type Agent struct {
	*sim.TickingComponent

	ports      []sim.Port
	targets    []sim.RemotePort
	rand       *rand.Rand
	maxAddress uint64

	concurrent  bool
	maxInFlight int

	readLeft  int
	writeLeft int
	inFlight  []int
	pending   map[string]access
	known     map[uint64]uint32

	readsDone  uint64
	writesDone uint64
	mismatches []Mismatch

	progress ProgressReporter
}

// Port returns the port that talks to the cache of a tile.
func (a *Agent) Port(tile int) sim.Port {
	return a.ports[tile]
}

// SetTarget sets the port of the cache that serves a tile.
func (a *Agent) SetTarget(tile int, port sim.RemotePort) {
	a.targets[tile] = port
}

// SetProgressReporter sets the reporter of the access progress.
func (a *Agent) SetProgressReporter(p ProgressReporter) {
	a.progress = p
}

// Done tells if all the accesses are issued and completed.
func (a *Agent) Done() bool {
	return a.readLeft == 0 && a.writeLeft == 0 && len(a.pending) == 0
}

// ReadsDone returns the number of completed loads.
func (a *Agent) ReadsDone() uint64 {
	return a.readsDone
}

// WritesDone returns the number of completed stores.
func (a *Agent) WritesDone() uint64 {
	return a.writesDone
}

// Mismatches returns the loads that returned a stale value.
func (a *Agent) Mismatches() []Mismatch {
	return a.mismatches
}

// Tick collects responses and issues new accesses.
func (a *Agent) Tick() bool {
	madeProgress := false

	for tile := range a.ports {
		madeProgress = a.processRsp(tile) || madeProgress
	}

	if a.concurrent {
		for tile := range a.ports {
			if a.inFlight[tile] < a.maxInFlight {
				madeProgress = a.issue(tile) || madeProgress
			}
		}
	} else if len(a.pending) == 0 {
		madeProgress = a.issue(a.rand.Intn(len(a.ports))) || madeProgress
	}

	return madeProgress
}

func (a *Agent) processRsp(tile int) bool {
	msg := a.ports[tile].RetrieveIncoming()
	if msg == nil {
		return false
	}

	rsp, ok := msg.(sim.Rsp)
	if !ok {
		log.Panicf("%s cannot process message of type %s",
			a.Name(), reflect.TypeOf(msg))
	}

	acc, found := a.pending[rsp.GetRspTo()]
	if !found {
		log.Panicf("%s received a response to unknown request %s",
			a.Name(), rsp.GetRspTo())
	}

	delete(a.pending, rsp.GetRspTo())
	a.inFlight[tile]--

	if a.progress != nil {
		a.progress.MoveInProgressToFinished(1)
	}

	switch rsp := rsp.(type) {
	case *mem.DataReadyRsp:
		a.readsDone++
		a.checkRead(acc, rsp.Data)
	case *mem.WriteDoneRsp:
		a.writesDone++
	default:
		log.Panicf("%s cannot process message of type %s",
			a.Name(), reflect.TypeOf(rsp))
	}

	return true
}

func (a *Agent) checkRead(acc access, data []byte) {
	actual := binary.LittleEndian.Uint32(data)
	expected := a.known[acc.address]

	if actual != expected {
		a.mismatches = append(a.mismatches, Mismatch{
			Tile:     acc.tile,
			Address:  acc.address,
			Expected: expected,
			Actual:   actual,
		})
	}
}

func (a *Agent) shouldRead() bool {
	if a.readLeft == 0 {
		return false
	}

	if a.writeLeft == 0 {
		return true
	}

	return a.rand.Float64() > 0.5
}

func (a *Agent) issue(tile int) bool {
	if a.readLeft == 0 && a.writeLeft == 0 {
		return false
	}

	address := a.rand.Uint64() % (a.maxAddress / wordSize) * wordSize
	if a.isAddressPending(address) {
		return false
	}

	if a.shouldRead() {
		return a.doRead(tile, address)
	}

	return a.doWrite(tile, address)
}

func (a *Agent) isAddressPending(address uint64) bool {
	for _, acc := range a.pending {
		if acc.address == address {
			return true
		}
	}

	return false
}

func (a *Agent) doRead(tile int, address uint64) bool {
	req := mem.ReadReqBuilder{}.
		WithSrc(a.ports[tile].AsRemote()).
		WithDst(a.targets[tile]).
		WithAddress(address).
		WithByteSize(wordSize).
		Build()

	if err := a.ports[tile].Send(req); err != nil {
		return false
	}

	a.readLeft--
	a.track(req.ID, access{tile: tile, address: address, isRead: true})

	return true
}

func (a *Agent) doWrite(tile int, address uint64) bool {
	value := a.rand.Uint32()
	data := make([]byte, wordSize)
	binary.LittleEndian.PutUint32(data, value)

	req := mem.WriteReqBuilder{}.
		WithSrc(a.ports[tile].AsRemote()).
		WithDst(a.targets[tile]).
		WithAddress(address).
		WithData(data).
		Build()

	if err := a.ports[tile].Send(req); err != nil {
		return false
	}

	a.writeLeft--
	a.known[address] = value
	a.track(req.ID, access{tile: tile, address: address})

	return true
}

func (a *Agent) track(id string, acc access) {
	a.pending[id] = acc
	a.inFlight[acc.tile]++

	if a.progress != nil {
		a.progress.IncrementInProgress(1)
	}
}
