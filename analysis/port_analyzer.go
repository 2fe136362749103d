package analysis

import (
	"math"

	"github.com/sarchlab/tilesim/sim"
)

type trafficEntry struct {
	remotePort sim.RemotePort
	outBytes   int64
	outMsgs    int64
	inBytes    int64
	inMsgs     int64
}

// PortAnalyzer is a port hook that adds up the messages and bytes a port
// exchanges with each remote port. With a period, the totals are reported
// once per period. Otherwise they are reported by Flush.
type PortAnalyzer struct {
	logger     PerfLogger
	timeTeller sim.TimeTeller

	usePeriod bool
	period    sim.VTimeInSec
	port      sim.Port

	lastTime sim.VTimeInSec
	traffic  map[sim.RemotePort]*trafficEntry
	order    []sim.RemotePort
}

// Func counts a message that is sent or received by the port.
func (h *PortAnalyzer) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosPortMsgSend && ctx.Pos != sim.HookPosPortMsgRecvd {
		return
	}

	msg, ok := ctx.Item.(sim.Msg)
	if !ok {
		return
	}

	now := h.timeTeller.CurrentTime()
	if h.usePeriod && now >= h.periodEndTime(h.lastTime) {
		h.summarize(h.periodStartTime(h.lastTime), h.periodEndTime(h.lastTime))
	}

	incoming := ctx.Pos == sim.HookPosPortMsgRecvd

	remote := msg.Meta().Dst
	if incoming {
		remote = msg.Meta().Src
	}

	entry := h.entry(remote)
	if incoming {
		entry.inBytes += int64(msg.Meta().TrafficBytes)
		entry.inMsgs++
	} else {
		entry.outBytes += int64(msg.Meta().TrafficBytes)
		entry.outMsgs++
	}

	h.lastTime = now
}

func (h *PortAnalyzer) entry(remote sim.RemotePort) *trafficEntry {
	entry, ok := h.traffic[remote]
	if !ok {
		entry = &trafficEntry{remotePort: remote}
		h.traffic[remote] = entry
		h.order = append(h.order, remote)
	}

	return entry
}

// Flush reports the traffic that has not been reported yet.
func (h *PortAnalyzer) Flush() {
	start := sim.VTimeInSec(0)
	if h.usePeriod {
		start = h.periodStartTime(h.lastTime)
	}

	h.summarize(start, h.timeTeller.CurrentTime())
}

func (h *PortAnalyzer) summarize(start, end sim.VTimeInSec) {
	for _, remote := range h.order {
		entry := h.traffic[remote]
		perfEntry := PerfEntry{
			Start:       float64(start),
			End:         float64(end),
			Where:       h.port.Name(),
			WhereRemote: string(remote),
		}

		if entry.inMsgs != 0 {
			perfEntry.What = "Incoming"
			h.log(perfEntry, float64(entry.inBytes), "Byte")
			h.log(perfEntry, float64(entry.inMsgs), "Msg")
		}

		if entry.outMsgs != 0 {
			perfEntry.What = "Outgoing"
			h.log(perfEntry, float64(entry.outBytes), "Byte")
			h.log(perfEntry, float64(entry.outMsgs), "Msg")
		}
	}

	h.traffic = make(map[sim.RemotePort]*trafficEntry)
	h.order = nil
}

func (h *PortAnalyzer) log(entry PerfEntry, value float64, unit string) {
	entry.Value = value
	entry.Unit = unit
	h.logger.AddDataEntry(entry)
}

func (h *PortAnalyzer) periodStartTime(t sim.VTimeInSec) sim.VTimeInSec {
	return sim.VTimeInSec(math.Floor(float64(t/h.period))) * h.period
}

func (h *PortAnalyzer) periodEndTime(t sim.VTimeInSec) sim.VTimeInSec {
	return h.periodStartTime(t) + h.period
}

// PortAnalyzerBuilder can build a PortAnalyzer.
type PortAnalyzerBuilder struct {
	logger     PerfLogger
	timeTeller sim.TimeTeller
	usePeriod  bool
	period     sim.VTimeInSec
	port       sim.Port
}

// MakePortAnalyzerBuilder creates a PortAnalyzerBuilder.
func MakePortAnalyzerBuilder() PortAnalyzerBuilder {
	return PortAnalyzerBuilder{}
}

// WithPerfLogger sets the logger that receives the entries.
func (b PortAnalyzerBuilder) WithPerfLogger(l PerfLogger) PortAnalyzerBuilder {
	b.logger = l
	return b
}

// WithTimeTeller sets the TimeTeller to be used by the PortAnalyzer.
func (b PortAnalyzerBuilder) WithTimeTeller(
	t sim.TimeTeller,
) PortAnalyzerBuilder {
	b.timeTeller = t
	return b
}

// WithPeriod makes the analyzer report once per period.
func (b PortAnalyzerBuilder) WithPeriod(p sim.VTimeInSec) PortAnalyzerBuilder {
	b.usePeriod = p > 0
	b.period = p

	return b
}

// WithPort sets the port to analyze.
func (b PortAnalyzerBuilder) WithPort(p sim.Port) PortAnalyzerBuilder {
	b.port = p
	return b
}

// Build creates a PortAnalyzer and hooks it to the port.
func (b PortAnalyzerBuilder) Build() *PortAnalyzer {
	if b.logger == nil {
		panic("PortAnalyzer requires a PerfLogger")
	}

	if b.timeTeller == nil {
		panic("PortAnalyzer requires a TimeTeller")
	}

	if b.port == nil {
		panic("PortAnalyzer requires a Port")
	}

	h := &PortAnalyzer{
		logger:     b.logger,
		timeTeller: b.timeTeller,
		usePeriod:  b.usePeriod,
		period:     b.period,
		port:       b.port,
		traffic:    make(map[sim.RemotePort]*trafficEntry),
	}

	b.port.AcceptHook(h)

	return h
}
