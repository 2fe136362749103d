package coherence

import (
	"github.com/sarchlab/tilesim/sim"
)

const controlByteOverhead = 8

// Msg is a message of the coherence protocol. Besides the port-level meta
// data, every coherence message names the tiles at both ends and the line
// address it concerns.
type Msg interface {
	sim.Msg
	Header() *MsgHeader
}

// MsgHeader holds the protocol-level routing information of a message.
type MsgHeader struct {
	Sender   TileID
	Receiver TileID
	Address  uint64
}

// A RequestMsg asks the home directory for a line in a given mode.
type RequestMsg struct {
	sim.MsgMeta
	MsgHeader

	ReqType   ReqType
	Requester TileID
}

// Meta returns the message meta.
func (m *RequestMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Header returns the protocol header.
func (m *RequestMsg) Header() *MsgHeader {
	return &m.MsgHeader
}

// Clone returns a copy of the message with a new ID.
func (m *RequestMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// An UpdateMsg asks a sharer to change its copy of a line to NewState. When
// Broadcast is set, the message is sent to every tile. A tile that does not
// hold the line answers a broadcast only if ReplyExpected is set.
type UpdateMsg struct {
	sim.MsgMeta
	MsgHeader

	NewState      CacheState
	Broadcast     bool
	ReplyExpected bool
}

// Meta returns the message meta.
func (m *UpdateMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Header returns the protocol header.
func (m *UpdateMsg) Header() *MsgHeader {
	return &m.MsgHeader
}

// Clone returns a copy of the message with a new ID.
func (m *UpdateMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// An AckMsg answers an UpdateMsg. A sharer that held the line in a dirty
// capable state attaches the line data. A tile that no longer holds the line
// sets RemoveFromSharers instead.
type AckMsg struct {
	sim.MsgMeta
	MsgHeader

	NewState          CacheState
	Data              []byte
	Dirty             bool
	RemoveFromSharers bool
}

// Meta returns the message meta.
func (m *AckMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Header returns the protocol header.
func (m *AckMsg) Header() *MsgHeader {
	return &m.MsgHeader
}

// Clone returns a copy of the message with a new ID.
func (m *AckMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// A ReplyMsg completes a RequestMsg. It grants NewState and carries the line.
type ReplyMsg struct {
	sim.MsgMeta
	MsgHeader

	RespondTo string
	ReqType   ReqType
	NewState  CacheState
	Data      []byte
}

// Meta returns the message meta.
func (m *ReplyMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Header returns the protocol header.
func (m *ReplyMsg) Header() *MsgHeader {
	return &m.MsgHeader
}

// Clone returns a copy of the message with a new ID.
func (m *ReplyMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// GetRspTo returns the ID of the request being replied.
func (m *ReplyMsg) GetRspTo() string {
	return m.RespondTo
}

// A WritebackMsg tells the home directory that a cache evicted a line. Dirty
// lines carry their data. Clean lines send a notice without data.
type WritebackMsg struct {
	sim.MsgMeta
	MsgHeader

	Data  []byte
	Dirty bool
}

// Meta returns the message meta.
func (m *WritebackMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

// Header returns the protocol header.
func (m *WritebackMsg) Header() *MsgHeader {
	return &m.MsgHeader
}

// Clone returns a copy of the message with a new ID.
func (m *WritebackMsg) Clone() sim.Msg {
	cloneMsg := *m
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

type headerBuilder struct {
	sender, receiver TileID
	address          uint64
}

func (b headerBuilder) header() MsgHeader {
	return MsgHeader{
		Sender:   b.sender,
		Receiver: b.receiver,
		Address:  b.address,
	}
}

func meta(class string, payload int) sim.MsgMeta {
	return sim.MsgMeta{
		ID:           sim.GetIDGenerator().Generate(),
		TrafficClass: class,
		TrafficBytes: controlByteOverhead + payload,
	}
}

// RequestMsgBuilder can build RequestMsgs.
type RequestMsgBuilder struct {
	headerBuilder
	reqType ReqType
}

// WithSender sets the tile that sends the request. The sender is also the
// requester.
func (b RequestMsgBuilder) WithSender(t TileID) RequestMsgBuilder {
	b.sender = t
	return b
}

// WithReceiver sets the home tile of the address.
func (b RequestMsgBuilder) WithReceiver(t TileID) RequestMsgBuilder {
	b.receiver = t
	return b
}

// WithAddress sets the line address.
func (b RequestMsgBuilder) WithAddress(addr uint64) RequestMsgBuilder {
	b.address = addr
	return b
}

// WithReqType sets the request type.
func (b RequestMsgBuilder) WithReqType(t ReqType) RequestMsgBuilder {
	b.reqType = t
	return b
}

// Build creates a new RequestMsg.
func (b RequestMsgBuilder) Build() *RequestMsg {
	return &RequestMsg{
		MsgMeta:   meta("coherence.RequestMsg", 0),
		MsgHeader: b.header(),
		ReqType:   b.reqType,
		Requester: b.sender,
	}
}

// UpdateMsgBuilder can build UpdateMsgs.
type UpdateMsgBuilder struct {
	headerBuilder
	newState      CacheState
	broadcast     bool
	replyExpected bool
}

// WithSender sets the home tile that sends the update.
func (b UpdateMsgBuilder) WithSender(t TileID) UpdateMsgBuilder {
	b.sender = t
	return b
}

// WithReceiver sets the sharer that receives the update.
func (b UpdateMsgBuilder) WithReceiver(t TileID) UpdateMsgBuilder {
	b.receiver = t
	return b
}

// WithAddress sets the line address.
func (b UpdateMsgBuilder) WithAddress(addr uint64) UpdateMsgBuilder {
	b.address = addr
	return b
}

// WithNewState sets the state that the sharer must move to.
func (b UpdateMsgBuilder) WithNewState(s CacheState) UpdateMsgBuilder {
	b.newState = s
	return b
}

// AsBroadcast marks the update as part of a broadcast.
func (b UpdateMsgBuilder) AsBroadcast(replyExpected bool) UpdateMsgBuilder {
	b.broadcast = true
	b.replyExpected = replyExpected

	return b
}

// Build creates a new UpdateMsg.
func (b UpdateMsgBuilder) Build() *UpdateMsg {
	return &UpdateMsg{
		MsgMeta:       meta("coherence.UpdateMsg", 0),
		MsgHeader:     b.header(),
		NewState:      b.newState,
		Broadcast:     b.broadcast,
		ReplyExpected: b.replyExpected,
	}
}

// AckMsgBuilder can build AckMsgs.
type AckMsgBuilder struct {
	headerBuilder
	newState          CacheState
	data              []byte
	dirty             bool
	removeFromSharers bool
}

// WithSender sets the sharer that sends the ack.
func (b AckMsgBuilder) WithSender(t TileID) AckMsgBuilder {
	b.sender = t
	return b
}

// WithReceiver sets the home tile.
func (b AckMsgBuilder) WithReceiver(t TileID) AckMsgBuilder {
	b.receiver = t
	return b
}

// WithAddress sets the line address.
func (b AckMsgBuilder) WithAddress(addr uint64) AckMsgBuilder {
	b.address = addr
	return b
}

// WithNewState sets the state the sharer moved to.
func (b AckMsgBuilder) WithNewState(s CacheState) AckMsgBuilder {
	b.newState = s
	return b
}

// WithData attaches the line data.
func (b AckMsgBuilder) WithData(data []byte, dirty bool) AckMsgBuilder {
	b.data = data
	b.dirty = dirty

	return b
}

// RemoveFromSharers marks that the sender does not hold the line.
func (b AckMsgBuilder) RemoveFromSharers() AckMsgBuilder {
	b.removeFromSharers = true
	return b
}

// Build creates a new AckMsg.
func (b AckMsgBuilder) Build() *AckMsg {
	return &AckMsg{
		MsgMeta:           meta("coherence.AckMsg", len(b.data)),
		MsgHeader:         b.header(),
		NewState:          b.newState,
		Data:              b.data,
		Dirty:             b.dirty,
		RemoveFromSharers: b.removeFromSharers,
	}
}

// ReplyMsgBuilder can build ReplyMsgs.
type ReplyMsgBuilder struct {
	headerBuilder
	rspTo    string
	reqType  ReqType
	newState CacheState
	data     []byte
}

// WithSender sets the home tile.
func (b ReplyMsgBuilder) WithSender(t TileID) ReplyMsgBuilder {
	b.sender = t
	return b
}

// WithReceiver sets the requester.
func (b ReplyMsgBuilder) WithReceiver(t TileID) ReplyMsgBuilder {
	b.receiver = t
	return b
}

// WithAddress sets the line address.
func (b ReplyMsgBuilder) WithAddress(addr uint64) ReplyMsgBuilder {
	b.address = addr
	return b
}

// WithRspTo sets the request being replied.
func (b ReplyMsgBuilder) WithRspTo(req *RequestMsg) ReplyMsgBuilder {
	if req != nil {
		b.rspTo = req.ID
		b.reqType = req.ReqType
	}

	return b
}

// WithNewState sets the state granted to the requester.
func (b ReplyMsgBuilder) WithNewState(s CacheState) ReplyMsgBuilder {
	b.newState = s
	return b
}

// WithData attaches the line data.
func (b ReplyMsgBuilder) WithData(data []byte) ReplyMsgBuilder {
	b.data = data
	return b
}

// Build creates a new ReplyMsg.
func (b ReplyMsgBuilder) Build() *ReplyMsg {
	return &ReplyMsg{
		MsgMeta:   meta("coherence.ReplyMsg", len(b.data)),
		MsgHeader: b.header(),
		RespondTo: b.rspTo,
		ReqType:   b.reqType,
		NewState:  b.newState,
		Data:      b.data,
	}
}

// WritebackMsgBuilder can build WritebackMsgs.
type WritebackMsgBuilder struct {
	headerBuilder
	data  []byte
	dirty bool
}

// WithSender sets the evicting cache.
func (b WritebackMsgBuilder) WithSender(t TileID) WritebackMsgBuilder {
	b.sender = t
	return b
}

// WithReceiver sets the home tile.
func (b WritebackMsgBuilder) WithReceiver(t TileID) WritebackMsgBuilder {
	b.receiver = t
	return b
}

// WithAddress sets the line address.
func (b WritebackMsgBuilder) WithAddress(addr uint64) WritebackMsgBuilder {
	b.address = addr
	return b
}

// WithDirtyData attaches modified line data.
func (b WritebackMsgBuilder) WithDirtyData(data []byte) WritebackMsgBuilder {
	b.data = data
	b.dirty = true

	return b
}

// Build creates a new WritebackMsg.
func (b WritebackMsgBuilder) Build() *WritebackMsg {
	return &WritebackMsg{
		MsgMeta:   meta("coherence.WritebackMsg", len(b.data)),
		MsgHeader: b.header(),
		Data:      b.data,
		Dirty:     b.dirty,
	}
}
