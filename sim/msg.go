package sim

// A Msg is a piece of information transferred between components.
type Msg interface {
	Meta() *MsgMeta
	Clone() Msg
}

// MsgMeta contains the meta data that is attached to every message.
type MsgMeta struct {
	ID           string
	Src, Dst     RemotePort
	TrafficClass string
	TrafficBytes int
}

// Rsp is a message that marks the completion of a request.
type Rsp interface {
	Msg
	GetRspTo() string
}
