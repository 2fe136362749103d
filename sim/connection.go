package sim

// SendError marks a failed send or delivery.
type SendError struct{}

// NewSendError creates a SendError.
func NewSendError() *SendError {
	return new(SendError)
}

// A Connection delivers messages to their destination ports.
type Connection interface {
	Named
	Hookable

	PlugIn(port Port)
	Unplug(port Port)
	NotifyAvailable(port Port)
	NotifySend()
}

// HookPosConnDeliver marks a connection delivering a message.
var HookPosConnDeliver = &HookPos{Name: "Conn Deliver"}
