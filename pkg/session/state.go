package session

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Active states own a transport
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected
}

// Status texts shown to the operator
const (
	StatusStarting     = "Starting connection..."
	StatusWaitAnswer   = "Sending offer..."
	StatusAnswer       = "Answer applied, waiting for connection..."
	StatusChannelOpen  = "Data channel open"
	StatusChannelClose = "Data channel closed"
	StatusStopped      = "Stopped by operator"
	StatusReady        = "Disconnected. Ready."
)
