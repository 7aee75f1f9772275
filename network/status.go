package network

type Status uint8

const (
	StatusUnknown Status = iota
	StatusIdle
	StatusConnected
	StatusConnectFailed
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnected:
		return "connected"
	case StatusConnectFailed:
		return "connect-failed"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
