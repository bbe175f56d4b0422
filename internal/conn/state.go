// Package conn owns the connection lifecycle: the state machine published to
// observers, the transport contract, the manager that routes inbound data
// through the active decoder, and the backoff-driven reconnector.
package conn

// Status is the connection state machine position.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusDiscoveringServices
	StatusConnected
	StatusConnectionLost
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusDiscoveringServices:
		return "discovering-services"
	case StatusConnected:
		return "connected"
	case StatusConnectionLost:
		return "connection-lost"
	case StatusFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// State is one published connection-state snapshot. Addr and Name identify
// the peer for every status past Disconnected; Reason and Err carry
// diagnostics for ConnectionLost and Failed.
type State struct {
	Status Status
	Addr   string
	Name   string
	Reason string
	Err    error
}
