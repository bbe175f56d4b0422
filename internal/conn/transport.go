package conn

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("conn: not connected")
	ErrNoDecoder    = errors.New("conn: no active decoder")
)

// Transport is the physical link the manager drives. Implementations call
// back into the manager (HandleServicesDiscovered, HandleData,
// HandleDisconnected) from their own read path.
type Transport interface {
	// Connect establishes the link to addr. It returns once the link is up;
	// service discovery completes asynchronously via the manager callback.
	Connect(ctx context.Context, addr string) error

	// Disconnect tears the link down. Safe when not connected.
	Disconnect() error

	// Write sends one raw payload to the peer.
	Write(ctx context.Context, data []byte) error

	// StartScan begins device discovery; results surface transport-side.
	StartScan(ctx context.Context) error

	// StopScan ends device discovery. Safe when no scan is running.
	StopScan() error
}
