// Package transport defines the interface for pluggable client transports.
//
// Each transport (HTTP/WebSocket, gRPC) exposes the same Assistant to remote
// clients. Transports never touch coordinator state directly; they only call
// the operations below and relay snapshots.
package transport

import (
	"context"

	"github.com/nadzzz/parley/internal/coordinator"
)

// Assistant is the client-facing surface of the turn coordinator.
type Assistant interface {
	Submit(text string) error
	Cancel()
	ToggleMic() (coordinator.Snapshot, error)
	SetAutoContinue(enabled bool)
	Reset()
	Snapshot() coordinator.Snapshot
	Subscribe(buffer int) (<-chan coordinator.Snapshot, func())
}

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting requests and serves them from a.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, a Assistant) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
