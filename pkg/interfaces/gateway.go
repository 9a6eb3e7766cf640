package interfaces

import (
	"context"

	"walink/pkg/types"
)

// Gateway is the backend connection manager the coordinator dispatches to.
// All real connection work (pairing, QR issuance, teardown) happens on the
// gateway side, out-of-band; these calls only request it.
type Gateway interface {
	// ListSessions returns the authoritative session collection, one
	// record per tenant the gateway knows about.
	ListSessions(ctx context.Context) ([]types.SessionRecord, error)

	// RequestConnection asks the gateway to start a pairing handshake for
	// the tenant. The QR challenge arrives later on the push channel.
	RequestConnection(ctx context.Context, tenantID string) error

	// FetchQR retrieves the tenant's current QR challenge directly, for
	// handshakes already in the qr state where the code may be cached
	// server-side.
	FetchQR(ctx context.Context, tenantID string) (string, error)

	// Logout tears down the tenant's active connection.
	Logout(ctx context.Context, tenantID string) error
}

// EventSource delivers gateway push events to the coordinator.
// The source owns transport concerns (reconnect, backoff); the coordinator
// only consumes the channel. The channel closes when the source shuts down.
type EventSource interface {
	Events() <-chan types.GatewayEvent
}
