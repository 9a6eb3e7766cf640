package interfaces

import (
	"context"
	"time"

	"walink/pkg/types"
)

// JournalEntry is one appended row in the session event journal.
// Seq is assigned by the journal on insert and is strictly increasing,
// giving every recorded event an explicit arrival order.
type JournalEntry struct {
	Seq        int64     `json:"seq"`
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Journal kinds beyond the four gateway event kinds: dispatcher outcomes
// are journaled too, so the audit trail covers caller-initiated changes.
const (
	JournalKindConnectRequested = "connect_requested"
	JournalKindQRFetched        = "qr_fetched"
	JournalKindLogout           = "logout"
)

// Journal persists the event audit trail and the last known record per
// tenant, so a restarted coordinator can seed its store before the first
// authoritative fetch succeeds.
type Journal interface {
	// Append records an event or dispatcher outcome. The entry's Seq and
	// ID fields are ignored on input and assigned by the journal.
	Append(ctx context.Context, entry JournalEntry) error

	// SaveSnapshots upserts the last known record for each tenant.
	SaveSnapshots(ctx context.Context, records []types.SessionRecord) error

	// LoadSnapshots returns the persisted records from the previous run.
	LoadSnapshots(ctx context.Context) ([]types.SessionRecord, error)

	// TenantEvents returns the most recent entries for one tenant,
	// newest first, at most limit rows.
	TenantEvents(ctx context.Context, tenantID string, limit int) ([]JournalEntry, error)
}
