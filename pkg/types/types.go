package types

import (
	"time"
)

// Status is the last known state of a tenant's WhatsApp link.
// StatusUnknown covers any value the gateway reports that this service
// does not recognize; rows with an unknown status render as inert.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusQR           Status = "qr"
	StatusUnknown      Status = "unknown"
)

// Known reports whether the status is one of the three actionable states.
func (s Status) Known() bool {
	switch s {
	case StatusConnected, StatusDisconnected, StatusQR:
		return true
	default:
		return false
	}
}

// Action is the single operation a session row offers in its current status.
type Action string

const (
	ActionConnect Action = "connect"
	ActionShowQR  Action = "show_qr"
	ActionLogout  Action = "logout"
	ActionNone    Action = "none"
)

// ActionFor maps a session status to the one legal action for that row.
// Pure function, recomputed on every listing; status transitions happen
// only through store patches, never here.
func ActionFor(s Status) Action {
	switch s {
	case StatusConnected:
		return ActionLogout
	case StatusDisconnected:
		return ActionConnect
	case StatusQR:
		return ActionShowQR
	default:
		return ActionNone
	}
}

// SessionRecord is the last known link state for one tenant (school).
// TenantID is the primary key; the store holds at most one record per tenant.
// Revision is a monotonic arrival counter assigned by the store on every
// accepted write, making last-write-wins ordering observable.
type SessionRecord struct {
	TenantID    string    `json:"tenant_id"`
	SchoolName  string    `json:"school_name"`
	SessionName string    `json:"session_name,omitempty"`
	Status      Status    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
	Revision    uint64    `json:"revision"`
}

// PartialRecord is a typed point patch for an existing SessionRecord.
// Nil fields are left untouched by the merge.
type PartialRecord struct {
	Status      *Status
	SessionName *string
	UpdatedAt   *time.Time
}

// StatusPatch builds the common patch that only moves a record's status.
func StatusPatch(s Status, at time.Time) PartialRecord {
	return PartialRecord{Status: &s, UpdatedAt: &at}
}

// EventKind identifies one of the four push-event kinds the gateway emits.
type EventKind string

const (
	EventQR           EventKind = "qr"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventError        EventKind = "error"
)

// GatewayEvent is one frame from the gateway's push channel.
// QR is set only for EventQR, Message only for EventError.
type GatewayEvent struct {
	Kind     EventKind `json:"event" validate:"required,oneof=qr connected disconnected error"`
	TenantID string    `json:"tenant_id" validate:"required,max=50"`
	QR       string    `json:"qr,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// TransientState is the coordinator-scoped connect/QR dialog state.
// It is not persisted; it resets when the dialog closes or a connect or
// logout flow concludes. The in-flight flags are coarse on purpose: only
// one tenant can be the active one at a time.
type TransientState struct {
	ActiveTenantID  string `json:"active_tenant_id,omitempty"`
	QRPayload       string `json:"qr_payload,omitempty"`
	DialogOpen      bool   `json:"dialog_open"`
	ConnectInFlight bool   `json:"connect_in_flight"`
	LogoutInFlight  bool   `json:"logout_in_flight"`
}

// NoticeLevel classifies a notice for toast rendering.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a one-shot user-visible notification produced by the
// coordinator and broadcast to admin UI clients.
type Notice struct {
	ID       string      `json:"id"`
	Level    NoticeLevel `json:"level"`
	TenantID string      `json:"tenant_id,omitempty"`
	Message  string      `json:"message"`
	At       time.Time   `json:"at"`
}

// SessionView pairs a record with its derived row action for listing.
type SessionView struct {
	SessionRecord
	Action Action `json:"action"`
}

// ViewOf derives the presentation row for a record.
func ViewOf(rec SessionRecord) SessionView {
	return SessionView{SessionRecord: rec, Action: ActionFor(rec.Status)}
}
