package interfaces

import (
	"walink/pkg/types"
)

// Publisher fans coordinator output out to admin UI observers. Multiple
// tabs may be connected; each is an independent observer of the same
// stream, with no cross-tab synchronization beyond that.
type Publisher interface {
	// PublishSessions broadcasts the current session list read model.
	PublishSessions(views []types.SessionView)

	// PublishTransient broadcasts the connect/QR dialog state.
	PublishTransient(state types.TransientState)

	// PublishNotice broadcasts a one-shot toast notification.
	PublishNotice(notice types.Notice)
}
