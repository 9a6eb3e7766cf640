package journal

import "errors"

var (
	ErrEmptyPath     = errors.New("journal database path cannot be empty")
	ErrEmptyKind     = errors.New("journal entry kind cannot be empty")
	ErrJournalClosed = errors.New("journal is closed")
)
