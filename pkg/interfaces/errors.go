package interfaces

import "errors"

// Common errors shared across component boundaries
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrUnauthorized   = errors.New("unauthorized access")
)
