package types

import "errors"

var (
	ErrInvalidTenantID  = errors.New("tenant ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidEvent     = errors.New("malformed gateway event")
	ErrMissingQRPayload = errors.New("qr event carries no QR payload")
)
