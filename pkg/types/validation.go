package types

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	tenantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// Shared validator instance; validator.Validate is safe for
	// concurrent use and caches struct metadata.
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// IsValidTenantID checks that a tenant ID is usable as a store key and
// URL path segment.
func IsValidTenantID(tenantID string) bool {
	if len(tenantID) < 1 || len(tenantID) > 50 {
		return false
	}
	return tenantIDRegex.MatchString(tenantID)
}

// Validate checks an event frame received from the gateway push channel.
// Frames are untrusted input; anything malformed is dropped at the edge
// before it can reach the coordinator.
func (e *GatewayEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return ErrInvalidEvent
	}
	if !IsValidTenantID(e.TenantID) {
		return ErrInvalidTenantID
	}
	if e.Kind == EventQR && e.QR == "" {
		return ErrMissingQRPayload
	}
	return nil
}

// NormalizeStatus maps a gateway-reported status string onto the known
// enum, folding anything unrecognized into StatusUnknown.
func NormalizeStatus(raw string) Status {
	s := Status(raw)
	if s.Known() {
		return s
	}
	return StatusUnknown
}
