package gateway

import "errors"

var (
	ErrEmptyBaseURL       = errors.New("gateway base URL cannot be empty")
	ErrEmptyFeedURL       = errors.New("push channel URL cannot be empty")
	ErrFeedAlreadyRunning = errors.New("event feed is already running")
	ErrGatewayStatus      = errors.New("gateway returned unexpected status")
	ErrQRNotReady         = errors.New("no QR challenge available yet")
)
