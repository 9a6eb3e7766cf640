package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"walink/pkg/interfaces"
	"walink/pkg/types"
)

// Client talks to the WhatsApp gateway's connection-manager REST API.
// The gateway performs all real connection work out-of-band; these calls
// only request it and report request-level success or failure. Session
// state changes arrive separately on the push channel.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// ClientConfig holds gateway REST settings.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewClient creates a gateway REST client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid gateway base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.With().Str("component", "gateway").Logger(),
	}, nil
}

// sessionPayload is the gateway's wire shape for one session row.
type sessionPayload struct {
	TenantID    string    `json:"tenant_id"`
	SchoolName  string    `json:"school_name"`
	SessionName string    `json:"session_name"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// qrPayload is the gateway's wire shape for a QR challenge response.
type qrPayload struct {
	QR string `json:"qr"`
}

// ListSessions fetches the authoritative session collection.
func (c *Client) ListSessions(ctx context.Context) ([]types.SessionRecord, error) {
	body, err := c.do(ctx, http.MethodGet, "/sessions")
	if err != nil {
		return nil, err
	}

	var payload []sessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode session list: %w", err)
	}

	records := make([]types.SessionRecord, 0, len(payload))
	for _, p := range payload {
		if !types.IsValidTenantID(p.TenantID) {
			c.log.Warn().Str("tenant_id", p.TenantID).Msg("dropping session row with invalid tenant id")
			continue
		}
		records = append(records, types.SessionRecord{
			TenantID:    p.TenantID,
			SchoolName:  p.SchoolName,
			SessionName: p.SessionName,
			Status:      types.NormalizeStatus(p.Status),
			UpdatedAt:   p.UpdatedAt,
		})
	}
	return records, nil
}

// RequestConnection asks the gateway to start a pairing handshake for the
// tenant. The QR challenge itself arrives on the push channel.
func (c *Client) RequestConnection(ctx context.Context, tenantID string) error {
	if !types.IsValidTenantID(tenantID) {
		return types.ErrInvalidTenantID
	}
	_, err := c.do(ctx, http.MethodPost, "/sessions/"+tenantID+"/connect")
	return err
}

// FetchQR retrieves the tenant's current QR challenge directly from the
// gateway, for handshakes already mid-flight where the code may be cached
// server-side.
func (c *Client) FetchQR(ctx context.Context, tenantID string) (string, error) {
	if !types.IsValidTenantID(tenantID) {
		return "", types.ErrInvalidTenantID
	}

	body, err := c.do(ctx, http.MethodGet, "/sessions/"+tenantID+"/qr")
	if err != nil {
		return "", err
	}

	var payload qrPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode QR response: %w", err)
	}
	if payload.QR == "" {
		return "", ErrQRNotReady
	}
	return payload.QR, nil
}

// Logout tears down the tenant's active connection on the gateway.
func (c *Client) Logout(ctx context.Context, tenantID string) error {
	if !types.IsValidTenantID(tenantID) {
		return types.ErrInvalidTenantID
	}
	_, err := c.do(ctx, http.MethodDelete, "/sessions/"+tenantID)
	return err
}

// do executes one request and returns the response body for 2xx statuses.
// None of the gateway endpoints take a request body.
func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, interfaces.ErrTenantNotFound
	default:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrGatewayStatus, method, path, resp.StatusCode)
	}
}
