package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"walink/pkg/types"
)

const (
	// feedBuffer absorbs event bursts while the coordinator loop is busy.
	feedBuffer = 256

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Feed subscribes to the gateway's push channel over a persistent
// websocket and delivers decoded events on a channel. The feed owns all
// transport concerns: it redials with exponential backoff after any
// failure and drops malformed frames at the edge. Consumers only see
// validated events.
type Feed struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	events  chan types.GatewayEvent
	log     zerolog.Logger
	started bool
	mu      sync.Mutex
}

// FeedConfig holds push-channel settings.
type FeedConfig struct {
	URL   string
	Token string
}

// NewFeed creates an event feed. Run must be called to start consuming.
func NewFeed(cfg FeedConfig, logger zerolog.Logger) (*Feed, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyFeedURL
	}

	return &Feed{
		url:    cfg.URL,
		token:  cfg.Token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: make(chan types.GatewayEvent, feedBuffer),
		log:    logger.With().Str("component", "gateway-feed").Logger(),
	}, nil
}

// Events returns the channel of validated gateway events. The channel is
// closed when Run returns.
func (f *Feed) Events() <-chan types.GatewayEvent {
	return f.events
}

// Run dials the push channel and pumps events until the context is
// cancelled. It reconnects with exponential backoff on any transport
// failure; the backoff resets after a successful connect.
func (f *Feed) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrFeedAlreadyRunning
	}
	f.started = true
	f.mu.Unlock()

	defer close(f.events)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := f.dial(ctx)
		if err != nil {
			f.log.Warn().Err(err).Dur("retry_in", backoff).Msg("push channel dial failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		f.log.Info().Str("url", f.url).Msg("push channel connected")
		backoff = initialBackoff

		if err := f.pump(ctx, conn); err != nil && ctx.Err() == nil {
			f.log.Warn().Err(err).Msg("push channel dropped")
		}
	}
}

// dial opens one websocket connection to the push channel.
func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}

	conn, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// pump reads frames from one connection until it fails or the context is
// cancelled. A goroutine watches the context so a blocked read unblocks
// promptly on shutdown.
func (f *Feed) pump(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() { _ = conn.Close() }()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var event types.GatewayEvent
		if err := json.Unmarshal(data, &event); err != nil {
			f.log.Warn().Err(err).Msg("dropping undecodable push frame")
			continue
		}
		if err := event.Validate(); err != nil {
			f.log.Warn().Err(err).Str("tenant_id", event.TenantID).Msg("dropping invalid push event")
			continue
		}

		select {
		case f.events <- event:
		default:
			// Consumer is far behind; dropping is safer than blocking the
			// transport, and the next authoritative fetch reconverges state.
			f.log.Warn().Str("tenant_id", event.TenantID).Str("kind", string(event.Kind)).Msg("event buffer full, dropping frame")
		}
	}
}
