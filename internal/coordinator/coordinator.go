package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"walink/internal/store"
	"walink/pkg/interfaces"
	"walink/pkg/types"
)

const (
	// resultBuffer holds completions from dispatched gateway calls until
	// the loop picks them up.
	resultBuffer = 16

	defaultRefreshInterval = time.Minute
)

// Coordinator owns per-tenant WhatsApp link state. It reconciles three
// independent sources — the authoritative fetch, the gateway push channel
// and user-triggered intents — into the session store and the transient
// connect/QR dialog state, and publishes every change to UI observers.
//
// All state mutation happens on a single run goroutine; intents and
// dispatched call completions re-enter the loop over channels, so the
// sources only ever interleave, never race. The transport guarantees no
// ordering between a fetch and a push event for the same tenant; the
// store's last-write-wins patches absorb that, and the activeTenantID
// guard keeps stale events away from the open dialog.
type Coordinator struct {
	store     *store.Store
	gateway   interfaces.Gateway
	journal   interfaces.Journal
	publisher interfaces.Publisher
	source    interfaces.EventSource

	intentCh   chan intent
	resultCh   chan actionResult
	shutdownCh chan struct{}
	wg         sync.WaitGroup

	// transient is written only by the run loop; the mutex makes it
	// readable from API handlers.
	transient types.TransientState

	refreshInterval time.Duration
	running         bool
	mu              sync.RWMutex
	log             zerolog.Logger
}

// Config holds coordinator settings.
type Config struct {
	RefreshInterval time.Duration
}

// New creates a coordinator. Start must be called before intents are
// accepted.
func New(st *store.Store, gw interfaces.Gateway, jn interfaces.Journal, pub interfaces.Publisher, src interfaces.EventSource, cfg Config, logger zerolog.Logger) *Coordinator {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}

	return &Coordinator{
		store:           st,
		gateway:         gw,
		journal:         jn,
		publisher:       pub,
		source:          src,
		intentCh:        make(chan intent),
		resultCh:        make(chan actionResult, resultBuffer),
		shutdownCh:      make(chan struct{}),
		refreshInterval: interval,
		log:             logger.With().Str("component", "coordinator").Logger(),
	}
}

// Start seeds the store from the last persisted snapshots, begins the run
// loop and schedules the initial authoritative fetch.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	// Best-effort seed: a broken journal must not prevent startup, the
	// first fetch rebuilds the collection anyway.
	if snapshots, err := c.journal.LoadSnapshots(ctx); err != nil {
		c.log.Warn().Err(err).Msg("could not seed store from snapshots")
	} else if len(snapshots) > 0 {
		c.store.ReplaceAll(snapshots)
		c.publisher.PublishSessions(c.store.Views())
		c.log.Info().Int("tenants", len(snapshots)).Msg("store seeded from snapshots")
	}

	c.wg.Add(1)
	go c.run(ctx)

	return nil
}

// Stop shuts the run loop down and waits for dispatched calls to settle.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.running = false
	c.mu.Unlock()

	close(c.shutdownCh)
	c.wg.Wait()
	return nil
}

// Sessions returns the current session list with derived row actions.
func (c *Coordinator) Sessions() []types.SessionView {
	return c.store.Views()
}

// Transient returns the current connect/QR dialog state.
func (c *Coordinator) Transient() types.TransientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transient
}

// RequestConnection starts an interactive connect flow for the tenant.
// The returned error reports only the request call itself; the QR
// challenge and the eventual connected state arrive via push events.
func (c *Coordinator) RequestConnection(ctx context.Context, tenantID string) error {
	if !types.IsValidTenantID(tenantID) {
		return types.ErrInvalidTenantID
	}
	_, err := c.submit(ctx, intent{kind: intentConnect, tenantID: tenantID})
	return err
}

// ShowQR fetches the current QR challenge for a tenant already
// mid-handshake and opens the dialog with it directly.
func (c *Coordinator) ShowQR(ctx context.Context, tenantID string) (string, error) {
	if !types.IsValidTenantID(tenantID) {
		return "", types.ErrInvalidTenantID
	}
	res, err := c.submit(ctx, intent{kind: intentShowQR, tenantID: tenantID})
	return res.qr, err
}

// Logout tears down the tenant's connection. On success the local record
// moves to disconnected immediately; the result of a caller-initiated
// logout is already known, so the UI does not wait for a push event.
func (c *Coordinator) Logout(ctx context.Context, tenantID string) error {
	if !types.IsValidTenantID(tenantID) {
		return types.ErrInvalidTenantID
	}
	_, err := c.submit(ctx, intent{kind: intentLogout, tenantID: tenantID})
	return err
}

// Refresh forces an authoritative fetch outside the periodic schedule.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err := c.submit(ctx, intent{kind: intentRefresh})
	return err
}

// CloseDialog dismisses the QR dialog and resets the transient state. An
// in-flight logout keeps its flag; everything else clears.
func (c *Coordinator) CloseDialog(ctx context.Context) error {
	_, err := c.submit(ctx, intent{kind: intentCloseDialog})
	return err
}

// intentKind identifies a user-triggered operation.
type intentKind int

const (
	intentConnect intentKind = iota
	intentShowQR
	intentLogout
	intentRefresh
	intentCloseDialog
)

// intent is one queued user operation; done receives the outcome exactly
// once.
type intent struct {
	kind     intentKind
	tenantID string
	done     chan intentOutcome
}

type intentOutcome struct {
	qr  string
	err error
}

// actionKind identifies a dispatched gateway call whose completion
// re-enters the run loop.
type actionKind int

const (
	actionConnectRequest actionKind = iota
	actionFetchQR
	actionLogout
	actionRefresh
)

// actionResult is the completion of one dispatched gateway call.
type actionResult struct {
	kind     actionKind
	tenantID string
	qr       string
	records  []types.SessionRecord
	err      error
	done     chan intentOutcome // nil for ticker-driven refreshes
}

// submit queues an intent and waits for its outcome.
func (c *Coordinator) submit(ctx context.Context, in intent) (intentOutcome, error) {
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return intentOutcome{}, ErrNotRunning
	}

	in.done = make(chan intentOutcome, 1)

	select {
	case c.intentCh <- in:
	case <-ctx.Done():
		return intentOutcome{}, ctx.Err()
	case <-c.shutdownCh:
		return intentOutcome{}, ErrNotRunning
	}

	select {
	case out := <-in.done:
		return out, out.err
	case <-ctx.Done():
		return intentOutcome{}, ctx.Err()
	case <-c.shutdownCh:
		return intentOutcome{}, ErrNotRunning
	}
}

// run is the single mutation loop.
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.log.Debug().Msg("coordinator loop stopped")

	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	// Initial authoritative fetch, independent of the event stream.
	c.dispatchRefresh(ctx, nil)

	events := c.source.Events()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Feed shut down; the periodic fetch keeps the store
				// converging until we do too.
				c.log.Warn().Msg("event source closed")
				events = nil
				continue
			}
			c.handleEvent(ctx, event)

		case in := <-c.intentCh:
			c.handleIntent(ctx, in)

		case res := <-c.resultCh:
			c.handleResult(ctx, res)

		case <-ticker.C:
			c.dispatchRefresh(ctx, nil)

		case <-c.shutdownCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// handleIntent applies the synchronous part of an intent and dispatches
// its gateway call.
func (c *Coordinator) handleIntent(ctx context.Context, in intent) {
	switch in.kind {
	case intentConnect:
		// Taking over as active tenant implicitly drops interest in any
		// previous tenant's events.
		c.setTransient(func(t *types.TransientState) {
			t.ActiveTenantID = in.tenantID
			t.ConnectInFlight = true
			t.DialogOpen = true
			t.QRPayload = ""
		})
		c.dispatch(ctx, func() actionResult {
			err := c.gateway.RequestConnection(ctx, in.tenantID)
			return actionResult{kind: actionConnectRequest, tenantID: in.tenantID, err: err, done: in.done}
		})

	case intentShowQR:
		c.setTransient(func(t *types.TransientState) {
			t.ActiveTenantID = in.tenantID
		})
		c.dispatch(ctx, func() actionResult {
			qr, err := c.gateway.FetchQR(ctx, in.tenantID)
			return actionResult{kind: actionFetchQR, tenantID: in.tenantID, qr: qr, err: err, done: in.done}
		})

	case intentLogout:
		c.setTransient(func(t *types.TransientState) {
			t.LogoutInFlight = true
		})
		c.dispatch(ctx, func() actionResult {
			err := c.gateway.Logout(ctx, in.tenantID)
			return actionResult{kind: actionLogout, tenantID: in.tenantID, err: err, done: in.done}
		})

	case intentRefresh:
		c.dispatchRefresh(ctx, in.done)

	case intentCloseDialog:
		c.setTransient(func(t *types.TransientState) {
			*t = types.TransientState{LogoutInFlight: t.LogoutInFlight}
		})
		in.done <- intentOutcome{}
	}
}

// handleResult finishes a dispatched gateway call inside the loop.
func (c *Coordinator) handleResult(ctx context.Context, res actionResult) {
	switch res.kind {
	case actionConnectRequest:
		c.journalAppend(ctx, res.tenantID, interfaces.JournalKindConnectRequested, errDetail(res.err))
		if res.err != nil {
			c.log.Warn().Err(res.err).Str("tenant_id", res.tenantID).Msg("connection request failed")
			c.notify(types.NoticeError, res.tenantID, "Could not request a WhatsApp connection. Please try again.")
			c.setTransient(func(t *types.TransientState) {
				t.DialogOpen = false
				t.ConnectInFlight = false
			})
		}
		c.finish(res.done, intentOutcome{err: res.err})

	case actionFetchQR:
		if stale := c.Transient().ActiveTenantID != res.tenantID; stale {
			// A newer connect/show-QR replaced this flow while the fetch
			// was in flight; its result no longer has a home.
			c.finish(res.done, intentOutcome{err: ErrSuperseded})
			return
		}
		if res.err != nil {
			c.log.Warn().Err(res.err).Str("tenant_id", res.tenantID).Msg("QR fetch failed")
			c.notify(types.NoticeError, res.tenantID, "Could not load the QR code. Please try again.")
			c.finish(res.done, intentOutcome{err: res.err})
			return
		}
		c.journalAppend(ctx, res.tenantID, interfaces.JournalKindQRFetched, "")
		c.setTransient(func(t *types.TransientState) {
			t.QRPayload = res.qr
			t.DialogOpen = true
		})
		c.finish(res.done, intentOutcome{qr: res.qr})

	case actionLogout:
		c.journalAppend(ctx, res.tenantID, interfaces.JournalKindLogout, errDetail(res.err))
		if res.err != nil {
			c.log.Warn().Err(res.err).Str("tenant_id", res.tenantID).Msg("logout failed")
			c.notify(types.NoticeError, res.tenantID, "Logout failed. The session is unchanged.")
			// Guaranteed release on both paths.
			c.setTransient(func(t *types.TransientState) {
				t.LogoutInFlight = false
			})
			c.finish(res.done, intentOutcome{err: res.err})
			return
		}

		// Optimistic local patch: logout is caller-initiated, its result
		// is already known. A stray later event wins by arrival order.
		c.applyStatus(ctx, res.tenantID, types.StatusDisconnected)
		c.notify(types.NoticeSuccess, res.tenantID, "WhatsApp session logged out.")
		c.setTransient(func(t *types.TransientState) {
			t.LogoutInFlight = false
			if t.ActiveTenantID == res.tenantID {
				t.ActiveTenantID = ""
			}
		})
		c.finish(res.done, intentOutcome{})

	case actionRefresh:
		if res.err != nil {
			c.log.Warn().Err(res.err).Msg("authoritative fetch failed")
			c.finish(res.done, intentOutcome{err: res.err})
			return
		}
		c.store.ReplaceAll(res.records)
		c.publisher.PublishSessions(c.store.Views())
		c.persistSnapshots(ctx, res.records)
		c.log.Debug().Int("tenants", len(res.records)).Msg("session collection refreshed")
		c.finish(res.done, intentOutcome{})
	}
}

// handleEvent reconciles one push event. Status patches always apply to
// the store regardless of the active tenant — sessions change state
// server-side while the operator watches a different row. Only events
// matching the active tenant touch the dialog state.
func (c *Coordinator) handleEvent(ctx context.Context, event types.GatewayEvent) {
	active := c.Transient().ActiveTenantID

	switch event.Kind {
	case types.EventQR:
		c.journalAppend(ctx, event.TenantID, string(event.Kind), "")
		if event.TenantID != active {
			// Stale or background QR; dropping it keeps the open dialog
			// bound to the operator's tenant.
			c.log.Debug().Str("tenant_id", event.TenantID).Msg("ignoring QR event for inactive tenant")
			return
		}
		c.setTransient(func(t *types.TransientState) {
			t.QRPayload = event.QR
			t.DialogOpen = true
		})

	case types.EventConnected:
		c.journalAppend(ctx, event.TenantID, string(event.Kind), "")
		c.applyStatus(ctx, event.TenantID, types.StatusConnected)
		if event.TenantID == active {
			c.notify(types.NoticeSuccess, event.TenantID, "WhatsApp connected.")
			c.setTransient(func(t *types.TransientState) {
				t.DialogOpen = false
				t.QRPayload = ""
				t.ActiveTenantID = ""
				t.ConnectInFlight = false
			})
		}

	case types.EventDisconnected:
		c.journalAppend(ctx, event.TenantID, string(event.Kind), "")
		c.applyStatus(ctx, event.TenantID, types.StatusDisconnected)
		if event.TenantID == active {
			// Dialog stays open on purpose: the operator may want to
			// retry the scan right away.
			c.notify(types.NoticeError, event.TenantID, "WhatsApp connection lost. Re-scan the QR code to reconnect.")
		}

	case types.EventError:
		c.journalAppend(ctx, event.TenantID, string(event.Kind), event.Message)
		if event.TenantID != active {
			return
		}
		message := event.Message
		if message == "" {
			message = "The WhatsApp session reported an error."
		}
		c.notify(types.NoticeError, event.TenantID, message)
		c.setTransient(func(t *types.TransientState) {
			t.ConnectInFlight = false
		})
	}
}

// applyStatus patches one tenant's status and publishes if anything
// changed. An error report is not a status; only connected/disconnected
// transitions come through here.
func (c *Coordinator) applyStatus(ctx context.Context, tenantID string, status types.Status) {
	rec, applied := c.store.Patch(tenantID, types.StatusPatch(status, time.Now().UTC()))
	if !applied {
		c.log.Debug().Str("tenant_id", tenantID).Msg("status for tenant not in store, dropped")
		return
	}
	c.publisher.PublishSessions(c.store.Views())
	c.persistSnapshots(ctx, []types.SessionRecord{rec})
}

// dispatchRefresh starts an authoritative fetch off-loop.
func (c *Coordinator) dispatchRefresh(ctx context.Context, done chan intentOutcome) {
	c.dispatch(ctx, func() actionResult {
		records, err := c.gateway.ListSessions(ctx)
		return actionResult{kind: actionRefresh, records: records, err: err, done: done}
	})
}

// dispatch runs one gateway call in its own goroutine and feeds the
// completion back into the loop. The loop never blocks on the network.
func (c *Coordinator) dispatch(ctx context.Context, call func() actionResult) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := call()
		select {
		case c.resultCh <- res:
		case <-c.shutdownCh:
			c.finish(res.done, intentOutcome{err: ErrNotRunning})
		case <-ctx.Done():
			c.finish(res.done, intentOutcome{err: ctx.Err()})
		}
	}()
}

// finish delivers an intent outcome, tolerating ticker-driven work that
// has no waiter.
func (c *Coordinator) finish(done chan intentOutcome, out intentOutcome) {
	if done == nil {
		return
	}
	done <- out
}

// setTransient mutates the dialog state under the lock and publishes the
// new value.
func (c *Coordinator) setTransient(mutate func(*types.TransientState)) {
	c.mu.Lock()
	mutate(&c.transient)
	state := c.transient
	c.mu.Unlock()
	c.publisher.PublishTransient(state)
}

// notify broadcasts a one-shot toast.
func (c *Coordinator) notify(level types.NoticeLevel, tenantID, message string) {
	c.publisher.PublishNotice(types.Notice{
		ID:       uuid.New().String(),
		Level:    level,
		TenantID: tenantID,
		Message:  message,
		At:       time.Now().UTC(),
	})
}

// journalAppend records an audit row; journal failures are logged, never
// surfaced, the journal is an observer of the flow rather than part of it.
func (c *Coordinator) journalAppend(ctx context.Context, tenantID, kind, detail string) {
	if err := c.journal.Append(ctx, interfaces.JournalEntry{TenantID: tenantID, Kind: kind, Detail: detail}); err != nil {
		c.log.Warn().Err(err).Str("tenant_id", tenantID).Str("kind", kind).Msg("journal append failed")
	}
}

// persistSnapshots saves records off-loop; failures are logged only.
func (c *Coordinator) persistSnapshots(ctx context.Context, records []types.SessionRecord) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.journal.SaveSnapshots(ctx, records); err != nil {
			c.log.Warn().Err(err).Msg("snapshot save failed")
		}
	}()
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("failed: %v", err)
}
