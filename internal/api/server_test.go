package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"walink/internal/coordinator"
	"walink/internal/gateway"
	"walink/pkg/interfaces"
	"walink/pkg/types"
)

type fakeCoordinator struct {
	views      []types.SessionView
	transient  types.TransientState
	qr         string
	err        error
	lastIntent string
	lastTenant string
}

func (f *fakeCoordinator) Sessions() []types.SessionView   { return f.views }
func (f *fakeCoordinator) Transient() types.TransientState { return f.transient }

func (f *fakeCoordinator) Refresh(context.Context) error {
	f.lastIntent = "refresh"
	return f.err
}

func (f *fakeCoordinator) CloseDialog(context.Context) error {
	f.lastIntent = "close"
	return f.err
}

func (f *fakeCoordinator) RequestConnection(_ context.Context, tenantID string) error {
	f.lastIntent, f.lastTenant = "connect", tenantID
	return f.err
}

func (f *fakeCoordinator) ShowQR(_ context.Context, tenantID string) (string, error) {
	f.lastIntent, f.lastTenant = "qr", tenantID
	return f.qr, f.err
}

func (f *fakeCoordinator) Logout(_ context.Context, tenantID string) error {
	f.lastIntent, f.lastTenant = "logout", tenantID
	return f.err
}

type fakeEventLog struct {
	entries []interfaces.JournalEntry
	err     error
}

func (f *fakeEventLog) TenantEvents(_ context.Context, tenantID string, limit int) ([]interfaces.JournalEntry, error) {
	return f.entries, f.err
}

type fakeHubStats struct{ count int }

func (f *fakeHubStats) ConnectionCount() int { return f.count }

func newTestServer(coord *fakeCoordinator, eventLog *fakeEventLog) *Server {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	verifier := NewTokenVerifier("", logger)
	return NewServer(coord, eventLog, &fakeHubStats{count: 2}, verifier, logger)
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestListSessions(t *testing.T) {
	coord := &fakeCoordinator{
		views: []types.SessionView{
			{SessionRecord: types.SessionRecord{TenantID: "sch-1", SchoolName: "Northside", Status: types.StatusConnected}, Action: types.ActionLogout},
		},
	}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodGet, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp listSessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].TenantID != "sch-1" {
		t.Errorf("unexpected sessions payload: %+v", resp.Sessions)
	}
	if resp.Sessions[0].Action != types.ActionLogout {
		t.Errorf("expected logout action, got %q", resp.Sessions[0].Action)
	}
}

func TestListSessionsEmptyIsArray(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodGet, "/api/sessions")
	if got := rec.Body.String(); got != "{\"sessions\":[]}\n" {
		t.Errorf("expected empty array payload, got %q", got)
	}
}

func TestRequestConnection(t *testing.T) {
	coord := &fakeCoordinator{}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodPost, "/api/sessions/sch-1/connect")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if coord.lastIntent != "connect" || coord.lastTenant != "sch-1" {
		t.Errorf("expected connect intent for sch-1, got %s/%s", coord.lastIntent, coord.lastTenant)
	}
}

func TestRequestConnectionInvalidTenant(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodPost, "/api/sessions/bad%20tenant/connect")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestShowQR(t *testing.T) {
	coord := &fakeCoordinator{qr: "qr-payload"}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodGet, "/api/sessions/sch-1/qr")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp qrResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.QR != "qr-payload" {
		t.Errorf("expected qr payload, got %q", resp.QR)
	}
}

func TestShowQRNotReady(t *testing.T) {
	coord := &fakeCoordinator{err: gateway.ErrQRNotReady}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodGet, "/api/sessions/sch-1/qr")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	coord := &fakeCoordinator{}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodDelete, "/api/sessions/sch-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if coord.lastIntent != "logout" || coord.lastTenant != "sch-1" {
		t.Errorf("expected logout intent for sch-1, got %s/%s", coord.lastIntent, coord.lastTenant)
	}
}

func TestLogoutUnknownTenant(t *testing.T) {
	coord := &fakeCoordinator{err: interfaces.ErrTenantNotFound}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodDelete, "/api/sessions/ghost")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	coord := &fakeCoordinator{}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodPost, "/api/sessions/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if coord.lastIntent != "refresh" {
		t.Errorf("expected refresh intent, got %s", coord.lastIntent)
	}
}

func TestCoordinatorDownIsServiceUnavailable(t *testing.T) {
	coord := &fakeCoordinator{err: coordinator.ErrNotRunning}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodPost, "/api/sessions/refresh")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestTransientState(t *testing.T) {
	coord := &fakeCoordinator{
		transient: types.TransientState{ActiveTenantID: "sch-1", DialogOpen: true, QRPayload: "qr"},
	}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodGet, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var state types.TransientState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if state.ActiveTenantID != "sch-1" || !state.DialogOpen {
		t.Errorf("unexpected transient state: %+v", state)
	}
}

func TestCloseDialog(t *testing.T) {
	coord := &fakeCoordinator{}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodDelete, "/api/state/dialog")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if coord.lastIntent != "close" {
		t.Errorf("expected close intent, got %s", coord.lastIntent)
	}
}

func TestTenantEvents(t *testing.T) {
	eventLog := &fakeEventLog{
		entries: []interfaces.JournalEntry{
			{Seq: 2, TenantID: "sch-1", Kind: "connected", ReceivedAt: time.Now()},
			{Seq: 1, TenantID: "sch-1", Kind: "qr", ReceivedAt: time.Now()},
		},
	}
	s := newTestServer(&fakeCoordinator{}, eventLog)

	rec := doRequest(t, s, http.MethodGet, "/api/sessions/sch-1/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp tenantEventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Events) != 2 || resp.Events[0].Seq != 2 {
		t.Errorf("unexpected events payload: %+v", resp.Events)
	}
}

func TestTenantEventsInvalidLimit(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodGet, "/api/sessions/sch-1/events?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodPut, "/api/sessions")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	coord := &fakeCoordinator{views: []types.SessionView{{SessionRecord: types.SessionRecord{TenantID: "sch-1"}}}}
	s := newTestServer(coord, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Sessions != 1 || resp.UIConnections != 2 {
		t.Errorf("unexpected health payload: %+v", resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeEventLog{})

	rec := doRequest(t, s, http.MethodOptions, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS origin header, got %q", got)
	}
}
