package uihub

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"walink/pkg/types"
)

type staticSource struct {
	views     []types.SessionView
	transient types.TransientState
}

func (s *staticSource) Sessions() []types.SessionView   { return s.views }
func (s *staticSource) Transient() types.TransientState { return s.transient }

func newTestHub(t *testing.T, auth Authorizer) (*Hub, string) {
	t.Helper()

	hub := NewHub(auth, zerolog.Nop())
	hub.SetSource(&staticSource{
		views: []types.SessionView{
			{SessionRecord: types.SessionRecord{TenantID: "sch-001", Status: types.StatusConnected}, Action: types.ActionLogout},
		},
	})

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v (resp %v)", err, resp)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return msg
}

func TestSeedOnConnect(t *testing.T) {
	_, url := newTestHub(t, nil)
	conn := dialHub(t, url)

	first := readMessage(t, conn)
	if first.Type != MessageSessions {
		t.Errorf("first frame type = %q, want sessions", first.Type)
	}
	second := readMessage(t, conn)
	if second.Type != MessageTransient {
		t.Errorf("second frame type = %q, want transient", second.Type)
	}
}

func TestBroadcastReachesAllTabs(t *testing.T) {
	hub, url := newTestHub(t, nil)

	connA := dialHub(t, url)
	connB := dialHub(t, url)
	for _, conn := range []*websocket.Conn{connA, connB} {
		readMessage(t, conn) // sessions seed
		readMessage(t, conn) // transient seed
	}

	hub.PublishNotice(types.Notice{ID: "n1", Level: types.NoticeSuccess, Message: "WhatsApp connected."})

	for _, conn := range []*websocket.Conn{connA, connB} {
		msg := readMessage(t, conn)
		if msg.Type != MessageNotice {
			t.Errorf("frame type = %q, want notice", msg.Type)
		}
	}
}

func TestUnauthorizedUpgradeRejected(t *testing.T) {
	auth := func(r *http.Request) error { return errors.New("bad token") }
	hub, url := newTestHub(t, auth)

	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial succeeded despite failing authorizer")
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount = %d after rejected upgrade", hub.ConnectionCount())
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := newTestHub(t, nil)

	conn := dialHub(t, url)
	readMessage(t, conn)
	readMessage(t, conn)
	if hub.ConnectionCount() != 1 {
		t.Fatalf("ConnectionCount = %d, want 1", hub.ConnectionCount())
	}

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection still registered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
