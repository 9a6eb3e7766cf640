package uihub

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"walink/pkg/types"
)

// Message type markers on the UI push stream.
const (
	MessageSessions  = "sessions"
	MessageTransient = "transient"
	MessageNotice    = "notice"
)

// Message is the envelope for every frame pushed to admin tabs.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Snapshotter provides the current read model for newly connected tabs,
// so a tab opened mid-session starts from truth instead of waiting for
// the next broadcast.
type Snapshotter interface {
	Sessions() []types.SessionView
	Transient() types.TransientState
}

// Authorizer approves a websocket upgrade request.
type Authorizer func(r *http.Request) error

// Hub fans coordinator output out to every connected admin tab. Tabs are
// independent observers: they share nothing but the stream itself, and a
// slow or dead tab is dropped without affecting the others.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	source   Snapshotter
	upgrader websocket.Upgrader
	auth     Authorizer
	log      zerolog.Logger
}

// NewHub creates a UI hub. authorize may be nil, which admits every
// upgrade request; SetSource must be called before tabs connect.
func NewHub(authorize Authorizer, logger zerolog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The admin UI is served from a different origin in
			// development; the bearer check is the real gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		auth: authorize,
		log:  logger.With().Str("component", "uihub").Logger(),
	}
}

// SetSource wires the read model used to seed new connections. Called
// once during application assembly, before the HTTP server starts.
func (h *Hub) SetSource(source Snapshotter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = source
}

// HandleWebSocket upgrades an admin tab and streams the session read
// model to it until the tab disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.auth != nil {
		if err := h.auth(r); err != nil {
			h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejected UI websocket")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConnection(uuid.New().String(), wsConn)
	h.register(conn)
	h.log.Debug().Str("conn_id", conn.id).Msg("UI tab connected")

	h.seed(conn)

	// Inbound frames are ignored; the read loop only detects disconnect.
	go h.readLoop(conn)
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.id] = conn
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn.id)
}

// seed sends the current read model to one freshly connected tab.
func (h *Hub) seed(conn *Connection) {
	h.mu.RLock()
	source := h.source
	h.mu.RUnlock()
	if source == nil {
		return
	}

	h.sendTo(conn, Message{Type: MessageSessions, Payload: source.Sessions()})
	h.sendTo(conn, Message{Type: MessageTransient, Payload: source.Transient()})
}

func (h *Hub) readLoop(conn *Connection) {
	defer func() {
		conn.close()
		h.unregister(conn)
		h.log.Debug().Str("conn_id", conn.id).Msg("UI tab disconnected")
	}()

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// PublishSessions broadcasts the session list read model.
func (h *Hub) PublishSessions(views []types.SessionView) {
	h.broadcast(Message{Type: MessageSessions, Payload: views})
}

// PublishTransient broadcasts the connect/QR dialog state.
func (h *Hub) PublishTransient(state types.TransientState) {
	h.broadcast(Message{Type: MessageTransient, Payload: state})
}

// PublishNotice broadcasts a one-shot toast.
func (h *Hub) PublishNotice(notice types.Notice) {
	h.broadcast(Message{Type: MessageNotice, Payload: notice})
}

// broadcast marshals once and queues the frame on every tab. Tabs that
// cannot keep up are closed; the next connect re-seeds them.
func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal UI message")
		return
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if !conn.send(data) {
			h.log.Warn().Str("conn_id", conn.id).Msg("dropping slow UI tab")
			conn.close()
			h.unregister(conn)
		}
	}
}

func (h *Hub) sendTo(conn *Connection, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal UI message")
		return
	}
	_ = conn.send(data)
}

// ConnectionCount reports the number of attached tabs, for health output.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
