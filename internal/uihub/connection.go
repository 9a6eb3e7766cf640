package uihub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendBuffer absorbs broadcast bursts; a tab that cannot drain this
	// many frames is closed rather than allowed to stall the hub.
	sendBuffer = 64

	writeTimeout = 10 * time.Second
)

// Connection wraps one admin tab's websocket. Writes are serialized
// through a single writer goroutine; gorilla connections do not allow
// concurrent writers.
type Connection struct {
	id        string
	conn      *websocket.Conn
	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(id string, conn *websocket.Conn) *Connection {
	c := &Connection{
		id:     id,
		conn:   conn,
		sendCh: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// send queues one frame without blocking. It reports false when the tab
// is too far behind or already closed; the hub then drops the connection.
func (c *Connection) send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.sendCh <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
