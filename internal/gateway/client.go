package gateway

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/castaldi/frank/internal/logging"
)

// client is one connected websocket peer. Writes are serialized; the
// websocket package allows at most one concurrent writer.
type client struct {
	id   string
	conn *websocket.Conn
	log  *logging.Logger

	writeMu sync.Mutex
	closed  bool
}

func newClient(conn *websocket.Conn, log *logging.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:   id,
		conn: conn,
		log:  log.Sub("ws"),
	}
}

func (c *client) send(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteJSON(frame)
}

func (c *client) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}
