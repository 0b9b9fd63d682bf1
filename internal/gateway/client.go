package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShedrackAmodu/school-comm-service/internal/config"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/registry"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// errClientClosed reports a send attempted after the client shut down.
// The router treats it like any other send failure and deregisters.
var errClientClosed = errors.New("client closed")

// Client owns one WebSocket connection. Outbound frames queue on the
// send channel and a single write pump drains them, so the connection
// never sees concurrent writes. The send channel itself is never
// closed; shutdown is signalled through the done channel, which makes
// Close safe to call from the registry, the read pump and the handler
// at the same time.
type Client struct {
	ID       string
	Identity domain.Identity

	conn *websocket.Conn
	cfg  config.WebSocketConfig

	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(id string, identity domain.Identity, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:       id,
		Identity: identity,
		conn:     conn,
		cfg:      cfg,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// Send queues an encoded frame for the write pump. It blocks at most
// timeout and returns domain.ErrSendTimeout when the queue stays full.
func (c *Client) Send(frame []byte, timeout time.Duration) error {
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errClientClosed
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errClientClosed
	case <-timer.C:
		return domain.ErrSendTimeout
	}
}

// Close signals both pumps to stop. Idempotent.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// ReadPump reads frames from the connection and hands them to handler.
// It blocks until the connection dies and leaves the client closed, so
// callers run their disconnect cleanup right after it returns.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l := log.L()
				l.Warn().Err(err).
					Str(log.FieldSessionID, c.ID).
					Str(log.FieldUserID, c.Identity.UserID).
					Msg("websocket read error")
			}
			break
		}
		handler(c, message)
	}
}

// WritePump drains the send channel onto the connection and keeps the
// peer alive with pings. It exits when a write fails or the client is
// closed, closing the connection so the read pump unblocks too.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ registry.Sink = (*Client)(nil)
