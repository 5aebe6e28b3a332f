package realtime

import (
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Client is a single WebSocket connection of an authenticated user
type Client struct {
	logger *zap.SugaredLogger
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

var _ Conn = (*Client)(nil)

func newClient(logger *zap.SugaredLogger, userID string, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		logger: logger,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// Send drops frame when the buffer is full or the client is closed
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warnf("Dropping frame for user (%s): send buffer is full", c.userID)
		return false
	}
}

// close stops the writer, it is safe to call more than once
func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// writePump drains the send buffer into the connection and keeps it alive with pings
// it owns every write made to conn
func (c *Client) writePump(writeWait, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debugf("Writing to user (%s): %v", c.userID, err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
