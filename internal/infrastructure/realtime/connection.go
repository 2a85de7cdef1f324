package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	closeGrace = time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var (
	ErrConnectionClosed = errors.New("realtime: connection closed")
	ErrSendTimeout      = errors.New("realtime: send timed out")
)

// Socket is the subset of *websocket.Conn the write loop needs.
type Socket interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

var _ Socket = (*websocket.Conn)(nil)

// Connection is one live session of a user. Outbound frames go through a
// bounded channel drained by a single write loop, so Send is safe for concurrent use.
type Connection struct {
	ID     string
	UserID string

	ws     Socket
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

// NewConnection constructs a Connection for the given user.
func NewConnection(userID string, ws Socket) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send queues payload, waiting at most timeout for buffer space.
// The send channel is never closed; Close signals through c.closed instead.
func (c *Connection) Send(payload []byte, timeout time.Duration) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
	}
	if timeout <= 0 {
		return ErrSendTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.closed:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	case <-timer.C:
		return ErrSendTimeout
	}
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// Close terminates the connection and stops the write loop. Safe to call repeatedly.
func (c *Connection) Close(code int, reason string) {
	c.shutdown(code, reason, false)
}

// CloseAsync marks the connection closed at once and tears the socket down in
// the background. A writer stuck on the socket holds its write lock, so the
// close frame may wait up to closeGrace.
func (c *Connection) CloseAsync(code int, reason string) {
	c.shutdown(code, reason, true)
}

func (c *Connection) shutdown(code int, reason string, async bool) {
	c.once.Do(func() {
		close(c.closed)
		teardown := func() {
			deadline := time.Now().Add(closeGrace)
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
			_ = c.ws.Close()
		}
		if async {
			go teardown()
			return
		}
		teardown()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
