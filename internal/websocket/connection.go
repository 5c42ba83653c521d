package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tutorhub/pkg/types"
)

// frame is one queued outbound unit: a JSON message or a binary payload.
// Both kinds share the single write channel so a file payload queued before
// its metadata message arrives before it.
type frame struct {
	messageType int
	data        []byte
}

// Connection wraps a websocket connection behind the interfaces.Channel
// contract. All writes funnel through one writer goroutine, which is what
// makes SendMessage/SendBinary safe from any goroutine and keeps per-channel
// delivery order.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan frame
	writeTimeout time.Duration
	pingInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection creates a connection wrapper and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout, pingInterval time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan frame, bufferSize),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) enqueue(f frame) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- f:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// SendMessage queues a JSON message frame.
func (c *Connection) SendMessage(msg *types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.enqueue(frame{messageType: websocket.TextMessage, data: data})
}

// SendBinary queues a binary payload frame.
func (c *Connection) SendBinary(data []byte) error {
	return c.enqueue(frame{messageType: websocket.BinaryMessage, data: data})
}

// Close tears down the connection. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
