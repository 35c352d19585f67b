// Package ws carries envelopes between clients and the dispatch loop over gorilla websockets.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"huddle/contract"
	"huddle/domain"
	"huddle/domain/envelope"
	herrors "huddle/errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var _ contract.Conn = (*Conn)(nil)

// Conn is one client websocket. Reads are handed to a contract.ConnHandler,
// writes and pings are queued on a bounded buffer drained by writePump,
// so no caller ever waits on the socket.
type Conn struct {
	id           domain.ConnID
	ws           *websocket.Conn
	handler      contract.ConnHandler
	log          *slog.Logger
	writeTimeout time.Duration

	mu     sync.Mutex
	send   chan frame
	closed bool
}

// frame is one queued write. A nil data slice with ping set is a liveness probe.
type frame struct {
	data []byte
	ping bool
}

func newConn(ws *websocket.Conn, handler contract.ConnHandler, log *slog.Logger, settings Settings) *Conn {
	id := domain.ConnID(uuid.NewString())
	ws.SetReadLimit(settings.MaxMessageSize)
	return &Conn{
		id:           id,
		ws:           ws,
		handler:      handler,
		log:          log.With("conn_id", id),
		writeTimeout: settings.WriteTimeout,
		send:         make(chan frame, settings.SendBuffer),
	}
}

func (c *Conn) ID() domain.ConnID {
	return c.id
}

// Send queues env without blocking. A full buffer or a closed connection is a transport error.
func (c *Conn) Send(env envelope.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", herrors.ErrTransport, env.Type, err)
	}
	return c.enqueue(frame{data: data})
}

// Ping queues a liveness probe behind pending writes. The pong is reported through
// ConnHandler.Acknowledge; a probe that cannot be written ends the connection,
// which is reported through ConnHandler.Disconnect.
func (c *Conn) Ping() error {
	return c.enqueue(frame{ping: true})
}

func (c *Conn) enqueue(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connection closed", herrors.ErrTransport)
	}
	select {
	case c.send <- f:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", herrors.ErrTransport)
	}
}

// Close stops the write pump, which then closes the socket. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// readPump owns the read side until the socket fails, then reports the disconnect.
func (c *Conn) readPump() {
	defer func() {
		c.handler.Disconnect(c)
		_ = c.Close()
	}()

	c.ws.SetPongHandler(func(string) error {
		c.handler.Acknowledge(c.id)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		env, err := envelope.Parse(data)
		if err != nil {
			c.log.Debug("Malformed frame", "error", err)
			if err := c.Send(envelope.NewError(err)); err != nil {
				c.log.Warn("Failed to answer malformed frame", "error", err)
			}
			continue
		}
		c.handler.Receive(c, env)
	}
}

// writePump owns the write side. It exits when the buffer is closed or a write fails.
func (c *Conn) writePump() {
	defer func() {
		if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing websocket", "error", err)
		}
	}()

	for f := range c.send {
		deadline := time.Now().Add(c.writeTimeout)
		if f.ping {
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Info("Error writing ping", "error", err)
				return
			}
			continue
		}
		if err := c.ws.SetWriteDeadline(deadline); err != nil {
			c.log.Warn("Error setting write deadline", "error", err)
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, f.data); err != nil {
			c.log.Warn("Error writing frame", "error", err)
			return
		}
	}

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout))
}

func (c *Conn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Info("Frame exceeded maximum size, closing")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.log.Debug("Client disconnected")
	case isExpectedCloseError(err):
		c.log.Debug("Connection closed", "error", err)
	default:
		c.log.Info("Websocket read error", "error", err)
	}
}

func isExpectedCloseError(err error) bool {
	return errors.Is(err, websocket.ErrCloseSent) ||
		websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed)
}
