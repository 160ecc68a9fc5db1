package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"meet-relay/contract"
	"meet-relay/domain/event"
	"meet-relay/errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var _ contract.Channel = (*Conn)(nil)

type PumpConfig struct {
	// BufferSize is the number of outbound frames queued before the peer is considered too slow.
	BufferSize int
	// WriteWait is the time allowed to write one frame to the peer.
	WriteWait time.Duration
	// PongWait is the time allowed to read the next pong. Pings are sent at 9/10 of it.
	PongWait time.Duration
	// MaxMessageSize bounds inbound frames. SDP offers fit in 64 KB.
	MaxMessageSize int64
}

func (c PumpConfig) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Conn wraps one websocket connection.
// A single goroutine runs WritePump and another runs ReadPump; everything else
// talks to the peer through Consume and Close, which never block.
type Conn struct {
	log    *slog.Logger
	ws     *websocket.Conn
	config PumpConfig
	send   chan []byte
	done   chan struct{}

	once       sync.Once
	closeFrame []byte
}

func NewConn(log *slog.Logger, ws *websocket.Conn, config PumpConfig) *Conn {
	return &Conn{
		log:    log,
		ws:     ws,
		config: config,
		send:   make(chan []byte, config.BufferSize),
		done:   make(chan struct{}),
	}
}

// Consume queues the event for the write pump. A full queue means the peer is not
// reading fast enough and the event is refused rather than waited on.
func (c *Conn) Consume(ctx context.Context, e event.Event) error {
	select {
	case <-c.done:
		return errors.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errors.ErrChannelClosed
	default:
		return errors.ErrSlowConsumer
	}
}

// Close asks the write pump to flush what is queued, send the close frame and hang up.
func (c *Conn) Close(code contract.CloseCode, reason string) error {
	if !c.terminate(websocket.FormatCloseMessage(int(code), reason)) {
		return errors.ErrChannelClosed
	}
	return nil
}

func (c *Conn) RemoteAddr() string {
	if c.ws == nil {
		return ""
	}
	return c.ws.RemoteAddr().String()
}

func (c *Conn) terminate(frame []byte) bool {
	first := false
	c.once.Do(func() {
		first = true
		c.closeFrame = frame
		close(c.done)
	})
	return first
}

// ReadPump delivers every inbound text frame to onMessage, one at a time,
// and returns the error that ended the connection.
func (c *Conn) ReadPump(onMessage func(raw []byte)) error {
	defer c.terminate(nil)

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		kind, raw, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		onMessage(raw)
	}
}

// WritePump is the only writer of the connection.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.config.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed", "remote", c.RemoteAddr(), "error", err)
				c.terminate(nil)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.terminate(nil)
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes what was queued before Close, then the close frame if there is one.
func (c *Conn) flush() {
	for {
		select {
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			if c.closeFrame != nil {
				_ = c.ws.WriteControl(websocket.CloseMessage, c.closeFrame, time.Now().Add(c.config.WriteWait))
			}
			return
		}
	}
}

func (c *Conn) write(kind int, payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
	return c.ws.WriteMessage(kind, payload)
}
