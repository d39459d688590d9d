// Package client is the websocket transport used by race clients. It carries
// strings in both directions and reconnects on its own.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
	eventBuffer        = 64
)

// ErrNotConnected is returned by Send while no connection is open.
var ErrNotConnected = errors.New("websocket is not connected")

// EventKind classifies an Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventMessage
	EventDisconnected
)

// Event is a connection state change or an inbound message.
type Event struct {
	Kind EventKind
	Data string
	Err  error
}

// Client manages one websocket connection to a room.
type Client struct {
	url    string
	dialer *websocket.Dialer
	clock  clockwork.Clock
	events chan Event

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New returns a client for the websocket url. A nil clock uses the real clock.
func New(rawURL string, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		url:    rawURL,
		dialer: websocket.DefaultDialer,
		clock:  clock,
		events: make(chan Event, eventBuffer),
	}
}

// RoomURL builds the websocket url of a room from a server address such as
// "localhost:8080", "http://host" or "wss://host/base".
func RoomURL(server, code string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", errors.New("server address is empty")
	}
	if !strings.Contains(server, "://") {
		server = "ws://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server address: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/rooms/" + url.PathEscape(code)
	return u.String(), nil
}

// Events delivers connection changes and inbound messages. It is closed when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes msg as a text frame. It fails with ErrNotConnected while the
// connection is down; nothing is queued.
func (c *Client) Send(msg string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Run dials and reads until ctx is cancelled, reconnecting with exponential
// backoff when the connection drops.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	delay := reconnectBaseDelay
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			delay = reconnectBaseDelay
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("url", c.url).Dur("retry_in", delay).Msg("websocket disconnected")
		c.emit(ctx, Event{Kind: EventDisconnected, Err: err})

		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(delay):
		}
		delay = min(delay*2, reconnectMaxDelay)
	}
}

// serve owns conn until it fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		if err := conn.Close(); err != nil {
			// Best-effort close.
			_ = err
		}
	}()

	go func() {
		<-connCtx.Done()
		// Closing unblocks ReadMessage when the caller cancels.
		if err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second)); err != nil {
			// Best-effort close frame.
			_ = err
		}
		if err := conn.Close(); err != nil {
			// Best-effort close.
			_ = err
		}
	}()
	go c.pingLoop(connCtx, conn)

	log.Debug().Str("url", c.url).Msg("websocket connected")
	c.emit(ctx, Event{Kind: EventConnected})

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	if err := conn.SetReadDeadline(time.Now().Add(pongTimeout)); err != nil {
		return err
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.emit(ctx, Event{Kind: EventMessage, Data: string(data)})
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *Client) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
