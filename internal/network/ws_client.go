// Package network contains the study-side websocket client. It speaks
// the same protocol as the study front-end and is used by the simulator
// and by relay tests.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"webfitts/internal/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	readWait       = 90 * time.Second
	sendQueueSize  = 100
	defaultRetry   = 5 * time.Second
	defaultVersion = "1.0"
)

// ErrSendQueueFull is returned when the outbound queue cannot take more
// messages.
var ErrSendQueueFull = errors.New("send queue full")

// StudyClientOptions configures a StudyClient.
type StudyClientOptions struct {
	// Client and Version are sent in the handshake.
	Client  string
	Version string

	// RetryDelay is the pause between reconnection attempts.
	RetryDelay time.Duration

	Logger *zap.Logger
}

// StudyClient connects to a relay, handshakes, streams telemetry and
// receives commands. Pings are answered automatically.
type StudyClient struct {
	url  string
	opts StudyClientOptions
	log  *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// Callbacks, called from the read goroutine
	OnAck     func(ack *protocol.HandshakeAck)
	OnCommand func(cmd *protocol.Command)

	mu          sync.Mutex
	isConnected bool
}

// NewStudyClient creates a client for addr. A bare "host:port" is
// expanded to ws://host:port/ws.
func NewStudyClient(addr string, opts StudyClientOptions) (*StudyClient, error) {
	u, err := RelayURL(addr)
	if err != nil {
		return nil, err
	}
	if opts.Client == "" {
		opts.Client = "WebFitts"
	}
	if opts.Version == "" {
		opts.Version = defaultVersion
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetry
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudyClient{
		url:  u,
		opts: opts,
		log:  logger.With(zap.String("component", "study-client")),
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}, nil
}

// RelayURL normalizes a relay address into a websocket URL.
func RelayURL(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid relay address %q: %w", addr, err)
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
	if u.Host == "" {
		return "", fmt.Errorf("relay address %q has no host", addr)
	}
	if u.Path == "" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Run connects and keeps reconnecting until ctx is cancelled or Close is
// called.
func (c *StudyClient) Run(ctx context.Context) error {
	for {
		if err := c.connect(ctx); err != nil {
			c.log.Warn("Connection failed", zap.String("url", c.url), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-time.After(c.opts.RetryDelay):
			c.log.Info("Attempting reconnection", zap.String("url", c.url))
		}
	}
}

func (c *StudyClient) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The handshake goes out before anything queued.
	hs := protocol.NewHandshake(c.opts.Client, c.opts.Version, time.Now())
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hs); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	c.setConnected(true)
	defer c.setConnected(false)
	c.log.Info("Connected", zap.String("url", c.url))

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx, conn, stop)
	}()

	go closeOnExit(ctx, conn, c.done, writerDone)

	c.readPump(conn)
	close(stop)
	<-writerDone
	return nil
}

// closeOnExit closes conn once the client shuts down or the writer stops,
// which unblocks the pending read.
func closeOnExit(ctx context.Context, conn io.Closer, done, writerDone <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-done:
	case <-writerDone:
	}
	conn.Close()
}

func (c *StudyClient) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(readWait)); return nil })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("Read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		msg, err := protocol.ParseOutbound(data)
		if err != nil {
			c.log.Warn("Ignoring message", zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *StudyClient) handleMessage(msg protocol.Outbound) {
	switch msg := msg.(type) {
	case *protocol.HandshakeAck:
		c.log.Info("Handshake acknowledged", zap.String("server", msg.Server), zap.String("status", msg.Status))
		if c.OnAck != nil {
			c.OnAck(msg)
		}

	case *protocol.Ping:
		pong, err := protocol.EncodePong(time.Now())
		if err == nil {
			c.enqueue(pong)
		}

	case *protocol.Command:
		c.log.Debug("Command received", zap.String("command", string(msg.Command)))
		if c.OnCommand != nil {
			c.OnCommand(msg)
		}
	}
}

func (c *StudyClient) writePump(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("Write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *StudyClient) enqueue(msg []byte) error {
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// SendStudyData queues one telemetry frame. The type and timestamp are
// filled in when missing.
func (c *StudyClient) SendStudyData(d protocol.StudyData) error {
	d.Type = protocol.TypeStudyData
	if d.Timestamp == 0 {
		d.Timestamp = time.Now().UnixMilli()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

// SendEvent queues a study event.
func (c *StudyClient) SendEvent(name string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(protocol.StudyEvent{
		Type:      protocol.TypeStudyEvent,
		Event:     name,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *StudyClient) setConnected(v bool) {
	c.mu.Lock()
	c.isConnected = v
	c.mu.Unlock()
}

// IsConnected returns true while a connection is established.
func (c *StudyClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close stops the client. It is safe to call more than once.
func (c *StudyClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
