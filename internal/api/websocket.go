package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"webfitts/internal/protocol"
	"webfitts/internal/telemetry"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
	taskQueueSize  = 256

	// DefaultHeartbeat is the interval of application-level ping messages.
	DefaultHeartbeat = 30 * time.Second
)

// ErrLoopStopped is returned when work is scheduled after the event loop
// has exited.
var ErrLoopStopped = errors.New("relay event loop stopped")

// ErrLoopBusy is returned when the task queue is full.
var ErrLoopBusy = errors.New("relay event loop busy")

// WSManager owns the set of connected study clients. The set is only
// touched by run; everything else reaches it through channels.
type WSManager struct {
	log        *zap.Logger
	serverName string
	sink       telemetry.Sink
	heartbeat  time.Duration
	upgrader   websocket.Upgrader

	// loop-owned
	clients map[*WebSocketClient]bool

	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	inbound    chan inboundFrame
	tasks      chan func()
	done       chan struct{}

	clientCount atomic.Int32
}

// WebSocketClient is one connected study front-end.
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	id      string
	ip      string

	// loop-owned
	handshaken bool
	name       string
}

type inboundFrame struct {
	client *WebSocketClient
	data   []byte
}

func newWSManager(serverName string, sink telemetry.Sink, heartbeat time.Duration, logger *zap.Logger) *WSManager {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &WSManager{
		log:        logger.With(zap.String("component", "ws")),
		serverName: serverName,
		sink:       sink,
		heartbeat:  heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The study page is served from arbitrary local origins.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		inbound:    make(chan inboundFrame),
		tasks:      make(chan func(), taskQueueSize),
		done:       make(chan struct{}),
	}
}

// run is the relay's event loop. It returns when ctx is cancelled, after
// closing every client's send queue.
func (m *WSManager) run(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeat)
	defer func() {
		ticker.Stop()
		close(m.done)
		for client := range m.clients {
			m.remove(client, "server shutdown")
		}
	}()

	for {
		select {
		case client := <-m.register:
			m.clients[client] = true
			m.clientCount.Add(1)
			m.log.Info("Client connected",
				zap.String("clientId", client.id),
				zap.String("remote", client.ip),
				zap.Int("clients", len(m.clients)))

		case client := <-m.unregister:
			m.remove(client, "disconnected")

		case frame := <-m.inbound:
			m.dispatch(frame)

		case fn := <-m.tasks:
			m.runTask(fn)

		case now := <-ticker.C:
			ping, err := protocol.EncodePing(now)
			if err != nil {
				m.log.Error("Failed to encode ping", zap.Error(err))
				continue
			}
			m.broadcast(ping)

		case <-ctx.Done():
			return
		}
	}
}

func (m *WSManager) remove(client *WebSocketClient, reason string) {
	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	close(client.send)
	m.clientCount.Add(-1)
	m.log.Info("Client removed",
		zap.String("clientId", client.id),
		zap.String("client", client.name),
		zap.String("reason", reason),
		zap.Int("clients", len(m.clients)))
}

// deliver queues payload for one client. A full queue counts as a failed
// send and drops the client.
func (m *WSManager) deliver(client *WebSocketClient, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		m.remove(client, "send queue full")
		return false
	}
}

// broadcast delivers payload to a snapshot of the client set and returns
// how many clients accepted it.
func (m *WSManager) broadcast(payload []byte) int {
	snapshot := make([]*WebSocketClient, 0, len(m.clients))
	for client := range m.clients {
		snapshot = append(snapshot, client)
	}

	delivered := 0
	for _, client := range snapshot {
		if _, ok := m.clients[client]; !ok {
			continue
		}
		if m.deliver(client, payload) {
			delivered++
		}
	}
	return delivered
}

func (m *WSManager) dispatch(frame inboundFrame) {
	client := frame.client
	if _, ok := m.clients[client]; !ok {
		return
	}

	msg, err := protocol.ParseInbound(frame.data)
	if err != nil {
		var unknown *protocol.UnknownTypeError
		if errors.As(err, &unknown) {
			m.log.Info("Ignoring unknown message type",
				zap.String("clientId", client.id),
				zap.String("type", string(unknown.Type)))
		} else {
			m.log.Warn("Dropping malformed message",
				zap.String("clientId", client.id),
				zap.Error(err))
		}
		return
	}

	switch msg := msg.(type) {
	case *protocol.Handshake:
		client.handshaken = true
		client.name = msg.Client
		m.log.Info("Handshake",
			zap.String("clientId", client.id),
			zap.String("client", msg.Client),
			zap.String("version", msg.Version))

		ack, err := protocol.EncodeHandshakeAck(m.serverName)
		if err != nil {
			m.log.Error("Failed to encode handshake ack", zap.Error(err))
			return
		}
		m.deliver(client, ack)

	case *protocol.StudyData:
		if !client.handshaken {
			m.log.Debug("Telemetry before handshake", zap.String("clientId", client.id))
		}
		m.sink.StudyData(client.id, msg)

	case *protocol.StudyEvent:
		m.sink.StudyEvent(client.id, msg)

	case *protocol.Pong:
		m.log.Debug("Pong", zap.String("clientId", client.id), zap.Int64("timestamp", msg.Timestamp))
	}
}

func (m *WSManager) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Scheduled task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// Schedule queues fn to run on the event loop. It never waits for fn.
func (m *WSManager) Schedule(fn func()) error {
	select {
	case <-m.done:
		return ErrLoopStopped
	default:
	}

	select {
	case m.tasks <- fn:
		return nil
	case <-m.done:
		return ErrLoopStopped
	default:
		return ErrLoopBusy
	}
}

// BroadcastCommand encodes a command and schedules its delivery to every
// connected client. Delivery failures are handled on the loop and are
// never reported to the caller.
func (m *WSManager) BroadcastCommand(name protocol.CommandName, data any) error {
	payload, err := protocol.EncodeCommand(name, data)
	if err != nil {
		return err
	}
	if err := m.Schedule(func() {
		n := m.broadcast(payload)
		m.log.Debug("Command delivered", zap.String("command", string(name)), zap.Int("clients", n))
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// ClientCount is safe to call from any goroutine.
func (m *WSManager) ClientCount() int {
	return int(m.clientCount.Load())
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		id:      uuid.NewString(),
		ip:      r.RemoteAddr,
	}

	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump forwards frames to the event loop in arrival order.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.manager.log.Info("Read error", zap.String("clientId", c.id), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case c.manager.inbound <- inboundFrame{client: c, data: message}:
		case <-c.manager.done:
			return
		}
	}
}

// writePump drains the send queue. Each client has its own, so a slow
// client only delays itself.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The loop closed the queue.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.manager.log.Debug("Write failed", zap.String("clientId", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
