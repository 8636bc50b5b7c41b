// Package presence binds physical WebSocket connections to per-user rooms and
// delivers targeted, best-effort events to them.
//
// Room membership lives in process memory only. It is rebuilt by clients
// joining again after every reconnect or server restart; a deployment with
// several server processes needs a shared broadcast backbone behind the same
// Emit contract.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrChannelNotReady is returned by Join and Emit before Initialize.
var ErrChannelNotReady = errors.New("presence: channel not ready")

// Event names carried in the Event envelope.
const (
	EventJoin  = "join"
	EventPing  = "ping"
	EventPong  = "pong"
	EventError = "error"
)

// Event is the envelope for both directions of the channel.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is sent by a client to bind its connection to a user room.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	// AllowedOrigins is checked against the Origin header on upgrade.
	AllowedOrigins []string
	// SendBuffer is the per-connection queue; a full queue drops the
	// connection.
	SendBuffer int
	PingPeriod time.Duration
}

// Manager holds the room table: which live connections are bound to which
// user. It is the only owner of room membership.
type Manager struct {
	mu    sync.RWMutex
	ready bool
	rooms map[string]map[*Conn]struct{}
	conns map[*Conn]struct{}

	initOnce sync.Once
	upgrader websocket.Upgrader
	opts     Options
	logger   *zap.Logger
}

// NewManager creates a manager that is not ready yet. Call Initialize before
// serving traffic.
func NewManager(logger *zap.Logger, opts Options) *Manager {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = (pongWait * 9) / 10
	}

	m := &Manager{
		rooms:  make(map[string]map[*Conn]struct{}),
		conns:  make(map[*Conn]struct{}),
		opts:   opts,
		logger: logger,
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return OriginAllowed(opts.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return m
}

// Initialize makes the channel ready. Only the first call has an effect; when
// ctx is done every open connection is closed.
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		m.mu.Lock()
		m.ready = true
		m.mu.Unlock()
		m.logger.Info("presence channel initialized")

		go func() {
			<-ctx.Done()
			m.closeAll()
		}()
	})
}

// Ready reports whether Initialize has been called.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Upgrade turns an HTTP request into a registered connection. identity is
// the authenticated user; joins for any other room are refused.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request, identity string) (*Conn, error) {
	if !m.Ready() {
		return nil, ErrChannelNotReady
	}

	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	c := newConn(ws, identity, m.opts.SendBuffer)
	m.OnConnectionOpened(c)
	return c, nil
}

// OnConnectionOpened registers c and starts its read and write loops. The
// read loop handles join declarations and drops every binding of c when the
// connection closes.
func (m *Manager) OnConnectionOpened(c *Conn) {
	m.mu.Lock()
	m.conns[c] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("presence connection opened",
		zap.String("conn_id", c.ID.String()),
		zap.String("identity", c.identity),
	)

	if c.ws == nil {
		return
	}
	go c.writePump(m.opts.PingPeriod)
	go c.readPump(m)
}

// Join binds c into the room of userID. Joining the same room again, from the
// same or another connection, is valid.
func (m *Manager) Join(c *Conn, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return ErrChannelNotReady
	}
	if _, ok := m.conns[c]; !ok {
		return errors.New("presence: connection is closed")
	}

	room, ok := m.rooms[userID]
	if !ok {
		room = make(map[*Conn]struct{})
		m.rooms[userID] = room
	}
	room[c] = struct{}{}
	c.rooms[userID] = struct{}{}

	m.logger.Debug("user joined room",
		zap.String("user_id", userID),
		zap.String("conn_id", c.ID.String()),
		zap.Int("connections", len(room)),
	)
	return nil
}

// Emit delivers payload to every connection bound to userID. With no bound
// connection it does nothing. It never blocks: a connection whose send
// buffer is full is dropped.
func (m *Manager) Emit(userID, event string, payload any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return ErrChannelNotReady
	}

	room := m.rooms[userID]
	if len(room) == 0 {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Event{Type: event, Payload: data})
	if err != nil {
		return err
	}

	for c := range room {
		select {
		case c.send <- msg:
		default:
			m.logger.Warn("dropping slow presence connection",
				zap.String("user_id", userID),
				zap.String("conn_id", c.ID.String()),
			)
			c.closeTransport()
		}
	}
	return nil
}

// Connections returns the number of connections bound to userID.
func (m *Manager) Connections(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[userID])
}

// closed drops every binding of c. It is safe to call more than once.
func (m *Manager) closed(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[c]; !ok {
		return
	}
	delete(m.conns, c)

	for userID := range c.rooms {
		if room, ok := m.rooms[userID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(m.rooms, userID)
			}
		}
	}
	close(c.send)

	m.logger.Debug("presence connection closed", zap.String("conn_id", c.ID.String()))
}

func (m *Manager) closeAll() {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if c.ws != nil {
			c.closeTransport()
		} else {
			m.closed(c)
		}
	}
}

func (m *Manager) handle(c *Conn, ev Event) {
	switch ev.Type {
	case EventJoin:
		var p JoinPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.UserID == "" {
			c.sendError("join requires a userId")
			return
		}
		if c.identity != "" && p.UserID != c.identity {
			m.logger.Warn("refused join for another user",
				zap.String("identity", c.identity),
				zap.String("requested", p.UserID),
			)
			c.sendError("cannot join another user's room")
			return
		}
		if err := m.Join(c, p.UserID); err != nil {
			m.logger.Warn("join failed", zap.String("user_id", p.UserID), zap.Error(err))
		}
	case EventPing:
		c.trySend(Event{Type: EventPong})
	default:
		c.sendError("unknown event " + ev.Type)
	}
}

// Conn is one physical connection.
type Conn struct {
	ID       uuid.UUID
	ws       *websocket.Conn
	send     chan []byte
	identity string
	// rooms is guarded by Manager.mu.
	rooms map[string]struct{}
}

func newConn(ws *websocket.Conn, identity string, buffer int) *Conn {
	return &Conn{
		ID:       uuid.New(),
		ws:       ws,
		send:     make(chan []byte, buffer),
		identity: identity,
		rooms:    make(map[string]struct{}),
	}
}
