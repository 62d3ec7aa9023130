package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/echoplay/echoplay/go/internal/match/events"
)

// Membership is notified when a match's observer count changes. It lets
// the core rehydrate sessions on first join and arm the grace clock when
// a room empties.
type Membership interface {
	ObserverJoined(ctx context.Context, matchID uuid.UUID) error
	ObserverLeft(matchID uuid.UUID, remaining int)
}

// ConnectionManager manages WebSocket connections for live matches. A
// connection starts unbound; it joins a match's pool when its first
// join_room command lands, not at upgrade time.
type ConnectionManager struct {
	matchConnections map[uuid.UUID]map[*Connection]bool
	mu               sync.RWMutex

	upgrader   websocket.Upgrader
	config     ConnectionConfig
	membership Membership
	dispatch   func(ctx context.Context, c *Connection, raw []byte)

	broadcastCh chan broadcastMessage
}

// Connection represents one WebSocket client.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Written only from the connection's readPump.
	identity *Identity

	// Guarded by the manager mutex; zero until the client joins a match.
	matchID uuid.UUID

	// Closed once on unregister so writePump exits. Send itself is never
	// closed: a broadcast racing the teardown lands in the buffer instead
	// of panicking.
	done      chan struct{}
	closeOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// Identity is the verified credential cached on a connection after its
// first authenticated command.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	matchID uuid.UUID
	data    []byte
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, membership Membership) *ConnectionManager {
	return &ConnectionManager{
		matchConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		membership:  membership,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// SetDispatcher installs the command handler invoked for every inbound
// client message. Must be called before any upgrade.
func (cm *ConnectionManager) SetDispatcher(fn func(ctx context.Context, c *Connection, raw []byte)) {
	cm.dispatch = fn
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection.
// The connection belongs to no match until it issues join_room.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Msg("WebSocket connection established")

	return nil
}

// JoinMatch moves a connection into a match's pool. A connection observes
// one match at a time; re-joining a different match switches pools.
func (cm *ConnectionManager) JoinMatch(ctx context.Context, c *Connection, matchID uuid.UUID) error {
	if cm.membership != nil {
		if err := cm.membership.ObserverJoined(ctx, matchID); err != nil {
			return err
		}
	}

	cm.mu.Lock()
	prev := c.matchID
	if prev == matchID {
		cm.mu.Unlock()
		return nil
	}
	if prev != uuid.Nil {
		cm.removeFromPoolLocked(c, prev)
	}
	if cm.matchConnections[matchID] == nil {
		cm.matchConnections[matchID] = make(map[*Connection]bool)
	}
	cm.matchConnections[matchID][c] = true
	c.matchID = matchID
	total := len(cm.matchConnections[matchID])
	cm.mu.Unlock()

	if prev != uuid.Nil {
		cm.notifyLeft(prev)
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("match_id", matchID.String()).
		Int("total_connections", total).
		Msg("connection joined match")
	return nil
}

// unregisterConnection removes a connection from its pool, if any.
func (cm *ConnectionManager) unregisterConnection(c *Connection) {
	cm.mu.Lock()
	matchID := c.matchID
	c.matchID = uuid.Nil
	removed := false
	if matchID != uuid.Nil {
		removed = cm.removeFromPoolLocked(c, matchID)
	}
	c.closeOnce.Do(func() { close(c.done) })
	cm.mu.Unlock()

	if removed {
		cm.notifyLeft(matchID)
		log.Info().
			Str("connection_id", c.ID).
			Str("match_id", matchID.String()).
			Msg("connection unregistered")
	}
}

func (cm *ConnectionManager) removeFromPoolLocked(c *Connection, matchID uuid.UUID) bool {
	pool, ok := cm.matchConnections[matchID]
	if !ok || !pool[c] {
		return false
	}
	delete(pool, c)
	if len(pool) == 0 {
		delete(cm.matchConnections, matchID)
	}
	return true
}

func (cm *ConnectionManager) notifyLeft(matchID uuid.UUID) {
	if cm.membership == nil {
		return
	}
	cm.mu.RLock()
	remaining := len(cm.matchConnections[matchID])
	cm.mu.RUnlock()
	cm.membership.ObserverLeft(matchID, remaining)
}

// Broadcast sends an event to every connection observing the match. It
// never blocks the caller; a full broadcast queue drops the message.
func (cm *ConnectionManager) Broadcast(matchID uuid.UUID, ev *events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	select {
	case cm.broadcastCh <- broadcastMessage{matchID: matchID, data: data}:
	default:
		log.Warn().Str("match_id", matchID.String()).Msg("broadcast channel full, dropping message")
	}
}

// SendTo delivers a payload to one connection only, for command acks and
// join-time snapshots.
func (cm *ConnectionManager) SendTo(c *Connection, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal direct message")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(c)
		c.Conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	pool, exists := cm.matchConnections[message.matchID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(pool))
	for conn := range pool {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- message.data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() (total int, matches int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, pool := range cm.matchConnections {
		total += len(pool)
	}
	return total, len(cm.matchConnections)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads client commands and hands them to the dispatcher.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.dispatch != nil {
			c.Manager.dispatch(context.Background(), c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
