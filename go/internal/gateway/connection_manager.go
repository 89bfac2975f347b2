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
	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Role is what a connection is allowed to do.
type Role string

const (
	RolePlayer     Role = "player"
	RoleInstructor Role = "instructor"
	RoleScreen     Role = "screen"
)

// Room returns the broadcast room every connection of the role joins.
func (r Role) Room() events.Room {
	switch r {
	case RoleInstructor:
		return events.RoomInstructor
	case RoleScreen:
		return events.RoomScreens
	default:
		return events.RoomPlayers
	}
}

// ParseRole accepts the role names used in URLs.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePlayer, RoleInstructor, RoleScreen:
		return Role(s), true
	default:
		return "", false
	}
}

// MessageHandler receives the lifecycle of every connection.
type MessageHandler interface {
	HandleOpen(c *Connection)
	HandleMessage(c *Connection, message []byte)
	HandleClose(c *Connection)
}

// ConnectionManager manages WebSocket connections grouped into rooms
type ConnectionManager struct {
	rooms map[events.Room]map[*Connection]bool
	conns map[string]*Connection
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Role    Role
	Conn    *websocket.Conn
	Send    chan outbound
	Manager *ConnectionManager

	ConnectedAt time.Time

	limiter   *rate.Limiter
	rooms     map[events.Room]bool
	done      chan struct{}
	closeOnce sync.Once
}

type outbound struct {
	data  []byte
	close bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout      time.Duration              `yaml:"write_timeout"`
	ReadTimeout       time.Duration              `yaml:"read_timeout"`
	PingInterval      time.Duration              `yaml:"ping_interval"`
	MaxMessageSize    int64                      `yaml:"max_message_size"`
	ReadBufferSize    int                        `yaml:"read_buffer_size"`
	WriteBufferSize   int                        `yaml:"write_buffer_size"`
	SendBufferSize    int                        `yaml:"send_buffer_size"`
	BroadcastBuffer   int                        `yaml:"broadcast_buffer"`
	MessagesPerSecond float64                    `yaml:"messages_per_second"`
	MessageBurst      int                        `yaml:"message_burst"`
	CheckOrigin       func(r *http.Request) bool `yaml:"-"`
}

// BroadcastMessage represents a message to deliver to connections
type BroadcastMessage struct {
	Room  events.Room
	Event *events.Event
	// ConnID, if set, restricts delivery to one connection.
	ConnID string
	// CloseAfter closes the target connection once the event is written.
	CloseAfter bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    4096,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBufferSize:    256,
		BroadcastBuffer:   1000,
		MessagesPerSecond: 5,
		MessageBurst:      10,
		CheckOrigin: func(r *http.Request) bool {
			// Classroom deployments serve the client from anywhere on the LAN.
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.CheckOrigin == nil {
		config.CheckOrigin = DefaultConnectionConfig().CheckOrigin
	}
	return &ConnectionManager{
		rooms: make(map[events.Room]map[*Connection]bool),
		conns: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// SetHandler installs the handler for inbound messages. Must be called before Start.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, role Role) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := cm.newConnection(conn, role)
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("role", string(role)).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	if cm.handler != nil {
		cm.handler.HandleOpen(connection)
	}
	return nil
}

func (cm *ConnectionManager) newConnection(conn *websocket.Conn, role Role) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		Role:        role,
		Conn:        conn,
		Send:        make(chan outbound, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(rate.Limit(cm.config.MessagesPerSecond), cm.config.MessageBurst),
		rooms:       make(map[events.Room]bool),
		done:        make(chan struct{}),
	}
}

// registerConnection adds a connection to the manager and its default rooms
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.conns[conn.ID] = conn
	cm.joinLocked(conn, events.RoomAll)
	cm.joinLocked(conn, conn.Role.Room())

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.conns)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager. It reports
// whether the connection was still registered.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.conns[conn.ID]; !exists {
		return false
	}
	delete(cm.conns, conn.ID)
	for room := range conn.rooms {
		cm.leaveLocked(conn, room)
	}
	conn.closeOnce.Do(func() { close(conn.done) })

	log.Info().
		Str("connection_id", conn.ID).
		Str("role", string(conn.Role)).
		Msg("connection unregistered")
	return true
}

// JoinRoom adds a connection to room.
func (cm *ConnectionManager) JoinRoom(connID string, room events.Room) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if conn, ok := cm.conns[connID]; ok {
		cm.joinLocked(conn, room)
	}
}

// LeaveRoom removes a connection from room.
func (cm *ConnectionManager) LeaveRoom(connID string, room events.Room) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if conn, ok := cm.conns[connID]; ok {
		cm.leaveLocked(conn, room)
	}
}

func (cm *ConnectionManager) joinLocked(conn *Connection, room events.Room) {
	if cm.rooms[room] == nil {
		cm.rooms[room] = make(map[*Connection]bool)
	}
	cm.rooms[room][conn] = true
	conn.rooms[room] = true
}

func (cm *ConnectionManager) leaveLocked(conn *Connection, room events.Room) {
	delete(conn.rooms, room)
	if members, ok := cm.rooms[room]; ok {
		delete(members, conn)
		// Clean up empty rooms
		if len(members) == 0 {
			delete(cm.rooms, room)
		}
	}
}

// Broadcast sends an event to every connection in room. It never blocks.
func (cm *ConnectionManager) Broadcast(room events.Room, eventType events.Type, payload any) {
	event, err := events.New(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	cm.BroadcastEvent(room, event)
}

// BroadcastEvent sends an already built event to every connection in room.
func (cm *ConnectionManager) BroadcastEvent(room events.Room, event *events.Event) {
	cm.enqueue(BroadcastMessage{Room: room, Event: event})
}

// SendTo sends an event to a single connection.
func (cm *ConnectionManager) SendTo(connID string, eventType events.Type, payload any) {
	cm.sendTo(connID, eventType, payload, false)
}

// SendAndClose sends a final event to a connection and then closes it.
func (cm *ConnectionManager) SendAndClose(connID string, eventType events.Type, payload any) {
	cm.sendTo(connID, eventType, payload, true)
}

func (cm *ConnectionManager) sendTo(connID string, eventType events.Type, payload any, closeAfter bool) {
	event, err := events.New(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	cm.enqueue(BroadcastMessage{Event: event, ConnID: connID, CloseAfter: closeAfter})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("event_type", string(message.Event.Type)).
			Str("room", string(message.Room)).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	targets := cm.targets(message)
	if len(targets) == 0 {
		return
	}

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- outbound{data: eventData, close: message.CloseAfter}:
		case <-conn.done:
		default:
			// Slow viewers must never hold the game back.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("role", string(conn.Role)).
				Msg("connection send buffer full, closing connection")
			cm.drop(conn)
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room", string(message.Room)).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// targets snapshots the recipients so the lock is not held while sending.
func (cm *ConnectionManager) targets(message BroadcastMessage) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if message.ConnID != "" {
		if conn, ok := cm.conns[message.ConnID]; ok {
			return []*Connection{conn}
		}
		return nil
	}
	members := cm.rooms[message.Room]
	out := make([]*Connection, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

// drop unregisters conn and closes its socket. The read pump then reports the close.
func (cm *ConnectionManager) drop(conn *Connection) {
	cm.unregisterConnection(conn)
	if conn.Conn != nil {
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.conns))
	for _, conn := range cm.conns {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.drop(conn)
	}
}

// ConnectionStats summarizes active connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	Roles            map[string]int `json:"roles"`
	Rooms            int            `json:"rooms"`
	QueuedBroadcasts int            `json:"queued_broadcasts"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roles := make(map[string]int)
	for _, conn := range cm.conns {
		roles[string(conn.Role)]++
	}
	return ConnectionStats{
		TotalConnections: len(cm.conns),
		Roles:            roles,
		Rooms:            len(cm.rooms),
		QueuedBroadcasts: len(cm.broadcastCh),
	}
}

// writePump handles sending messages to the WebSocket connection
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
			if err := c.Conn.WriteMessage(websocket.TextMessage, message.data); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}
			if message.close {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced"))
				c.Manager.unregisterConnection(c)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if c.Manager.handler != nil {
			c.Manager.handler.HandleClose(c)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// Allow reports whether the connection may send another message now.
func (c *Connection) Allow() bool {
	return c.limiter.Allow()
}
