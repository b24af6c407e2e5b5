package ws

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playheadball/backend/internal/config"
	"github.com/playheadball/backend/internal/game"
	"github.com/playheadball/backend/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Server owns the socket surface: the hub, player records, the ready-up
// windows and the disconnect grace timers. It glues inbound socket events to
// the matchmaker, the rooms and the event pipeline.
type Server struct {
	hub *Hub
	cfg *config.Config

	pipeline    *game.Pipeline
	validator   *game.StateValidator
	matchmaker  *game.Matchmaker
	rooms       *game.RoomManager
	gameEnd     *game.GameEndProcessor
	persistence *game.PersistenceAdapter

	heartbeatInterval time.Duration
	connectionTimeout time.Duration
	reconnectGrace    time.Duration
	readyUpWindow     time.Duration
	maxConnections    int

	connCount atomic.Int64
	socketSeq atomic.Uint64

	playersMu sync.RWMutex
	players   map[string]*game.Player

	pendingMu sync.Mutex
	pending   map[string]*pendingMatch // roomID -> pairing awaiting ready-up

	graceMu     sync.Mutex
	graceTimers map[string]*time.Timer // playerID -> disconnect grace timer

	endReqMu    sync.Mutex
	endRequests map[string]map[string]bool // roomID -> playerIDs requesting end

	stop chan struct{}
	once sync.Once
}

// pendingMatch is a formed pairing waiting for both ready_up confirmations.
type pendingMatch struct {
	room *game.Room
	a, b *game.QueueEntry
}

// NewServer wires the socket layer into the core. It installs itself as the
// matchmaker's match sink, the pipeline's unhealthy-room handler, and the
// game-end processor's cleanup hook.
func NewServer(cfg *config.Config, hub *Hub, pipeline *game.Pipeline, validator *game.StateValidator,
	matchmaker *game.Matchmaker, rooms *game.RoomManager, gameEnd *game.GameEndProcessor,
	persistence *game.PersistenceAdapter) *Server {
	s := &Server{
		hub:               hub,
		cfg:               cfg,
		pipeline:          pipeline,
		validator:         validator,
		matchmaker:        matchmaker,
		rooms:             rooms,
		gameEnd:           gameEnd,
		persistence:       persistence,
		heartbeatInterval: time.Duration(cfg.HeartbeatSeconds) * time.Second,
		connectionTimeout: time.Duration(cfg.ConnectionTimeoutSeconds) * time.Second,
		reconnectGrace:    time.Duration(cfg.ReconnectGraceSeconds) * time.Second,
		readyUpWindow:     time.Duration(cfg.ReadyUpSeconds) * time.Second,
		maxConnections:    cfg.MaxConnections,
		players:           make(map[string]*game.Player),
		pending:           make(map[string]*pendingMatch),
		graceTimers:       make(map[string]*time.Timer),
		endRequests:       make(map[string]map[string]bool),
		stop:              make(chan struct{}),
	}

	matchmaker.OnMatch = s.onMatch
	matchmaker.OnTimeout = s.onQueueTimeout
	pipeline.OnUnhealthyRoom = s.onUnhealthyRoom
	gameEnd.OnCleanup = func(roomID string) {
		hub.RemoveRoom(roomID)
		s.clearEndRequests(roomID)
	}
	return s
}

// Run consumes the hub's register/unregister channels and runs the idle
// sweep. Call in a goroutine.
func (s *Server) Run() {
	sweep := time.NewTicker(s.heartbeatInterval)
	defer sweep.Stop()

	for {
		select {
		case client := <-s.hub.register:
			s.handleRegister(client)
		case client := <-s.hub.unregister:
			s.handleUnregister(client)
		case <-sweep.C:
			s.sweepIdle()
		case <-s.stop:
			return
		}
	}
}

// HandleWebSocket upgrades the HTTP request. Authentication happens on the
// socket afterwards; unauthenticated clients can only authenticate and ping.
func (s *Server) HandleWebSocket(c *gin.Context) {
	if s.connCount.Load() >= int64(s.maxConnections) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "CAPACITY"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	s.connCount.Add(1)
	metrics.ConnectionsTotal.Inc()

	client := &Client{
		conn:   conn,
		server: s,
		send:   make(chan []byte, 256),
	}

	go client.writePump()
	go client.readPump()
}

// handleRegister binds an authenticated client into the hub, replacing any
// prior socket for the same player (reconnection takeover).
func (s *Server) handleRegister(client *Client) {
	s.hub.mu.Lock()

	var transferredRoom string
	if oldClient, exists := s.hub.clients[client.playerID]; exists && oldClient != client {
		log.Printf("[WS] Player %s reconnecting - closing old connection", client.playerID)
		oldClient.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"),
			time.Now().Add(5*time.Second))
		oldClient.conn.Close()
		select {
		case <-oldClient.send:
		default:
			close(oldClient.send)
		}
		transferredRoom = oldClient.roomID
		if room, ok := s.hub.rooms[transferredRoom]; ok {
			delete(room, client.playerID)
		}
		delete(s.hub.clients, client.playerID)
	}

	s.hub.clients[client.playerID] = client
	if transferredRoom != "" {
		if _, ok := s.hub.rooms[transferredRoom]; !ok {
			s.hub.rooms[transferredRoom] = make(map[string]*Client)
		}
		s.hub.rooms[transferredRoom][client.playerID] = client
		client.roomID = transferredRoom
	}
	count := len(s.hub.clients)
	s.hub.mu.Unlock()

	metrics.ConnectionsCurrent.Set(float64(count))
	log.Printf("[WS] Player %s connected (%d online)", client.playerID, count)

	s.afterRegister(client)
}

// handleUnregister tears a socket down. Unauthenticated sockets only adjust
// the connection counter; authenticated ones enter the disconnect flow.
func (s *Server) handleUnregister(client *Client) {
	s.connCount.Add(-1)

	if client.playerID == "" {
		return
	}

	s.hub.mu.Lock()
	cur, ok := s.hub.clients[client.playerID]
	if !ok || cur != client {
		// Already replaced by a reconnect takeover.
		s.hub.mu.Unlock()
		return
	}
	delete(s.hub.clients, client.playerID)
	if room, exists := s.hub.rooms[client.roomID]; exists {
		delete(room, client.playerID)
		if len(room) == 0 {
			delete(s.hub.rooms, client.roomID)
		}
	}
	select {
	case <-client.send:
	default:
		close(client.send)
	}
	count := len(s.hub.clients)
	s.hub.mu.Unlock()

	metrics.ConnectionsCurrent.Set(float64(count))
	log.Printf("[WS] Player %s disconnected (%d online)", client.playerID, count)

	s.onPlayerDisconnect(client.playerID)
}

// sweepIdle force-closes sockets whose player has been silent past the
// connection timeout.
func (s *Server) sweepIdle() {
	for _, client := range s.hub.Clients() {
		p := s.playerByID(client.playerID)
		if p == nil {
			continue
		}
		if time.Since(p.LastActivity()) > s.connectionTimeout {
			log.Printf("[WS] Player %s timed out - closing socket", client.playerID)
			metrics.ConnectionsTimedOut.Inc()
			client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "TIMEOUT"),
				time.Now().Add(5*time.Second))
			client.conn.Close()
		}
	}
}

// Shutdown broadcasts server_shutdown and terminates every socket and room.
func (s *Server) Shutdown() {
	s.once.Do(func() { close(s.stop) })

	s.hub.BroadcastToAll("server_shutdown", map[string]interface{}{
		"message": "Server shutting down",
	})
	s.matchmaker.Stop()
	for _, r := range s.rooms.ActiveRooms() {
		r.Cancel()
	}
	for _, client := range s.hub.Clients() {
		client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(2*time.Second))
		client.conn.Close()
	}
	s.pipeline.Stop()
	log.Printf("[WS] Shutdown complete")
}

// playerByID returns the shared player record, or nil.
func (s *Server) playerByID(id string) *game.Player {
	s.playersMu.RLock()
	defer s.playersMu.RUnlock()
	return s.players[id]
}

// nextSocketID mints a socket identifier for a new binding.
func (s *Server) nextSocketID() string {
	return fmt.Sprintf("sock_%d", s.socketSeq.Add(1))
}

func (s *Server) clearEndRequests(roomID string) {
	s.endReqMu.Lock()
	delete(s.endRequests, roomID)
	s.endReqMu.Unlock()
}
