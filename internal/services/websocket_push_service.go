package services

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/metrics"
	"lending-gateway/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Connection one websocket client
type Connection struct {
	ID          string          `json:"id"`
	UserAddress string          `json:"user_address"`
	Conn        *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	LastPing    time.Time       `json:"last_ping"`
}

// PushMessage envelope for every message pushed to clients
type PushMessage struct {
	Type        string      `json:"type"`
	Timestamp   string      `json:"timestamp"`
	MessageID   string      `json:"message_id"`
	UserAddress string      `json:"user_address"`
	Data        interface{} `json:"data"`
}

// OperationUpdateData payload of an operation_update message
type OperationUpdateData struct {
	Operation   models.LendingOperation `json:"operation"`
	UserMessage string                  `json:"user_message,omitempty"`
}

var operationStatusMessages = map[models.LendingOperationStatus]string{
	models.LendingOperationStatusPending:   "⏳ Operation accepted, submitting to the sequencer...",
	models.LendingOperationStatusSubmitted: "📤 Operation submitted, waiting for cross-chain execution",
	models.LendingOperationStatusFailed:    "❌ Operation could not be submitted",
}

// WebSocketPushService fans operation updates out to the requester's connections
type WebSocketPushService struct {
	connections map[string]*Connection   // key: connectionID
	userConns   map[string][]*Connection // key: lowercase user address
	hub         chan PushMessage
	register    chan *Connection
	unregister  chan *Connection
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	log         *logrus.Entry
}

// NewWebSocketPushService starts the hub. allowedOrigins empty accepts any origin.
func NewWebSocketPushService(allowedOrigins []string, logger *logrus.Logger) *WebSocketPushService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &WebSocketPushService{
		connections: make(map[string]*Connection),
		userConns:   make(map[string][]*Connection),
		hub:         make(chan PushMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
		log:         logger.WithField("component", "websocket"),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}

	go s.run()
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (s *WebSocketPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)
		case conn := <-s.unregister:
			s.handleUnregister(conn)
		case message := <-s.hub:
			s.handleBroadcast(message)
		case <-s.done:
			s.dropAll()
			return
		}
	}
}

// Close stops the hub; connections are dropped by the hub goroutine.
func (s *WebSocketPushService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *WebSocketPushService) dropAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for id, conn := range s.connections {
		close(conn.Send)
		delete(s.connections, id)
	}
	s.userConns = make(map[string][]*Connection)
	metrics.WebSocketClients.Set(0)
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	s.connections[conn.ID] = conn
	key := strings.ToLower(conn.UserAddress)
	s.userConns[key] = append(s.userConns[key], conn)
	metrics.WebSocketClients.Set(float64(len(s.connections)))
	s.mutex.Unlock()

	s.log.WithFields(logrus.Fields{"user": conn.UserAddress, "conn": conn.ID}).Info("📱 WebSocket connection registered")

	s.sendToConnection(conn, PushMessage{
		Type:        "connection_established",
		Timestamp:   time.Now().Format(time.RFC3339),
		MessageID:   uuid.NewString(),
		UserAddress: conn.UserAddress,
		Data: map[string]interface{}{
			"connection_id": conn.ID,
			"message":       "Real-time status connection established",
		},
	})
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.connections[conn.ID]; !ok {
		return
	}
	delete(s.connections, conn.ID)

	key := strings.ToLower(conn.UserAddress)
	userConns := s.userConns[key]
	for i, c := range userConns {
		if c.ID == conn.ID {
			s.userConns[key] = append(userConns[:i], userConns[i+1:]...)
			break
		}
	}
	if len(s.userConns[key]) == 0 {
		delete(s.userConns, key)
	}

	close(conn.Send)
	metrics.WebSocketClients.Set(float64(len(s.connections)))
	s.log.WithFields(logrus.Fields{"user": conn.UserAddress, "conn": conn.ID}).Info("📱 WebSocket connection unregistered")
}

func (s *WebSocketPushService) handleBroadcast(message PushMessage) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, conn := range s.userConns[strings.ToLower(message.UserAddress)] {
		s.sendToConnection(conn, message)
	}
}

// sendToConnection drops the message when the client is not keeping up
func (s *WebSocketPushService) sendToConnection(conn *Connection, message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		s.log.WithError(err).Error("❌ Failed to marshal push message")
		return
	}
	select {
	case conn.Send <- data:
	default:
		s.log.WithField("conn", conn.ID).Warn("⚠️ Send buffer full, dropping message")
	}
}

// HandleWebSocket upgrades the request and serves pushes for userAddress
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, userAddress string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}

	conn := &Connection{
		ID:          uuid.NewString(),
		UserAddress: userAddress,
		Conn:        ws,
		Send:        make(chan []byte, 256),
		LastPing:    time.Now(),
	}

	select {
	case s.register <- conn:
	case <-s.done:
		ws.Close()
		return
	}

	go s.writePump(conn)
	go s.readPump(conn)
}

func (s *WebSocketPushService) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; clients do not send commands.
func (s *WebSocketPushService) readPump(conn *Connection) {
	defer func() {
		select {
		case s.unregister <- conn:
		case <-s.done:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.WithError(err).Warn("❌ WebSocket read error")
			}
			return
		}
	}
}

// PushOperationUpdate queues an operation_update for the requester
func (s *WebSocketPushService) PushOperationUpdate(op *models.LendingOperation) {
	msg := PushMessage{
		Type:        "operation_update",
		Timestamp:   time.Now().Format(time.RFC3339),
		MessageID:   uuid.NewString(),
		UserAddress: op.Requester,
		Data: OperationUpdateData{
			Operation:   *op,
			UserMessage: operationStatusMessages[op.Status],
		},
	}

	select {
	case s.hub <- msg:
	case <-s.done:
	default:
		s.log.WithField("id", op.ID).Warn("⚠️ Push hub full, dropping operation update")
	}
}

// GetActiveConnections number of registered connections
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// GetUserConnections number of connections for userAddress
func (s *WebSocketPushService) GetUserConnections(userAddress string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.userConns[strings.ToLower(userAddress)])
}
