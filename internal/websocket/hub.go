package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/monitoring"
	"okitegami/backend/internal/service"
	"okitegami/backend/internal/storage/redis"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxMessage   = 4096
)

// Authenticator 识别连接携带的令牌
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Viewer, error)
}

// NearbyFinder 按位置计算附近信件
type NearbyFinder interface {
	Nearby(ctx context.Context, viewer domain.Viewer, pos *domain.Coordinates, seen []string) ([]*service.NearbyLetter, error)
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if origin == "*" || origin == requestOrigin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypePosition      MessageType = "position"
	MessageTypeNearby        MessageType = "nearby"
	MessageTypeLetterPlaced  MessageType = "letter_placed"
	MessageTypeLetterUpdated MessageType = "letter_updated"
	MessageTypeLetterRemoved MessageType = "letter_removed"
	MessageTypePing          MessageType = "ping"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// PositionData 客户端上报的位置，Seen 为匿名访问者本地已解锁的信件
type PositionData struct {
	Lat  float64  `json:"lat"`
	Lng  float64  `json:"lng"`
	Seen []string `json:"seen,omitempty"`
}

// relayEnvelope 跨实例转发的事件，Origin 用于忽略自己发出的消息
type relayEnvelope struct {
	Origin string              `json:"origin"`
	Event  service.LetterEvent `json:"event"`
}

// Hub 管理所有WebSocket连接
type Hub struct {
	id             string
	clients        map[string]*Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan []byte
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	auth           Authenticator
	letters        NearbyFinder
	relay          *redis.Cache
	metrics        *monitoring.Metrics
}

// NewHub 创建WebSocket Hub
//
// relay 非空时信件事件通过 Redis 在多个实例之间转发。
func NewHub(allowedOrigins []string, auth Authenticator, letters NearbyFinder, relay *redis.Cache, metrics *monitoring.Metrics, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Hub{
		id:             uuid.NewString(),
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte, 256),
		log:            log.Named("websocket"),
		allowedOrigins: allowedOrigins,
		auth:           auth,
		letters:        letters,
		relay:          relay,
		metrics:        metrics,
	}
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.UpdateWSConnections(count)
			h.log.Debug("client registered", zap.String("id", client.ID), zap.String("viewer", client.viewer.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.UpdateWSConnections(count)
			h.log.Debug("client unregistered", zap.String("id", client.ID))

		case data := <-h.broadcast:
			h.broadcastAll(data)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// RunRelay 订阅其他实例的信件事件，未配置 Redis 时直接返回
func (h *Hub) RunRelay(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	sub := h.relay.Subscribe(ctx)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.log.Warn("invalid relay payload", zap.Error(err))
				continue
			}
			if env.Origin == h.id {
				continue
			}
			h.enqueue(env.Event)
		}
	}
}

// PublishLetterEvent 广播信件变化，实现 service.EventPublisher
func (h *Hub) PublishLetterEvent(ctx context.Context, event service.LetterEvent) {
	h.enqueue(event)
	if h.relay == nil {
		return
	}
	payload, err := json.Marshal(relayEnvelope{Origin: h.id, Event: event})
	if err != nil {
		return
	}
	if err := h.relay.Publish(context.WithoutCancel(ctx), payload); err != nil {
		h.log.Warn("failed to relay letter event", zap.String("letter_id", event.LetterID), zap.Error(err))
	}
}

func (h *Hub) enqueue(event service.LetterEvent) {
	data, err := newMessage(MessageType(event.Type), event)
	if err != nil {
		h.log.Error("failed to marshal letter event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("broadcast queue full, event dropped", zap.String("letter_id", event.LetterID))
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func newMessage(t MessageType, payload interface{}) ([]byte, error) {
	msg := &Message{Type: t, Timestamp: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}

// broadcastAll 向所有客户端广播消息
func (h *Hub) broadcastAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	data, err := newMessage(MessageTypePing, nil)
	if err != nil {
		return
	}
	h.broadcastAll(data)
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.metrics.UpdateWSConnections(0)
}

// bearerToken 从 URL 参数或 Authorization 头获取令牌
func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// HandleWebSocket 处理WebSocket连接，令牌可选，未携带时为匿名访问者
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		var viewer domain.Viewer
		if token := bearerToken(c); token != "" {
			v, err := hub.auth.Authenticate(c.Request.Context(), token)
			if err != nil {
				code := "unauthorized"
				if errors.Is(err, domain.ErrSessionExpired) {
					code = "session_expired"
				}
				hub.log.Debug("websocket authentication failed", zap.Error(err), zap.String("remote_addr", c.ClientIP()))
				c.JSON(http.StatusUnauthorized, gin.H{"code": code})
				return
			}
			viewer = v
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			viewer: viewer,
			conn:   conn,
			hub:    hub,
			send:   make(chan []byte, 64),
			log:    hub.log,
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
