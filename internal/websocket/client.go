package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
)

const nearbyTimeout = 5 * time.Second

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID     string
	viewer domain.Viewer
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	log    *zap.Logger
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", zap.Error(err))
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePosition:
		c.handlePosition(msg.Data)
	case MessageTypePing:
		c.sendMessage(MessageTypePong, nil)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	default:
		c.sendError("unknown message type")
	}
}

// handlePosition 按上报位置返回附近信件
func (c *Client) handlePosition(raw json.RawMessage) {
	var pos PositionData
	if err := json.Unmarshal(raw, &pos); err != nil {
		c.sendError("invalid position")
		return
	}
	coords := domain.Coordinates{Lat: pos.Lat, Lng: pos.Lng}
	if err := domain.ValidateCoordinates(coords); err != nil {
		c.sendError("invalid position")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), nearbyTimeout)
	defer cancel()
	letters, err := c.hub.letters.Nearby(ctx, c.viewer, &coords, pos.Seen)
	if err != nil {
		c.log.Error("failed to compute nearby letters", zap.String("clientID", c.ID), zap.Error(err))
		c.sendError("nearby unavailable")
		return
	}
	c.sendMessage(MessageTypeNearby, letters)
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	data, err := json.Marshal(&Message{Type: MessageTypeError, Error: errMsg, Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	c.enqueue(data)
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(t MessageType, payload interface{}) {
	data, err := newMessage(t, payload)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) {
	defer func() {
		// send 可能已被 hub 关闭
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
