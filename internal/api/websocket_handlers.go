// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// DraftWebSocket 订阅某个用户的草稿变更事件
func (h *Handler) DraftWebSocket(c *gin.Context) {
	userAddress := c.Param("user_address")
	if err := models.ValidateUserKey(userAddress); err != nil {
		h.Response.BadRequest(c, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newWebSocketClient(conn, userAddress)
	if welcome, err := json.Marshal(map[string]interface{}{
		"type":         "connected",
		"user_address": userAddress,
		"timestamp":    time.Now().UnixMilli(),
	}); err == nil {
		client.send <- welcome
	}

	if !h.Hub.Register(client) {
		conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// GetWebSocketStatus 获取 WebSocket 连接状态
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	status := h.Hub.GetStatus()
	status["timestamp"] = time.Now().Format(time.RFC3339)
	c.JSON(http.StatusOK, status)
}

// readPump 只处理控制帧和心跳，客户端消息内容被忽略
func (h *Handler) readPump(client *WebSocketClient) {
	defer func() {
		h.Hub.Unregister(client)
		client.conn.Close()
	}()

	timeout := h.Hub.pingTimeout
	client.conn.SetReadLimit(maxInboundMessage)
	client.conn.SetReadDeadline(time.Now().Add(timeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(timeout))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("user", client.userAddress).Msg("websocket read error")
			}
			return
		}
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(timeout))
	}
}

// writePump 发送队列中的消息并定期 ping；发送队列关闭时结束
func (h *Handler) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(h.Hub.pingTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
