// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/emlanis/secret-ai-writer/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultPingTimeout = 60 * time.Second
	writeWait          = 10 * time.Second
	maxInboundMessage  = 4096
	sendQueueSize      = 64
)

// WebSocket 升级器配置；跨域由 CORS 中间件和前端同源策略控制
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
}

// WebSocketClient 表示一个订阅某个用户草稿事件的连接
type WebSocketClient struct {
	conn        WebSocketConnection
	userAddress string
	send        chan []byte // 只由管理器关闭
	lastPing    atomic.Int64
	createdAt   time.Time
}

func newWebSocketClient(conn WebSocketConnection, userAddress string) *WebSocketClient {
	client := &WebSocketClient{
		conn:        conn,
		userAddress: userAddress,
		send:        make(chan []byte, sendQueueSize),
		createdAt:   time.Now(),
	}
	client.UpdatePing()
	return client
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(time.Unix(0, client.lastPing.Load())) > timeout
}

type outbound struct {
	userAddress string
	payload     []byte
}

// WebSocketManager 按用户标识管理草稿通知连接。连接表只在 run 协程中修改
type WebSocketManager struct {
	connections     map[string]map[*WebSocketClient]struct{}
	broadcast       chan outbound
	register        chan *WebSocketClient
	unregister      chan *WebSocketClient
	done            chan struct{}
	mutex           sync.RWMutex
	pingTimeout     time.Duration
	cleanupInterval time.Duration
	logger          zerolog.Logger
}

// NewWebSocketManager 创建 WebSocket 管理器，需调用 Run 启动
func NewWebSocketManager(logger zerolog.Logger) *WebSocketManager {
	return &WebSocketManager{
		connections:     make(map[string]map[*WebSocketClient]struct{}),
		broadcast:       make(chan outbound, 256),
		register:        make(chan *WebSocketClient, 64),
		unregister:      make(chan *WebSocketClient, 64),
		done:            make(chan struct{}),
		pingTimeout:     defaultPingTimeout,
		cleanupInterval: 30 * time.Second,
		logger:          logger.With().Str("component", "ws").Logger(),
	}
}

// Run 运行管理器主循环，ctx 结束时关闭所有连接
func (manager *WebSocketManager) Run(ctx context.Context) {
	ticker := time.NewTicker(manager.cleanupInterval)
	defer ticker.Stop()
	defer close(manager.done)

	for {
		select {
		case client := <-manager.register:
			manager.registerClient(client)

		case client := <-manager.unregister:
			manager.removeClient(client)

		case msg := <-manager.broadcast:
			manager.deliver(msg)

		case now := <-ticker.C:
			manager.cleanupExpiredConnections(now)

		case <-ctx.Done():
			manager.shutdown()
			return
		}
	}
}

// Publish 实现草稿事件通知，队列满时丢弃
func (manager *WebSocketManager) Publish(event models.DraftEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		manager.logger.Error().Err(err).Msg("encode draft event")
		return
	}
	select {
	case manager.broadcast <- outbound{userAddress: event.UserAddress, payload: payload}:
	default:
		manager.logger.Warn().Str("user", event.UserAddress).Str("type", event.Type).Msg("broadcast queue full, event dropped")
	}
}

func (manager *WebSocketManager) registerClient(client *WebSocketClient) {
	manager.mutex.Lock()
	if manager.connections[client.userAddress] == nil {
		manager.connections[client.userAddress] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.userAddress][client] = struct{}{}
	total := manager.countLocked()
	manager.mutex.Unlock()

	utils.SetWSConnections(total)
	manager.logger.Debug().Str("user", client.userAddress).Msg("websocket client connected")
}

// removeClient 移除连接并关闭发送队列；重复移除无副作用
func (manager *WebSocketManager) removeClient(client *WebSocketClient) {
	manager.mutex.Lock()
	clients, ok := manager.connections[client.userAddress]
	if ok {
		if _, member := clients[client]; member {
			delete(clients, client)
			close(client.send)
		} else {
			ok = false
		}
		if len(clients) == 0 {
			delete(manager.connections, client.userAddress)
		}
	}
	total := manager.countLocked()
	manager.mutex.Unlock()

	if ok {
		utils.SetWSConnections(total)
		manager.logger.Debug().Str("user", client.userAddress).Msg("websocket client disconnected")
	}
}

func (manager *WebSocketManager) deliver(msg outbound) {
	manager.mutex.RLock()
	var slow []*WebSocketClient
	for client := range manager.connections[msg.userAddress] {
		select {
		case client.send <- msg.payload:
		default:
			slow = append(slow, client)
		}
	}
	manager.mutex.RUnlock()

	for _, client := range slow {
		manager.logger.Warn().Str("user", client.userAddress).Msg("client queue full, disconnecting")
		manager.removeClient(client)
	}
}

// cleanupExpiredConnections 清理超时未响应 pong 的连接
func (manager *WebSocketManager) cleanupExpiredConnections(now time.Time) {
	manager.mutex.RLock()
	var expired []*WebSocketClient
	for _, clients := range manager.connections {
		for client := range clients {
			if client.IsExpired(now, manager.pingTimeout) {
				expired = append(expired, client)
			}
		}
	}
	manager.mutex.RUnlock()

	for _, client := range expired {
		manager.removeClient(client)
		client.conn.Close()
	}
}

func (manager *WebSocketManager) shutdown() {
	manager.mutex.Lock()
	for _, clients := range manager.connections {
		for client := range clients {
			close(client.send)
		}
	}
	manager.connections = make(map[string]map[*WebSocketClient]struct{})
	manager.mutex.Unlock()
	utils.SetWSConnections(0)
}

func (manager *WebSocketManager) countLocked() int {
	total := 0
	for _, clients := range manager.connections {
		total += len(clients)
	}
	return total
}

// Unregister 由读协程在连接断开时调用；管理器已停止时直接返回
func (manager *WebSocketManager) Unregister(client *WebSocketClient) {
	select {
	case manager.unregister <- client:
	case <-manager.done:
	}
}

// Register 登记新连接；管理器已停止时返回 false
func (manager *WebSocketManager) Register(client *WebSocketClient) bool {
	select {
	case <-manager.done:
		return false
	default:
	}
	select {
	case manager.register <- client:
		return true
	case <-manager.done:
		return false
	}
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	users := make(map[string]int, len(manager.connections))
	for userAddress, clients := range manager.connections {
		users[userAddress] = len(clients)
	}
	return map[string]interface{}{
		"total_users":          len(manager.connections),
		"total_connections":    manager.countLocked(),
		"users":                users,
		"ping_timeout_seconds": int(manager.pingTimeout.Seconds()),
	}
}
