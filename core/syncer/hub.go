// Package syncer 把播放编排的同步消息经 WebSocket 推送给副显示面。
// 通道是单向的：副屏只接收，不回发控制消息。
package syncer

import (
	"encoding/json"
	"sync"
	"time"

	"EchoFM/core/player"
	"EchoFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// 发送缓冲满说明副屏已经跟不上，直接断开让它重连
	sendBuffer = 32
)

// Hub 副屏连接集线器，实现 player.Sink。
// 没有任何副屏连接时推送被静默丢弃，这不是错误。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub 创建集线器
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Open 判断是否有副屏在线
func (h *Hub) Open() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// Push 向所有在线副屏推送同步消息
func (h *Hub) Push(msg player.SyncMessage) {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.mu.RUnlock()
		logger.Warn("同步消息编码失败", logger.ErrorField(err))
		return
	}
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(data) {
			// 跟不上或已关闭的连接直接踢掉
			h.remove(c)
		}
	}
}

// Register 接管一个升级完成的 WebSocket 连接
func (h *Hub) Register(conn *websocket.Conn) *Client {
	client := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	logger.Info("副屏已连接",
		logger.String("clientId", client.ID),
		logger.Int("total", total))

	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	c.closeSend()
}

// CloseAll 断开全部副屏连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
}

// Client 一个副屏连接
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// closeMu 保证关闭和发送互斥：多个推送方各自持有快照，
	// 任何一方踢掉慢连接后其余发送不能再碰已关闭的通道
	closeMu sync.Mutex
	closed  bool
}

// trySend 非阻塞投递；连接已关闭或缓冲已满时返回假
func (c *Client) trySend(data []byte) bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend 关闭发送通道，幂等
func (c *Client) closeSend() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump 把待发消息写到连接，并维持心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// readPump 只消费 pong 和关闭帧，副屏没有上行数据
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		logger.Info("副屏已断开", logger.String("clientId", c.ID))
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
