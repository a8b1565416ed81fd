package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// allTenants admin 连接订阅全部租户的事件
const allTenants = "*"

type Hub struct {
	// 每个租户可以有多个连接（多个收银台、多标签页）
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	TenantID string
	All      bool // admin 连接，接收所有租户事件
	Conn     *websocket.Conn
	mu       sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (c *Client) key() string {
	if c.All {
		return allTenants
	}
	return c.TenantID
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := client.key()
	if h.clients[key] == nil {
		h.clients[key] = make(map[*Client]struct{})
	}
	h.clients[key][client] = struct{}{}

	log.Printf("[WS] tenant %s connected, tenant_conns: %d, total: %d", key, len(h.clients[key]), h.countLocked())
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := client.key()
	if conns, ok := h.clients[key]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, key)
		}
	}
	log.Printf("[WS] tenant %s disconnected", key)
}

// SendToTenant 向租户的所有连接以及 admin 连接发送消息
func (h *Hub) SendToTenant(tenantID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	// 复制一份引用，避免长时间持锁
	var targets []*Client
	for c := range h.clients[tenantID] {
		targets = append(targets, c)
	}
	if tenantID != allTenants {
		for c := range h.clients[allTenants] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Printf("[WS] write error for tenant %s: %v", c.key(), err)
		}
	}
	return nil
}

// IsOnline 租户是否有在线连接
func (h *Hub) IsOnline(tenantID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[tenantID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
