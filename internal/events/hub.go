package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscriber subscribes to a tenant's event stream.
type Subscriber interface {
	Subscribe(tenantID uuid.UUID, handler func(Event)) (cancel func(), err error)
}

// Hub keeps tenant -> websocket clients and fans out events from the subscriber.
type Hub struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]map[string]*Client
	subs    map[uuid.UUID]func()
	sub     Subscriber
	logger  *zap.Logger
}

// NewHub creates a hub. A nil subscriber means only Broadcast delivers events.
func NewHub(sub Subscriber, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		tenants: make(map[uuid.UUID]map[string]*Client),
		subs:    make(map[uuid.UUID]func()),
		sub:     sub,
		logger:  logger,
	}
}

// Register adds a client, subscribing to the tenant's channel for its first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tenants[c.TenantID] == nil {
		h.tenants[c.TenantID] = make(map[string]*Client)
		if h.sub != nil {
			tenantID := c.TenantID
			cancel, err := h.sub.Subscribe(tenantID, func(ev Event) { h.Broadcast(ev) })
			if err != nil {
				h.logger.Warn("event subscription failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
			} else {
				h.subs[tenantID] = cancel
			}
		}
	}
	h.tenants[c.TenantID][c.ID] = c
	h.logger.Debug("event client joined", zap.String("client_id", c.ID), zap.String("tenant_id", c.TenantID.String()))
}

// Unregister removes a client and drops the subscription when it was the tenant's last.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.tenants[c.TenantID]
	if !ok {
		return
	}
	if _, ok := m[c.ID]; ok {
		delete(m, c.ID)
		close(c.send)
	}
	if len(m) == 0 {
		delete(h.tenants, c.TenantID)
		if cancel, ok := h.subs[c.TenantID]; ok {
			cancel()
			delete(h.subs, c.TenantID)
		}
	}
}

// Broadcast delivers ev to the local clients of its tenant. Slow clients miss events.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.tenants[ev.TenantID] {
		select {
		case c.send <- ev:
		default:
		}
	}
}

// Clients returns the number of connected clients for a tenant.
func (h *Hub) Clients(tenantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}
