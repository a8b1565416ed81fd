package ws

import (
	"log"

	"github.com/qs3c/pos_billing_server/internal/pkg/pubsub"
)

// ForwardBillingEvent 作为 pubsub.Subscriber 的 handler，把扣款事件推给对应租户。
// 全局批次的完成事件没有租户，只有 admin 连接能收到。
func (h *Hub) ForwardBillingEvent(event *pubsub.BillingEvent) {
	tenantID := event.TenantID
	if tenantID == "" {
		tenantID = allTenants
	}

	if err := h.SendToTenant(tenantID, &Message{Type: event.Type, Data: event}); err != nil {
		log.Printf("[WS] failed to forward %s event: %v", event.Type, err)
	}
}
