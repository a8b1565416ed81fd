package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pos_billing_server/internal/api/middleware"
	"github.com/qs3c/pos_billing_server/internal/model/dto"
	"github.com/qs3c/pos_billing_server/internal/pkg/response"
	"github.com/qs3c/pos_billing_server/internal/service"
)

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

func callerFrom(c *gin.Context) (service.Caller, bool) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return service.Caller{}, false
	}
	return service.Caller{TenantID: tenantID, Admin: middleware.IsAdmin(c)}, true
}

// writeError 业务错误映射到响应码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSubscriptionNotFound), errors.Is(err, service.ErrTenantNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		response.PermissionError(c, err.Error())
	case errors.Is(err, service.ErrNotReactivatable):
		response.StateError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}

// CreateRun 手动触发扣款批次
// POST /api/v1/billing/runs
func (h *BillingHandler) CreateRun(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	// 请求体可选
	var req dto.BillingRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.billingService.EnqueueRun(c.Request.Context(), caller, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "扣款批次已入队", resp)
}

// GetSubscription 获取订阅详情
// GET /api/v1/subscriptions/:id
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	item, err := h.billingService.GetSubscription(caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, item)
}

// ListSubscriptionLogs 获取订阅的扣款记录
// GET /api/v1/subscriptions/:id/payment-logs
func (h *BillingHandler) ListSubscriptionLogs(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	items, err := h.billingService.ListSubscriptionLogs(caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, items)
}

// Reactivate 恢复扣款失败的订阅
// POST /api/v1/subscriptions/:id/reactivate
func (h *BillingHandler) Reactivate(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	item, err := h.billingService.Reactivate(caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "订阅已恢复", item)
}

// ListPaymentLogs 租户扣款记录分页
// GET /api/v1/payment-logs
func (h *BillingHandler) ListPaymentLogs(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, pageSize := response.PageParams(c)
	items, total, err := h.billingService.ListPaymentLogs(caller, c.Query("tenant_id"), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}
