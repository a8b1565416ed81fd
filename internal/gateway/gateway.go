package gateway

import (
	"context"
	"errors"
)

var ErrMissingCredentials = errors.New("gateway auth token not configured")

// Credentials 租户维度的终端凭证
type Credentials struct {
	AuthToken  string
	MerchantID string
}

// ChargeRequest 对已存储令牌发起的一次扣款
type ChargeRequest struct {
	Amount        int64 // 最小货币单位
	Token         string
	Credentials   Credentials
	Description   string
	AttemptNumber int
	Reference     string // 幂等键，同一次尝试重发时保持不变
}

// ChargeResult 归一化后的扣款结果，RawResponse 只用于审计
type ChargeResult struct {
	Success       bool
	TransactionID string
	AuthCode      string
	Error         string
	RawResponse   string
}

// Gateway 支付网关。返回 error 表示网络或服务端故障，拒付通过 Success=false 表示。
type Gateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
}
