package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const chargePath = "/v1/charges"

// HTTPClient 刷卡终端 HTTP 网关
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chargeBody struct {
	Amount        int64  `json:"amount"`
	Token         string `json:"token"`
	Description   string `json:"description,omitempty"`
	AttemptNumber int    `json:"attempt_number"`
	MerchantID    string `json:"merchant_id,omitempty"`
}

func (c *HTTPClient) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if req.Credentials.AuthToken == "" {
		return nil, ErrMissingCredentials
	}

	payload, err := json.Marshal(chargeBody{
		Amount:        req.Amount,
		Token:         req.Token,
		Description:   req.Description,
		AttemptNumber: req.AttemptNumber,
		MerchantID:    req.Credentials.MerchantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chargePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Credentials.MerchantID != "" {
		httpReq.Header.Set("X-Merchant-ID", req.Credentials.MerchantID)
	}
	if req.Reference != "" {
		httpReq.Header.Set("Idempotency-Key", req.Reference)
	}

	// 每个租户的令牌不同，按请求包一层 bearer transport
	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, c.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: req.Credentials.AuthToken, TokenType: "Bearer"}),
	)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read charge response: %w", err)
	}

	return normalize(resp.StatusCode, body)
}
