package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultDeclineReason = "Payment declined"

// normalize 把终端返回的各种格式统一成 ChargeResult。
// 支持平铺或包在 data 里的响应，字段名兼容 snake_case 与 camelCase。
func normalize(statusCode int, body []byte) (*ChargeResult, error) {
	raw := string(body)

	if statusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("gateway returned HTTP %d", statusCode)
	}

	fields := map[string]interface{}{}
	if len(strings.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			if statusCode >= http.StatusBadRequest {
				return &ChargeResult{Error: fmt.Sprintf("gateway returned HTTP %d", statusCode), RawResponse: raw}, nil
			}
			return nil, fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	if data, ok := fields["data"].(map[string]interface{}); ok {
		for k, v := range data {
			fields[k] = v
		}
	}

	result := &ChargeResult{
		TransactionID: pick(fields, "transaction_id", "transactionId"),
		AuthCode:      pick(fields, "auth_code", "authCode"),
		RawResponse:   raw,
	}

	if statusCode >= http.StatusBadRequest {
		result.Error = pick(fields, "error", "message", "decline_reason", "declineReason")
		if result.Error == "" {
			result.Error = fmt.Sprintf("gateway returned HTTP %d", statusCode)
		}
		return result, nil
	}

	switch strings.ToLower(pick(fields, "status")) {
	case "approved", "success":
		result.Success = true
	case "declined", "error":
		result.Success = false
	default:
		ok, isBool := fields["success"].(bool)
		result.Success = isBool && ok
	}

	if !result.Success {
		result.Error = pick(fields, "error", "message", "decline_reason", "declineReason")
		if result.Error == "" {
			result.Error = defaultDeclineReason
		}
	}

	return result, nil
}

func pick(fields map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]interface{}:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
