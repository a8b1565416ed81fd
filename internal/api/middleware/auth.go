package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/pos_billing_server/internal/pkg/jwt"
	"github.com/qs3c/pos_billing_server/internal/pkg/response"
)

const (
	TenantIDKey = "tenantID"
	RoleKey     = "role"
)

// Auth JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Abort(c, response.CodeAuthFailed, "请提供认证信息")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.Abort(c, response.CodeAuthFailed, "认证格式错误")
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.Abort(c, response.CodeAuthFailed, "认证失败或已过期")
			return
		}

		// 非 admin 令牌必须绑定租户
		if claims.TenantID == "" && !claims.IsAdmin() {
			response.Abort(c, response.CodeAuthFailed, "令牌未绑定租户")
			return
		}

		c.Set(TenantIDKey, claims.TenantID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// GetTenantID 从上下文获取租户 ID
func GetTenantID(c *gin.Context) (string, bool) {
	tenantID, exists := c.Get(TenantIDKey)
	if !exists {
		return "", false
	}
	id, ok := tenantID.(string)
	return id, ok
}

// IsAdmin 当前请求是否为 admin 令牌
func IsAdmin(c *gin.Context) bool {
	return c.GetString(RoleKey) == jwt.RoleAdmin
}
