package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pos_billing_server/internal/pkg/jwt"
	"github.com/qs3c/pos_billing_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func authRouter(handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", handler)
	return router
}

func doRequest(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuth_Success(t *testing.T) {
	router := authRouter(func(c *gin.Context) {
		tenantID, ok := GetTenantID(c)
		assert.True(t, ok)
		assert.Equal(t, "tenant-1", tenantID)
		assert.False(t, IsAdmin(c))
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID})
	})

	token, err := jwt.GenerateToken("tenant-1", jwt.RoleOperator, testJWTSecret, 24)
	require.NoError(t, err)

	w := doRequest(router, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Admin(t *testing.T) {
	router := authRouter(func(c *gin.Context) {
		tenantID, _ := GetTenantID(c)
		assert.Empty(t, tenantID)
		assert.True(t, IsAdmin(c))
		c.Status(http.StatusOK)
	})

	token, err := jwt.GenerateToken("", jwt.RoleAdmin, testJWTSecret, 24)
	require.NoError(t, err)

	w := doRequest(router, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Rejected(t *testing.T) {
	noTenant, err := jwt.GenerateToken("", jwt.RoleOperator, testJWTSecret, 24)
	require.NoError(t, err)
	wrongSecret, err := jwt.GenerateToken("tenant-1", jwt.RoleOperator, "another-secret", 24)
	require.NoError(t, err)

	expiredClaims := jwt.Claims{
		TenantID: "tenant-1",
		Role:     jwt.RoleOperator,
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	expired, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, expiredClaims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "请提供认证信息"},
		{"no bearer prefix", noTenant, "认证格式错误"},
		{"garbage token", "Bearer not-a-jwt", "认证失败或已过期"},
		{"wrong secret", "Bearer " + wrongSecret, "认证失败或已过期"},
		{"expired", "Bearer " + expired, "认证失败或已过期"},
		{"operator without tenant", "Bearer " + noTenant, "令牌未绑定租户"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			router := authRouter(func(c *gin.Context) {
				called = true
				c.Status(http.StatusOK)
			})

			w := doRequest(router, tt.header)
			resp := parseResponse(t, w)

			assert.False(t, called)
			assert.Equal(t, response.CodeAuthFailed, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestGetTenantID_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetTenantID(c)
	assert.False(t, ok)
	assert.False(t, IsAdmin(c))
}

func TestGetTenantID_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(TenantIDKey, 42)

	_, ok := GetTenantID(c)
	assert.False(t, ok)
}
