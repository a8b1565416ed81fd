package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeStateConflict    = 1004
	CodeServerError      = 5000
)

// 分页参数
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "参数错误",
	CodeAuthFailed:       "认证失败",
	CodePermissionDenied: "权限不足",
	CodeResourceNotFound: "资源不存在",
	CodeStateConflict:    "状态冲突",
	CodeServerError:      "服务器内部错误",
}

// Response 统一响应结构。业务错误也返回 200，由 code 区分。
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
	Items    interface{} `json:"items"`
}

func build(code int, message string, data interface{}) Response {
	if message == "" {
		message = codeMessages[code]
	}
	return Response{Code: code, Message: message, Data: data}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, build(CodeSuccess, "", data))
}

// SuccessWithMessage 带自定义消息的成功响应，如 "扣款批次已入队"
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, build(CodeSuccess, message, data))
}

// SuccessPage 分页成功响应，pages 按 pageSize 向上取整
func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	c.JSON(http.StatusOK, build(CodeSuccess, "", PageData{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
		Items:    items,
	}))
}

// PageParams 读取 page / page_size，非法值回落到默认值
func PageParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(DefaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}

// Error 错误响应，message 为空时使用错误码的默认消息
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, build(code, message, nil))
}

// Abort 写错误响应并中断后续 handler，中间件用
func Abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(http.StatusOK, build(code, message, nil))
}

func ParamError(c *gin.Context, message string) { Error(c, CodeParamError, message) }

func AuthError(c *gin.Context, message string) { Error(c, CodeAuthFailed, message) }

func PermissionError(c *gin.Context, message string) { Error(c, CodePermissionDenied, message) }

// NotFoundError 订阅或租户不存在
func NotFoundError(c *gin.Context, message string) { Error(c, CodeResourceNotFound, message) }

// StateError 订阅当前状态不允许该操作，如恢复一个仍在扣款中的订阅
func StateError(c *gin.Context, message string) { Error(c, CodeStateConflict, message) }

func ServerError(c *gin.Context, message string) { Error(c, CodeServerError, message) }
