// Package response 提供统一的 HTTP 响应封装
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 标准响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success 返回成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

// Error 返回业务错误响应（HTTP 200，业务码非 0）
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithStatus 返回指定 HTTP 状态码的错误响应
func ErrorWithStatus(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{
		Code:    status,
		Message: message,
		Data:    data,
	})
}
