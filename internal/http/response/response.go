package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构；HTTP 状态恒为 200，业务结果看 status_code
type Response struct {
	StatusCode int         `json:"status_code"`
	Msg        string      `json:"msg"`
	Data       interface{} `json:"data"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	Response
	Pagination Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"total_page"`
}

// ErrorDetail 业务拒绝时附带的结构化信息（库存不足、谱系成环等）
type ErrorDetail struct {
	RequestID string      `json:"request_id,omitempty"`
	Reason    interface{} `json:"reason,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{StatusCode: CodeOK, Msg: "success", Data: data})
}

// SuccessWithPage 分页成功响应
func SuccessWithPage(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, PageResponse{
		Response:   Response{StatusCode: CodeOK, Msg: "success", Data: data},
		Pagination: pagination,
	})
}

// Error 错误响应
func Error(c *gin.Context, statusCode int, msg string) {
	c.JSON(http.StatusOK, Response{
		StatusCode: statusCode,
		Msg:        msg,
		Data:       buildDetail(c, nil),
	})
}

// Reject 业务规则拒绝，reason 原样放入 data.reason
func Reject(c *gin.Context, statusCode int, msg string, reason interface{}) {
	c.JSON(http.StatusOK, Response{
		StatusCode: statusCode,
		Msg:        msg,
		Data:       buildDetail(c, reason),
	})
}

func Unauthorized(c *gin.Context, msg string) {
	Error(c, CodeUnauthorized, msg)
}

func Forbidden(c *gin.Context, msg string) {
	Error(c, CodeForbidden, msg)
}

func buildDetail(c *gin.Context, reason interface{}) interface{} {
	detail := ErrorDetail{Reason: reason}
	if c != nil {
		detail.RequestID = c.GetString("request_id")
	}
	if detail.RequestID == "" && reason == nil {
		return nil
	}
	return detail
}
