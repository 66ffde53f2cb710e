package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code   int         `json:"code"`             // 业务状态码
	Msg    string      `json:"msg"`              // 日文提示信息
	Data   interface{} `json:"data,omitempty"`   // 数据载荷
	Reason string      `json:"reason,omitempty"` // 机器可读的错误原因
}

// 业务状态码定义
const (
	CodeSuccess   = 200
	CodeCreated   = 201
	CodeNoContent = 204
)

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  "成功しました",
		Data: data,
	})
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	})
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	CreatedWithMsg(c, "作成しました", data)
}

// CreatedWithMsg 创建成功响应（自定义消息）
func CreatedWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code: CodeCreated,
		Msg:  msg,
		Data: data,
	})
}

// NoContent 无内容响应（204），用于删除成功
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail 错误响应
func Fail(c *gin.Context, status int, reason, msg string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{
		Code:   status,
		Msg:    msg,
		Data:   data,
		Reason: reason,
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, ReasonValidation, msg, nil)
}
