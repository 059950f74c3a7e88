package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 0
	CodeParamError   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeServerError  = 500
)

// 业务错误码
const (
	CodeTenantNotFound     = 1001
	CodePaymentNotFound    = 1002
	CodePaymentNotPending  = 1003 // 状态错误：支付单不在待审核状态
	CodeDuplicateReading   = 1004 // 冲突：该账期已有水表读数
	CodeReceiptExists      = 1005 // 冲突：支付单已有收据
	CodeConcurrentConflict = 1006 // 冲突：并发修改，请重试
	CodeInvalidReading     = 1007 // 参数错误：水表读数不合法
	CodeRenderFailed       = 1008 // 依赖错误：收据文件生成失败，审核未生效，可重试
	CodeReceiptNotFound    = 1009
	CodeReadingNotFound    = 1010
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
