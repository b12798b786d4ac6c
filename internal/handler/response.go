package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/greenchain/ccrs/internal/identity"
	"github.com/greenchain/ccrs/internal/registry"
	"github.com/greenchain/ccrs/internal/workflow"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// FailureResponse 按错误类型映射HTTP状态码返回错误响应
func FailureResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrProjectNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrForbidden):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, registry.ErrAlreadyInFlight),
		errors.Is(err, registry.ErrVersionConflict):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrEmailTaken):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case registry.IsPrecondition(err):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case registry.IsStateTransition(err):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case registry.IsLedgerRejected(err):
		ErrorResponse(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, registry.ErrIndeterminate):
		// 结果待对账收敛，请求已被接收
		ErrorResponse(c, http.StatusAccepted, err.Error())
	default:
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
