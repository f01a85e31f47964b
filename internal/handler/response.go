package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/supportbot/storebot-go/internal/service"
)

// statusOf 错误类型到 HTTP 状态码
func statusOf(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError 统一错误响应
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	c.JSON(statusOf(kind), gin.H{
		"success": false,
		"error":   service.ReasonOf(err),
		"kind":    kind,
	})
}

var errInvalidLimit = errors.New("limit 必须为非负整数")
