package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/supportbot/storebot-go/internal/metrics"
)

// Metrics 记录 HTTP 请求数
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			// 未匹配路由不按原始路径打点，避免标签爆炸
			path = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
