package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Logger 日志中间件
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 开始时间
		start := time.Now()

		// 处理请求
		c.Next()

		statusCode := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"status":     statusCode,
			"latency":    time.Since(start),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"uri":        c.Request.RequestURI,
			"request_id": c.GetString(RequestIDKey),
		})

		switch {
		case statusCode >= 500:
			entry.Error("request failed")
		case statusCode >= 400:
			entry.Warn("request rejected")
		default:
			entry.Debug("request handled")
		}
	}
}
