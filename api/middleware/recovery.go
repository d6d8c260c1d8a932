package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recovery 恢复中间件
//
// http.ErrAbortHandler 继续向上抛出，由 net/http 直接断开连接。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				// 打印错误堆栈信息
				log.WithFields(log.Fields{
					"panic":      err,
					"request_id": c.GetString(RequestIDKey),
					"stack":      string(debug.Stack()),
				}).Error("panic recovered")

				// 返回500响应
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": "Internal Server Error",
				})
			}
		}()

		c.Next()
	}
}
