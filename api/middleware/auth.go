package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest/internal/service"
)

// AdminAuth 管理员认证中间件，使用 HTTP Basic 凭据
func AdminAuth(authenticator service.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if ok && authenticator.Authenticate(username, password) {
			c.Next()
			return
		}

		log.WithFields(log.Fields{
			"client_ip": c.ClientIP(),
			"path":      c.FullPath(),
		}).Info("admin request unauthorized")
		c.Header("WWW-Authenticate", `Basic realm="admin"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Unauthorized",
		})
	}
}
