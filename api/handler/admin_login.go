package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest/internal/service"
)

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLogin 校验管理员凭据，不创建会话
func AdminLogin(authenticator service.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdminLoginRequest
		if err := c.ShouldBindJSON(&req); err == nil && authenticator.Authenticate(req.Username, req.Password) {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"message": "Login successful",
			})
			return
		}

		log.WithFields(log.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		}).Info("admin login failed")
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Invalid credentials",
		})
	}
}
