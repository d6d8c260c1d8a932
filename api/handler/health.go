package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health 存活检查
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
