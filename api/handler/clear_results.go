package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest/api/middleware"
	"speedtest/internal/service"
)

// ClearResults 删除全部测速结果
func ClearResults(resultService service.ResultService, verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := resultService.Clear(c.Request.Context())
		if err != nil {
			log.WithError(err).WithField("request_id", c.GetString(middleware.RequestIDKey)).Error("Error clearing data")
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": failureMessage("Error clearing data", err, verbose),
			})
			return
		}

		log.WithFields(log.Fields{
			"deleted":   deleted,
			"client_ip": c.ClientIP(),
		}).Warn("all results cleared")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "All data cleared successfully",
		})
	}
}
