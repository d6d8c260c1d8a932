package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest/api/middleware"
	"speedtest/internal/service"
)

// GetResults 获取全部测速结果，最新的在前
func GetResults(resultService service.ResultService, verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := resultService.List(c.Request.Context())
		if err != nil {
			log.WithError(err).WithField("request_id", c.GetString(middleware.RequestIDKey)).Error("Error fetching results")
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": failureMessage("Error fetching results", err, verbose),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"results": results,
		})
	}
}
