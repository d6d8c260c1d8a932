package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest/api/middleware"
	"speedtest/internal/metrics"
	"speedtest/internal/model"
	"speedtest/internal/service"
)

// SubmitResult 保存客户端提交的测速结果
func SubmitResult(resultService service.ResultService, m *metrics.Metrics, verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.ResultSubmission

		// 空请求体按缺少字段处理
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			m.ObserveRejected("body")
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": failureMessage("Invalid request body", err, verbose),
			})
			return
		}

		result, err := resultService.Submit(c.Request.Context(), &req, c.ClientIP())
		if err != nil {
			var validationErr *service.ValidationError
			if errors.As(err, &validationErr) {
				m.ObserveRejected(validationErr.Field)
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"message": validationErr.Error(),
				})
				return
			}

			log.WithError(err).WithFields(log.Fields{
				"ref_number": req.RefNumber.Raw,
				"request_id": c.GetString(middleware.RequestIDKey),
			}).Error("Error saving test result")
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": failureMessage("Error saving test result", err, verbose),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Test result saved successfully",
			"result":  result,
		})
	}
}
