package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest/internal/metrics"
	"speedtest/internal/probe"
)

// UploadTest 读取并丢弃请求体，返回收到的字节数
func UploadTest(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		received, err := probe.Drain(c.Request.Body)
		if err != nil {
			// 传输层错误，直接断开连接
			log.WithError(err).WithField("received", received).Debug("upload test aborted")
			m.AddProbeBytes(metrics.DirectionUpload, received)
			panic(http.ErrAbortHandler)
		}

		m.AddProbeBytes(metrics.DirectionUpload, received)
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"received": received,
		})
	}
}

// DownloadTest 返回固定大小的数据块，禁止任何缓存
func DownloadTest(payload *probe.Payload, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate, max-age=0")
		header.Set("Pragma", "no-cache")
		header.Set("Expires", "0")
		header.Set("Surrogate-Control", "no-store")
		header.Set("Content-Length", strconv.Itoa(payload.Size()))

		c.Data(http.StatusOK, "application/octet-stream", payload.Bytes())
		m.AddProbeBytes(metrics.DirectionDownload, int64(payload.Size()))
	}
}
