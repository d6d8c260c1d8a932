package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest/api/handler"
	"speedtest/api/middleware"
	"speedtest/config"
	"speedtest/internal/metrics"
	"speedtest/internal/scheduler"
	"speedtest/internal/service"
)

// SetupRouter 设置API路由
func SetupRouter(cfg *config.Config, services *service.Services, m *metrics.Metrics, sched *scheduler.Scheduler) *gin.Engine {
	verbose := !cfg.Server.IsRelease()

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.WithError(err).Warn("invalid trusted proxies, forwarded headers ignored")
		_ = router.SetTrustedProxies(nil)
	}

	// 添加中间件
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.Cors())
	router.Use(m.Middleware())

	router.GET("/healthz", handler.Health())
	if cfg.Metrics.Enabled && m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	apiGroup := router.Group("/api")
	{
		// 测速探针
		apiGroup.POST("/upload-test", handler.UploadTest(m))
		apiGroup.GET("/download-test", handler.DownloadTest(services.Payload, m))

		// 提交测速结果
		apiGroup.POST("/test-result", handler.SubmitResult(services.ResultService, m, verbose))

		apiGroup.POST("/admin/login", handler.AdminLogin(services.Authenticator))
	}

	adminGroup := apiGroup.Group("/admin")
	if cfg.Admin.ProtectResults {
		adminGroup.Use(middleware.AdminAuth(services.Authenticator))
	}
	{
		adminGroup.GET("/results", handler.GetResults(services.ResultService, verbose))
		adminGroup.DELETE("/results", handler.ClearResults(services.ResultService, verbose))

		// 调度器状态
		if sched != nil {
			adminGroup.GET("/scheduler_status", func(c *gin.Context) {
				c.JSON(http.StatusOK, sched.GetStatus())
			})
		}
	}

	router.NoRoute(staticFallback(cfg.Server.StaticDir))
	return router
}

// staticFallback 未匹配的路由交给静态文件目录，/api 下返回JSON
func staticFallback(dir string) gin.HandlerFunc {
	var files http.Handler
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		files = http.FileServer(http.Dir(dir))
	} else if dir != "" {
		log.WithField("static_dir", dir).Warn("static directory not found, frontend disabled")
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if files == nil || path == "/api" || strings.HasPrefix(path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Not Found",
			})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	}
}
