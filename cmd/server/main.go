package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"speedtest/api"
	"speedtest/config"
	"speedtest/internal/eventbus"
	"speedtest/internal/metrics"
	"speedtest/internal/repository"
	"speedtest/internal/scheduler"
	"speedtest/internal/service"
	"speedtest/internal/util"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}

func run() error {
	// 1. 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.Log.Level).Warn("unknown log level, using info")
	}
	if cfg.Server.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 2. 初始化存储
	results, err := repository.NewResultRepository(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := results.Close(); err != nil {
			log.WithError(err).Warn("close result storage")
		}
	}()
	log.WithField("driver", cfg.Database.Driver).Info("result storage ready")

	// 3. 初始化事件总线和指标
	bus := eventbus.NewEventBus()
	_ = bus.Subscribe(&eventbus.LoggingEventHandler{})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		_ = bus.Subscribe(eventbus.NewFilteredEventHandler(m, eventbus.EventResultCreated, eventbus.EventResultsCleared))
	}
	if len(cfg.Webhooks) > 0 {
		_ = bus.Subscribe(util.NewWebhookEventHandler(util.NewWebhookClient(), cfg.Webhooks))
		log.WithField("webhooks", len(cfg.Webhooks)).Info("result notifications enabled")
	}

	// 4. 初始化服务
	services, err := service.NewServices(cfg, results, bus)
	if err != nil {
		return err
	}
	m.TrackStored(services.ResultService)

	// 5. 初始化调度器
	var sched *scheduler.Scheduler
	if m != nil {
		sched = scheduler.NewScheduler(services.ResultService, m)
		if err := sched.Start(cfg.Metrics.RefreshSchedule); err != nil {
			return err
		}
		defer func() { <-sched.Stop().Done() }()
	}

	// 6. 启动HTTP服务器
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.SetupRouter(cfg, services, m, sched),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting server on %s", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	bus.Wait()
	return err
}
