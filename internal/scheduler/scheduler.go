package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"speedtest/internal/metrics"
	"speedtest/internal/service"
)

const refreshJobName = "refresh_stored_results"

// Scheduler 定时任务调度器，只执行只读任务
type Scheduler struct {
	cron          *cron.Cron
	jobMutex      sync.Mutex
	isRunning     bool
	resultService service.ResultService
	metrics       *metrics.Metrics
	jobIDs        map[string]cron.EntryID
	lastRun       time.Time
}

// NewScheduler 创建调度器
func NewScheduler(resultService service.ResultService, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		resultService: resultService,
		metrics:       m,
		jobIDs:        make(map[string]cron.EntryID),
	}
}

// Start 启动调度器，立即执行一次刷新
func (s *Scheduler) Start(schedule string) error {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	// 如果已经在运行，先停止
	if s.isRunning {
		s.cron.Stop()
	}

	cronLogger := cron.PrintfLogger(log.StandardLogger())
	s.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	s.jobIDs = make(map[string]cron.EntryID)

	entryID, err := s.cron.AddFunc(schedule, s.RefreshStoredResults)
	if err != nil {
		return err
	}
	s.jobIDs[refreshJobName] = entryID
	log.WithFields(log.Fields{"job": refreshJobName, "schedule": schedule}).Info("added job")

	s.cron.Start()
	s.isRunning = true

	go s.RefreshStoredResults()
	return nil
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	if !s.isRunning {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.isRunning = false
	log.Info("Scheduler stopped")
	return s.cron.Stop()
}

// RefreshStoredResults 从存储读取结果数量并更新指标
func (s *Scheduler) RefreshStoredResults() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.metrics.RefreshStored(ctx, s.resultService); err != nil {
		log.WithError(err).Warn("refresh stored results failed")
		return
	}

	s.jobMutex.Lock()
	s.lastRun = time.Now()
	s.jobMutex.Unlock()
}

// GetStatus 获取调度器状态
func (s *Scheduler) GetStatus() map[string]interface{} {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	jobs := make(map[string]interface{}, len(s.jobIDs))
	for name, id := range s.jobIDs {
		entry := s.cron.Entry(id)
		jobs[name] = map[string]interface{}{
			"next": entry.Next,
			"prev": entry.Prev,
		}
	}
	return map[string]interface{}{
		"running":  s.isRunning,
		"last_run": s.lastRun,
		"jobs":     jobs,
	}
}
