package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	log "github.com/sirupsen/logrus"

	"speedtest/internal/eventbus"
	"speedtest/internal/model"
	"speedtest/internal/repository"
	"speedtest/internal/util"
)

// ResultService 测速结果服务
type ResultService interface {
	// Submit 校验并保存一条测速结果，返回带有服务端ID和时间的完整记录
	Submit(ctx context.Context, submission *model.ResultSubmission, ip string) (*model.Result, error)
	// List 返回全部结果，时间倒序，时间相同按ID倒序
	List(ctx context.Context) ([]*model.Result, error)
	// Clear 删除全部结果，返回删除条数
	Clear(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// IDGenerator 结果ID生成器，*snowflake.Node 满足该接口
type IDGenerator interface {
	Generate() snowflake.ID
}

// ResultServiceOption 结果服务选项
type ResultServiceOption func(*DefaultResultService)

// WithClock 替换时间来源
func WithClock(now func() time.Time) ResultServiceOption {
	return func(s *DefaultResultService) {
		s.now = now
	}
}

// WithEventBus 设置事件总线
func WithEventBus(bus eventbus.EventBus) ResultServiceOption {
	return func(s *DefaultResultService) {
		s.events = bus
	}
}

type DefaultResultService struct {
	results repository.ResultRepository
	ids     IDGenerator
	now     func() time.Time
	events  eventbus.EventBus
}

func NewResultService(results repository.ResultRepository, ids IDGenerator, opts ...ResultServiceOption) ResultService {
	s := &DefaultResultService{
		results: results,
		ids:     ids,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DefaultResultService) Submit(ctx context.Context, submission *model.ResultSubmission, ip string) (*model.Result, error) {
	if submission == nil {
		submission = &model.ResultSubmission{}
	}

	// 1. 按顺序校验必填字段
	if ferr := util.ValidateFields(submission.Fields(), util.ResultSubmissionRules); ferr != nil {
		return nil, &ValidationError{Field: ferr.Key, Missing: ferr.Missing}
	}

	// 2. 规范化，校验通过后解析不会失败
	download, _ := util.ParseNonNegativeFloat(submission.Download.Raw)
	upload, _ := util.ParseNonNegativeFloat(submission.Upload.Raw)
	ping, _ := util.ParseNonNegativeInt(submission.Ping.Raw)

	testType := model.DefaultTestType
	if submission.TestType.Set && !submission.TestType.Composite {
		if t := strings.TrimSpace(submission.TestType.Raw); t != "" {
			testType = t
		}
	}

	// 3. 分配ID和时间
	result := &model.Result{
		ID:        s.ids.Generate(),
		RefNumber: strings.TrimSpace(submission.RefNumber.Raw),
		Download:  download,
		Upload:    upload,
		Ping:      ping,
		TestType:  testType,
		IP:        ip,
		Timestamp: s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.results.Create(ctx, result); err != nil {
		return nil, &StorageError{Op: "save test result", Err: err}
	}

	s.publish(eventbus.EventResultCreated, map[string]interface{}{
		"id":        result.ID.String(),
		"refNumber": result.RefNumber,
		"testType":  result.TestType,
		"download":  result.Download,
		"upload":    result.Upload,
		"ping":      result.Ping,
	})
	return result, nil
}

func (s *DefaultResultService) List(ctx context.Context) ([]*model.Result, error) {
	results, err := s.results.FindAll(ctx)
	if err != nil {
		return nil, &StorageError{Op: "fetch results", Err: err}
	}
	return results, nil
}

func (s *DefaultResultService) Clear(ctx context.Context) (int64, error) {
	deleted, err := s.results.DeleteAll(ctx)
	if err != nil {
		return 0, &StorageError{Op: "clear results", Err: err}
	}
	s.publish(eventbus.EventResultsCleared, map[string]interface{}{"deleted": deleted})
	return deleted, nil
}

func (s *DefaultResultService) Count(ctx context.Context) (int64, error) {
	total, err := s.results.Count(ctx)
	if err != nil {
		return 0, &StorageError{Op: "count results", Err: err}
	}
	return total, nil
}

func (s *DefaultResultService) publish(eventType string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(eventbus.NewBaseEvent(eventType, data)); err != nil {
		log.WithError(err).WithField("event", eventType).Warn("publish event failed")
	}
}
