package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"speedtest/config"
	"speedtest/internal/eventbus"
	"speedtest/internal/model"
	"speedtest/internal/repository"
)

// sequenceIDs 递增ID生成器
type sequenceIDs struct {
	mu   sync.Mutex
	next int64
}

func (s *sequenceIDs) Generate() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return snowflake.ID(s.next)
}

// failingRepository 所有操作都失败的仓库
type failingRepository struct {
	repository.ResultRepository
}

var errBackend = errors.New("disk full")

func (failingRepository) Create(context.Context, *model.Result) error { return errBackend }
func (failingRepository) FindAll(context.Context) ([]*model.Result, error) {
	return nil, errBackend
}
func (failingRepository) DeleteAll(context.Context) (int64, error) { return 0, errBackend }
func (failingRepository) Count(context.Context) (int64, error)     { return 0, errBackend }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

func newTestService(t *testing.T, opts ...ResultServiceOption) (ResultService, repository.ResultRepository) {
	t.Helper()
	repo, err := repository.NewFileResultRepository(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	opts = append([]ResultServiceOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewResultService(repo, &sequenceIDs{}, opts...), repo
}

func submission(ref, download, upload, ping string) *model.ResultSubmission {
	return &model.ResultSubmission{
		RefNumber: model.Flex(ref),
		Download:  model.Flex(download),
		Upload:    model.Flex(upload),
		Ping:      model.Flex(ping),
	}
}

func TestSubmit_NormalizesStringNumbers(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Submit(context.Background(), submission("abc", "55.5", "10.2", "20"), "192.0.2.1")
	require.NoError(t, err)

	assert.Equal(t, snowflake.ID(1), result.ID)
	assert.Equal(t, "abc", result.RefNumber)
	assert.Equal(t, 55.5, result.Download)
	assert.Equal(t, 10.2, result.Upload)
	assert.Equal(t, 20, result.Ping)
	assert.Equal(t, model.DefaultTestType, result.TestType)
	assert.Equal(t, "192.0.2.1", result.IP)
	assert.Equal(t, fixedNow.Truncate(time.Millisecond), result.Timestamp)
}

func TestSubmit_TestType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub := submission("abc", "1", "1", "1")
	sub.TestType = model.Flex("manual")
	result, err := svc.Submit(ctx, sub, "")
	require.NoError(t, err)
	assert.Equal(t, "manual", result.TestType)

	sub.TestType = model.Flex("  ")
	result, err = svc.Submit(ctx, sub, "")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTestType, result.TestType)
}

func TestSubmit_ValidationRejectsAndPersistsNothing(t *testing.T) {
	cases := map[string]*model.ResultSubmission{
		"空refNumber":  submission("", "50", "10", "5"),
		"缺少download":   {RefNumber: model.Flex("a"), Upload: model.Flex("1"), Ping: model.Flex("1")},
		"缺少upload":     {RefNumber: model.Flex("a"), Download: model.Flex("1"), Ping: model.Flex("1")},
		"缺少ping":       {RefNumber: model.Flex("a"), Download: model.Flex("1"), Upload: model.Flex("1")},
		"download非法":   submission("a", "x", "1", "1"),
		"ping负数":       submission("a", "1", "1", "-3"),
		"nil submission": nil,
	}

	for name, sub := range cases {
		t.Run(name, func(t *testing.T) {
			svc, repo := newTestService(t)
			ctx := context.Background()

			result, err := svc.Submit(ctx, sub, "")
			assert.Nil(t, result)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			count, err := repo.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, count, "校验失败不应写入数据")
		})
	}
}

func TestSubmit_ValidationErrorMessage(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), submission("", "50", "10", "5"), "")
	assert.EqualError(t, err, "Missing required fields: refNumber")

	_, err = svc.Submit(context.Background(), submission("a", "fast", "10", "5"), "")
	assert.EqualError(t, err, "Invalid download value")
}

func TestSubmit_StorageError(t *testing.T) {
	svc := NewResultService(failingRepository{}, &sequenceIDs{})

	_, err := svc.Submit(context.Background(), submission("abc", "1", "1", "1"), "")
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, errBackend)
	assert.False(t, IsValidationError(err))

	_, err = svc.List(context.Background())
	assert.ErrorAs(t, err, &se)

	_, err = svc.Clear(context.Background())
	assert.ErrorAs(t, err, &se)
}

func TestList_OrderedNewestFirst(t *testing.T) {
	now := fixedNow
	clock := func() time.Time { return now }
	svc, _ := newTestService(t, WithClock(clock))
	ctx := context.Background()

	first, err := svc.Submit(ctx, submission("first", "1", "1", "1"), "")
	require.NoError(t, err)
	// 同一毫秒内的第二次提交
	second, err := svc.Submit(ctx, submission("second", "1", "1", "1"), "")
	require.NoError(t, err)
	now = now.Add(time.Second)
	third, err := svc.Submit(ctx, submission("third", "1", "1", "1"), "")
	require.NoError(t, err)

	results, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []snowflake.ID{third.ID, second.ID, first.ID},
		[]snowflake.ID{results[0].ID, results[1].ID, results[2].ID})
}

func TestClear_IsTotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	deleted, err := svc.Clear(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	for i := 0; i < 5; i++ {
		_, err := svc.Submit(ctx, submission("abc", "1", "1", "1"), "")
		require.NoError(t, err)
	}
	deleted, err = svc.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	results, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSubmit_ConcurrentSameRefNumber(t *testing.T) {
	repo, err := repository.NewResultRepository(config.Database{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "results.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewResultService(repo, node)
	ctx := context.Background()

	const submitters = 16
	var eg errgroup.Group
	for i := 0; i < submitters; i++ {
		eg.Go(func() error {
			_, err := svc.Submit(ctx, submission("same-ref", "55.5", "10.2", "20"), "")
			return err
		})
	}
	require.NoError(t, eg.Wait())

	results, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, results, submitters)

	ids := make(map[snowflake.ID]bool)
	for i, r := range results {
		assert.Equal(t, "same-ref", r.RefNumber)
		assert.NotZero(t, r.ID)
		assert.False(t, r.Timestamp.IsZero())
		ids[r.ID] = true
		if i > 0 {
			assert.True(t, results[i-1].Newer(r), "列表应按时间和ID倒序")
		}
	}
	assert.Len(t, ids, submitters, "每条记录的ID应唯一")
}

type capturingHandler struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (h *capturingHandler) HandleEvent(event eventbus.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func TestResultService_PublishesEvents(t *testing.T) {
	bus := eventbus.NewEventBus()
	handler := &capturingHandler{}
	require.NoError(t, bus.Subscribe(handler))
	svc, _ := newTestService(t, WithEventBus(bus))
	ctx := context.Background()

	_, err := svc.Submit(ctx, submission("abc", "1", "1", "1"), "")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, submission("", "1", "1", "1"), "")
	require.Error(t, err)
	_, err = svc.Clear(ctx)
	require.NoError(t, err)
	bus.Wait()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.events, 2)
	types := []string{handler.events[0].GetType(), handler.events[1].GetType()}
	assert.ElementsMatch(t, []string{eventbus.EventResultCreated, eventbus.EventResultsCleared}, types)
}

func TestNewServices(t *testing.T) {
	repo, err := repository.NewFileResultRepository(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)

	cfg := &config.Config{NodeID: 3, Probe: config.Probe{DownloadSize: 2048}}
	services, err := NewServices(cfg, repo, nil)
	require.NoError(t, err)
	assert.Equal(t, 2048, services.Payload.Size())
	assert.NotNil(t, services.EventBus)

	cfg.NodeID = 5000
	_, err = NewServices(cfg, repo, nil)
	assert.Error(t, err, "节点ID超出范围")
}
