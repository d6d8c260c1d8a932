package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"speedtest/internal/model"
)

// FileResultRepository 基于JSON文件的测速结果仓库
//
// 内存中的快照是权威数据；每次写操作在写锁内生成新快照，
// 先落盘（临时文件+重命名）再替换内存快照，失败时内存与文件都保持原状。
type FileResultRepository struct {
	path    string
	mu      sync.RWMutex
	results []*model.Result // 按写入顺序
}

// NewFileResultRepository 打开数据文件，文件不存在时创建空文件
func NewFileResultRepository(path string) (*FileResultRepository, error) {
	if path == "" {
		return nil, errors.New("data file path is empty")
	}
	r := &FileResultRepository{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := r.writeFile(nil); err != nil {
			return nil, err
		}
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("read data file: %w", err)
	}

	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &r.results); err != nil {
			return nil, fmt.Errorf("parse data file %s: %w", path, err)
		}
	}
	// 旧数据没有 testType 字段
	for _, result := range r.results {
		if result.TestType == "" {
			result.TestType = model.DefaultTestType
		}
	}
	return r, nil
}

// Create 追加一条测速结果
func (r *FileResultRepository) Create(_ context.Context, result *model.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *result
	next := make([]*model.Result, 0, len(r.results)+1)
	next = append(next, r.results...)
	next = append(next, &stored)

	if err := r.writeFile(next); err != nil {
		return err
	}
	r.results = next
	return nil
}

// FindAll 返回全部测速结果的副本，按时间倒序、ID倒序
func (r *FileResultRepository) FindAll(_ context.Context) ([]*model.Result, error) {
	r.mu.RLock()
	results := make([]*model.Result, 0, len(r.results))
	for _, result := range r.results {
		copied := *result
		results = append(results, &copied)
	}
	r.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Newer(results[j])
	})
	return results, nil
}

// DeleteAll 清空数据文件
func (r *FileResultRepository) DeleteAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writeFile(nil); err != nil {
		return 0, err
	}
	deleted := int64(len(r.results))
	r.results = nil
	return deleted, nil
}

// Count 统计测速结果数量
func (r *FileResultRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.results)), nil
}

func (r *FileResultRepository) Close() error {
	return nil
}

// writeFile 原子地替换数据文件
func (r *FileResultRepository) writeFile(results []*model.Result) error {
	if results == nil {
		results = []*model.Result{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// 重命名成功后文件已不存在，删除失败可忽略
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}
