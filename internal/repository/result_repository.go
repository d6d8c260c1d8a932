package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"speedtest/internal/model"
)

// ResultRepository 测速结果仓库接口
type ResultRepository interface {
	// Create 写入一条结果，要么完整可见，要么不可见
	Create(ctx context.Context, result *model.Result) error
	// FindAll 按时间倒序、ID倒序返回全部结果
	FindAll(ctx context.Context) ([]*model.Result, error)
	// DeleteAll 原子地删除全部结果，返回删除的条数
	DeleteAll(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// listOrder 列表排序：时间倒序，时间相同按ID倒序
var listOrder = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Name: "timestamp"}, Desc: true},
	{Column: clause.Column{Name: "id"}, Desc: true},
}}

// GormResultRepository 基于GORM的测速结果仓库实现
type GormResultRepository struct {
	db      *gorm.DB
	writeMu *sync.Mutex // 非空时串行化写操作，用于 sqlite
}

// NewGormResultRepository 创建测速结果仓库
func NewGormResultRepository(db *gorm.DB, serializeWrites bool) *GormResultRepository {
	r := &GormResultRepository{db: db}
	if serializeWrites {
		r.writeMu = &sync.Mutex{}
	}
	return r
}

// safeWrite 在写锁保护下执行数据库操作
func (r *GormResultRepository) safeWrite(operation func() error) error {
	if r.writeMu != nil {
		r.writeMu.Lock()
		defer r.writeMu.Unlock()
	}
	return operation()
}

// Create 创建测速结果
func (r *GormResultRepository) Create(ctx context.Context, result *model.Result) error {
	return r.safeWrite(func() error {
		return r.db.WithContext(ctx).Create(result).Error
	})
}

// FindAll 查询全部测速结果
func (r *GormResultRepository) FindAll(ctx context.Context) ([]*model.Result, error) {
	results := make([]*model.Result, 0)
	if err := r.db.WithContext(ctx).Order(listOrder).Find(&results).Error; err != nil {
		return nil, err
	}
	for _, result := range results {
		result.Timestamp = result.Timestamp.UTC()
	}
	return results, nil
}

// DeleteAll 在一个事务中删除全部测速结果
func (r *GormResultRepository) DeleteAll(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.safeWrite(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Result{})
			if res.Error != nil {
				return res.Error
			}
			deleted = res.RowsAffected
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Count 统计测速结果数量
func (r *GormResultRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Result{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Close 关闭底层数据库连接
func (r *GormResultRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
