package repository

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"speedtest/internal/model"
)

// SchemaMigration 已执行的迁移版本
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

type migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

// resultV1 第一版表结构，没有 test_type 列
type resultV1 struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	RefNumber string       `gorm:"not null;index"`
	Download  float64      `gorm:"not null"`
	Upload    float64      `gorm:"not null"`
	Ping      int          `gorm:"not null"`
	IP        string
	Timestamp time.Time `gorm:"not null"`
}

func (resultV1) TableName() string {
	return "measurement_results"
}

// migrations 按版本号递增排列，已发布的条目不可修改
var migrations = []migration{
	{
		Version: 1,
		Name:    "create_measurement_results",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasTable(&resultV1{}) {
				return nil
			}
			return tx.Migrator().CreateTable(&resultV1{})
		},
	},
	{
		Version: 2,
		Name:    "add_test_type",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasColumn(&model.Result{}, "TestType") {
				return nil
			}
			return tx.Migrator().AddColumn(&model.Result{}, "TestType")
		},
	},
	{
		Version: 3,
		Name:    "add_results_order_index",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&model.Result{}, "idx_measurement_results_order") {
				return nil
			}
			return tx.Migrator().CreateIndex(&model.Result{}, "idx_measurement_results_order")
		},
	},
}

// Migrate 执行尚未应用的迁移，每个版本在独立事务中执行
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []SchemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("apply migration %d_%s: %w", m.Version, m.Name, err)
		}
		log.WithFields(log.Fields{"version": m.Version, "name": m.Name}).Info("migration applied")
	}
	return nil
}
