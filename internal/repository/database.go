package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"speedtest/config"
)

// sqlite 连接参数，每个连接都会生效
var sqlitePragmas = []string{
	"busy_timeout(5000)", // 避免"database is locked"错误
	"journal_mode(WAL)",  // 提高并发性能
	"synchronous(NORMAL)",
	"cache_size(-20000)", // 20MB
}

// InitDB 初始化数据库连接并执行迁移
func InitDB(dbConfig config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector

	// 根据配置选择数据库驱动
	switch dbConfig.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(dbConfig.DSN))
	case "postgres":
		dialector = postgres.Open(dbConfig.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dbConfig.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	log.WithField("driver", dbConfig.Driver).Info("数据库初始化成功")
	return db, nil
}

// sqliteDSN 为 DSN 追加 PRAGMA 参数，已显式设置的参数保持不变
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "speedtest.db"
	}
	var params []string
	for _, pragma := range sqlitePragmas {
		name := pragma[:strings.Index(pragma, "(")]
		if strings.Contains(dsn, "_pragma="+name) {
			continue
		}
		params = append(params, "_pragma="+pragma)
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
