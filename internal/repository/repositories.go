package repository

import (
	"fmt"

	"speedtest/config"
)

// NewResultRepository 根据数据库配置创建测速结果仓库
//
// driver 为 file 时 DSN 是JSON数据文件路径，sqlite/postgres 使用GORM。
func NewResultRepository(dbConfig config.Database) (ResultRepository, error) {
	switch dbConfig.Driver {
	case "file":
		return NewFileResultRepository(dbConfig.DSN)
	case "sqlite", "postgres":
		db, err := InitDB(dbConfig)
		if err != nil {
			return nil, err
		}
		return NewGormResultRepository(db, dbConfig.Driver == "sqlite"), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dbConfig.Driver)
	}
}
