package model

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultTestType 未指定测试类型时使用的默认值
const DefaultTestType = "automated"

// Result 测速结果记录，创建后不可修改
type Result struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false;index:idx_measurement_results_order,priority:2" json:"id"`
	RefNumber string       `gorm:"not null;index" json:"refNumber"`
	Download  float64      `gorm:"not null" json:"download"` // 下载速度(Mbps)
	Upload    float64      `gorm:"not null" json:"upload"`   // 上传速度(Mbps)
	Ping      int          `gorm:"not null" json:"ping"`     // 延迟(ms)
	TestType  string       `gorm:"not null;default:automated" json:"testType"`
	IP        string       `json:"ip,omitempty"`
	Timestamp time.Time    `gorm:"not null;index:idx_measurement_results_order,priority:1" json:"timestamp"`
}

func (Result) TableName() string {
	return "measurement_results"
}

// Newer 判断 r 在列表中是否应排在 other 之前：时间倒序，时间相同时按ID倒序
func (r *Result) Newer(other *Result) bool {
	if !r.Timestamp.Equal(other.Timestamp) {
		return r.Timestamp.After(other.Timestamp)
	}
	return r.ID > other.ID
}
