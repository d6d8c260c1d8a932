package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"speedtest/internal/model"
)

// 校验操作
const (
	OpNonEmpty    = "non_empty"    // 非空字符串
	OpNonNegative = "non_negative" // 有限非负数
	OpNonNegInt   = "non_neg_int"  // 有限非负整数
)

// ValidationRule 表示一个字段校验规则
type ValidationRule struct {
	Key string // 需要验证的键
	Op  string
}

// FieldError 字段校验失败
type FieldError struct {
	Key     string
	Missing bool // true 表示字段缺失，false 表示值不合法
}

func (e *FieldError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing required field: %s", e.Key)
	}
	return fmt.Sprintf("invalid value for field: %s", e.Key)
}

// ResultSubmissionRules 测速结果提交的校验规则，按顺序执行
var ResultSubmissionRules = []ValidationRule{
	{Key: "refNumber", Op: OpNonEmpty},
	{Key: "download", Op: OpNonNegative},
	{Key: "upload", Op: OpNonNegative},
	{Key: "ping", Op: OpNonNegInt},
}

// ValidateFields 按顺序执行规则，返回第一个失败的字段
func ValidateFields(fields map[string]model.FlexValue, rules []ValidationRule) *FieldError {
	for _, rule := range rules {
		value, ok := fields[rule.Key]
		if !ok || !value.Set {
			return &FieldError{Key: rule.Key, Missing: true}
		}
		if value.Composite {
			return &FieldError{Key: rule.Key}
		}

		switch rule.Op {
		case OpNonEmpty:
			if strings.TrimSpace(value.Raw) == "" {
				return &FieldError{Key: rule.Key, Missing: true}
			}
		case OpNonNegative:
			if _, err := ParseNonNegativeFloat(value.Raw); err != nil {
				return &FieldError{Key: rule.Key}
			}
		case OpNonNegInt:
			if _, err := ParseNonNegativeInt(value.Raw); err != nil {
				return &FieldError{Key: rule.Key}
			}
		default:
			return &FieldError{Key: rule.Key}
		}
	}
	return nil
}

// ParseNonNegativeFloat 解析有限非负浮点数，整个字符串必须是数字
func ParseNonNegativeFloat(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty number")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("number is not finite: %s", raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("number is negative: %s", raw)
	}
	return f, nil
}

// ParseNonNegativeInt 解析非负整数，小数部分被截断
func ParseNonNegativeInt(raw string) (int, error) {
	f, err := ParseNonNegativeFloat(raw)
	if err != nil {
		return 0, err
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("number out of range: %s", raw)
	}
	return int(math.Trunc(f)), nil
}
