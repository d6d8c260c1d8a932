package service

import (
	"errors"
	"fmt"
)

// ValidationError 提交内容缺失或不合法，调用方修正后可重试
type ValidationError struct {
	Field   string
	Missing bool
}

func (e *ValidationError) Error() string {
	if e.Missing {
		return "Missing required fields: " + e.Field
	}
	return fmt.Sprintf("Invalid %s value", e.Field)
}

// StorageError 存储层失败，包装原始错误
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsValidationError 判断是否为校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
