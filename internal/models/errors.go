package models

import "errors"

var (
	// ErrNotFound 引用的预测/反馈/重新训练记录不存在
	ErrNotFound = errors.New("not found")
	// ErrBusy 已有重新训练在执行
	ErrBusy = errors.New("retraining already in progress")
	// ErrInvalidFailureType 故障类型不在枚举范围内
	ErrInvalidFailureType = errors.New("invalid failure type")
)
