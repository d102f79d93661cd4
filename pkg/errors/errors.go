// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArg      = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrSessionClosed   = errors.New("session closed")
	ErrTurnActive      = errors.New("a turn is already streaming")
	ErrStreamCancelled = errors.New("stream cancelled")

	// 配额/余额类错误：调用方需要区分展示（引导充值 vs 通用重试）
	ErrFreeQuotaExceeded   = errors.New("free quota exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// 错误响应体里的机读 reason 码，网关写入、客户端解读
const (
	ReasonFreeQuotaExceeded   = "free_quota_exceeded"
	ReasonInsufficientBalance = "insufficient_balance"
)

// ReasonOf 取哨兵错误对应的 reason 码，无对应关系时返回空串
func ReasonOf(err error) string {
	switch {
	case errors.Is(err, ErrFreeQuotaExceeded):
		return ReasonFreeQuotaExceeded
	case errors.Is(err, ErrInsufficientBalance):
		return ReasonInsufficientBalance
	}
	return ""
}

// FromReason 把 reason 码映射回哨兵错误，未知码返回 nil
func FromReason(reason string) error {
	switch reason {
	case ReasonFreeQuotaExceeded:
		return ErrFreeQuotaExceeded
	case ReasonInsufficientBalance:
		return ErrInsufficientBalance
	}
	return nil
}

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
