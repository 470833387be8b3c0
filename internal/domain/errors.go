package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated    = errors.New("未登录或令牌无效")
	ErrTokenExpired       = fmt.Errorf("%w: 令牌已过期", ErrUnauthenticated)
	ErrIdentityNotFound   = fmt.Errorf("%w: 用户不存在", ErrUnauthenticated)
	ErrForbidden          = errors.New("权限不足")
	ErrNotFound           = errors.New("资源不存在")
	ErrConflict           = errors.New("资源已存在")
	ErrValidation         = errors.New("参数错误")
	ErrServiceUnavailable = errors.New("服务暂不可用")
)

// ValidationError 描述某个字段不合法，errors.Is(err, ErrValidation) 为真
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
