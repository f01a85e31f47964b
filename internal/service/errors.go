package service

import (
	"errors"
	"fmt"
)

var (
	ErrUserOffline = fmt.Errorf("用户不在线")
	ErrNotJoined   = fmt.Errorf("尚未加入聊天频道")
	ErrEmptyText   = fmt.Errorf("消息内容不能为空")
	ErrNoOwner     = fmt.Errorf("缺少用户标识")

	ErrInvalidContext = fmt.Errorf("context 字段不是合法的 JSON")
)

// ErrorKind 聊天错误类型
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindLookup      ErrorKind = "lookup"
	KindPersistence ErrorKind = "persistence"
	KindAuth        ErrorKind = "auth"
)

// ChatError 聊天链路错误
type ChatError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *ChatError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Reason {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

func newChatError(kind ErrorKind, reason string, err error) *ChatError {
	return &ChatError{Kind: kind, Reason: reason, Err: err}
}

// ValidationError 校验失败，未发生任何持久化
func ValidationError(err error) *ChatError {
	return newChatError(KindValidation, err.Error(), err)
}

// AuthError 身份解析失败
func AuthError(reason string, err error) *ChatError {
	return newChatError(KindAuth, reason, err)
}

// KindOf 返回错误类型，非 ChatError 视为持久化错误
func KindOf(err error) ErrorKind {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return KindPersistence
}

// IsKind 判断错误是否为指定类型
func IsKind(err error, kind ErrorKind) bool {
	var chatErr *ChatError
	return errors.As(err, &chatErr) && chatErr.Kind == kind
}

// ReasonOf 返回面向客户端的错误描述
func ReasonOf(err error) string {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Reason
	}
	return "服务内部错误"
}
