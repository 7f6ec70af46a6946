package errors

import (
	"errors"
	"fmt"
	"io"
)

// 各层共用的哨兵错误，用 errors.Is 判断。读到流尾用 io.EOF。
var (
	// ErrAgain 表示非阻塞操作暂时无法进行，须等待对应钩子通知后重试。它不是失败。
	ErrAgain = errors.New("资源暂不可用，请稍后重试")

	ErrTimeout          = errors.New("timeout")
	ErrIdleTimeout      = errors.New("idle timeout")
	ErrConnectionClosed = errors.New("连接已关闭")
	ErrNotConnected     = errors.New("尚未连接")
	ErrStreamShutdown   = errors.New("流已关闭")

	ErrHeaderTooLong   = errors.New("标头超过最大长度")
	ErrBadHeader       = errors.New("标头格式错误")
	ErrBadChunk        = errors.New("分块大小格式错误")
	ErrUnsolicitedData = errors.New("收到未经请求的数据")
	ErrPrematureEOF    = errors.New("正文结束前连接已关闭")

	ErrNameNotFound = errors.New("域名不存在")
	ErrBadResponse  = errors.New("域名服务器响应异常")

	ErrBadConfig = errors.New("配置错误")
)

// ErrorType 是错误的分类，可按位组合。
type ErrorType uint64

const (
	// ErrorTypeIO 用于底层读写失败。
	ErrorTypeIO ErrorType = 1 << iota
	// ErrorTypeProtocol 用于对端违反 HTTP 协议，连接随之关闭。
	ErrorTypeProtocol
	// ErrorTypeConfig 用于构造时的配置错误。
	ErrorTypeConfig
	// ErrorTypeDNS 用于域名解析失败。
	ErrorTypeDNS
	// ErrorTypeUsage 用于调用方用错了接口，如重复响应。
	ErrorTypeUsage

	ErrorTypeAny ErrorType = 1<<64 - 1
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeIO:
		return "io"
	case ErrorTypeProtocol:
		return "protocol"
	case ErrorTypeConfig:
		return "config"
	case ErrorTypeDNS:
		return "dns"
	case ErrorTypeUsage:
		return "usage"
	}
	return fmt.Sprintf("type(%#x)", uint64(t))
}

// Error 给底层错误附加分类和上下文。Meta 通常是出错的操作或详细说明。
type Error struct {
	Err  error
	Type ErrorType
	Meta any
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e.Meta == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%v)", e.Err.Error(), e.Meta)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType 报告错误是否属于 flags 中的任一分类。
func (e *Error) IsType(flags ErrorType) bool {
	return e.Type&flags != 0
}

func (e *Error) SetMeta(meta any) *Error {
	e.Meta = meta
	return e
}

// New 以分类 t 和上下文 meta 包装 err。
func New(err error, t ErrorType, meta any) *Error {
	return &Error{Err: err, Type: t, Meta: meta}
}

// Newf 以格式化的消息新建错误。
func Newf(t ErrorType, meta any, format string, v ...any) *Error {
	return New(fmt.Errorf(format, v...), t, meta)
}

// NewUsage 新建用法错误。
func NewUsage(msg string) *Error {
	return New(errors.New(msg), ErrorTypeUsage, nil)
}

// NewProtocolf 新建协议错误，err 是被包装的哨兵错误。
func NewProtocolf(err error, format string, v ...any) *Error {
	return New(err, ErrorTypeProtocol, fmt.Sprintf(format, v...))
}

// NewConfigf 新建配置错误，总是包装 ErrBadConfig。
func NewConfigf(format string, v ...any) *Error {
	return New(ErrBadConfig, ErrorTypeConfig, fmt.Sprintf(format, v...))
}

// NewIO 包装系统调用错误，op 是出错的操作。
func NewIO(op string, err error) *Error {
	return New(err, ErrorTypeIO, op)
}

// HasType 报告 err 的链上是否有属于 t 的 *Error。
func HasType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.IsType(t)
}

// IsTerminal 报告读写结果是否终止了流：EOF 或其他错误。ErrAgain 不算。
func IsTerminal(err error) bool {
	return err != nil && !errors.Is(err, ErrAgain)
}

func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
