package hlog

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Logger 按级别输出日志。
type Logger interface {
	Trace(v ...any)
	Debug(v ...any)
	Info(v ...any)
	Notice(v ...any)
	Warn(v ...any)
	Error(v ...any)
	Fatal(v ...any)
}

// FormatLogger 按级别和格式输出日志。
type FormatLogger interface {
	Tracef(format string, v ...any)
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Noticef(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)
}

// CtxLogger 按级别和格式输出日志，并带上 ctx 中的标签（见 WithTag）。
type CtxLogger interface {
	CtxTracef(ctx context.Context, format string, v ...any)
	CtxDebugf(ctx context.Context, format string, v ...any)
	CtxInfof(ctx context.Context, format string, v ...any)
	CtxNoticef(ctx context.Context, format string, v ...any)
	CtxWarnf(ctx context.Context, format string, v ...any)
	CtxErrorf(ctx context.Context, format string, v ...any)
	CtxFatalf(ctx context.Context, format string, v ...any)
}

// Control 调整记录器。
type Control interface {
	// SetLevel 低于该级别的日志不输出。
	SetLevel(Level)
	SetOutput(io.Writer)
}

// FullLogger 组合了全部记录器接口。
type FullLogger interface {
	Logger
	FormatLogger
	CtxLogger
	Control
}

// Level 是日志级别。
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelNotice
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"Trace", "Debug", "Info", "Notice", "Warn", "Error", "Fatal"}

// String 返回日志行的级别前缀，如 "[Warn] "。
func (lv Level) String() string {
	if lv < LevelTrace || lv > LevelFatal {
		return fmt.Sprintf("[?%d] ", lv)
	}
	return "[" + levelNames[lv] + "] "
}

// ParseLevel 按名称（不区分大小写）解析级别，如 "debug"。
func ParseLevel(name string) (Level, error) {
	for i, n := range levelNames {
		if strings.EqualFold(n, name) {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("未知的日志级别 %q", name)
}

type tagKey struct{}

// WithTag 返回带有日志标签的 ctx，Ctx 系列方法会把标签放在消息之前。
func WithTag(ctx context.Context, tag string) context.Context {
	if prev, ok := ctx.Value(tagKey{}).(string); ok && prev != "" {
		tag = prev + " " + tag
	}
	return context.WithValue(ctx, tagKey{}, tag)
}

// Tag 返回 ctx 中的日志标签。
func Tag(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	tag, _ := ctx.Value(tagKey{}).(string)
	return tag
}
