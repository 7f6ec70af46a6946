package hlog

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

// 以下函数转发到默认记录器。Fatal 系列在输出后 os.Exit(1)。

func Trace(v ...any)  { logger.Trace(v...) }
func Debug(v ...any)  { logger.Debug(v...) }
func Info(v ...any)   { logger.Info(v...) }
func Notice(v ...any) { logger.Notice(v...) }
func Warn(v ...any)   { logger.Warn(v...) }
func Error(v ...any)  { logger.Error(v...) }
func Fatal(v ...any)  { logger.Fatal(v...) }

func Tracef(format string, v ...any)  { logger.Tracef(format, v...) }
func Debugf(format string, v ...any)  { logger.Debugf(format, v...) }
func Infof(format string, v ...any)   { logger.Infof(format, v...) }
func Noticef(format string, v ...any) { logger.Noticef(format, v...) }
func Warnf(format string, v ...any)   { logger.Warnf(format, v...) }
func Errorf(format string, v ...any)  { logger.Errorf(format, v...) }
func Fatalf(format string, v ...any)  { logger.Fatalf(format, v...) }

func CtxTracef(ctx context.Context, format string, v ...any)  { logger.CtxTracef(ctx, format, v...) }
func CtxDebugf(ctx context.Context, format string, v ...any)  { logger.CtxDebugf(ctx, format, v...) }
func CtxInfof(ctx context.Context, format string, v ...any)   { logger.CtxInfof(ctx, format, v...) }
func CtxNoticef(ctx context.Context, format string, v ...any) { logger.CtxNoticef(ctx, format, v...) }
func CtxWarnf(ctx context.Context, format string, v ...any)   { logger.CtxWarnf(ctx, format, v...) }
func CtxErrorf(ctx context.Context, format string, v ...any)  { logger.CtxErrorf(ctx, format, v...) }
func CtxFatalf(ctx context.Context, format string, v ...any)  { logger.CtxFatalf(ctx, format, v...) }

// defaultLogger 基于标准库 log.Logger 输出。
// 级别用原子量保存，DNS 查询协程与事件循环可能同时写日志。
type defaultLogger struct {
	std   *log.Logger
	level atomic.Int32
	depth int
}

func newDefaultLogger(w io.Writer, flags int, lv Level) *defaultLogger {
	l := &defaultLogger{std: log.New(w, "", flags), depth: 5}
	l.level.Store(int32(lv))
	return l
}

func (l *defaultLogger) SetOutput(w io.Writer) { l.std.SetOutput(w) }
func (l *defaultLogger) SetLevel(lv Level)     { l.level.Store(int32(lv)) }

func (l *defaultLogger) Trace(v ...any)  { l.print(LevelTrace, v) }
func (l *defaultLogger) Debug(v ...any)  { l.print(LevelDebug, v) }
func (l *defaultLogger) Info(v ...any)   { l.print(LevelInfo, v) }
func (l *defaultLogger) Notice(v ...any) { l.print(LevelNotice, v) }
func (l *defaultLogger) Warn(v ...any)   { l.print(LevelWarn, v) }
func (l *defaultLogger) Error(v ...any)  { l.print(LevelError, v) }
func (l *defaultLogger) Fatal(v ...any)  { l.print(LevelFatal, v) }

func (l *defaultLogger) Tracef(format string, v ...any)  { l.logf(nil, LevelTrace, format, v) }
func (l *defaultLogger) Debugf(format string, v ...any)  { l.logf(nil, LevelDebug, format, v) }
func (l *defaultLogger) Infof(format string, v ...any)   { l.logf(nil, LevelInfo, format, v) }
func (l *defaultLogger) Noticef(format string, v ...any) { l.logf(nil, LevelNotice, format, v) }
func (l *defaultLogger) Warnf(format string, v ...any)   { l.logf(nil, LevelWarn, format, v) }
func (l *defaultLogger) Errorf(format string, v ...any)  { l.logf(nil, LevelError, format, v) }
func (l *defaultLogger) Fatalf(format string, v ...any)  { l.logf(nil, LevelFatal, format, v) }

func (l *defaultLogger) CtxTracef(ctx context.Context, format string, v ...any) {
	l.logf(ctx, LevelTrace, format, v)
}

func (l *defaultLogger) CtxDebugf(ctx context.Context, format string, v ...any) {
	l.logf(ctx, LevelDebug, format, v)
}

func (l *defaultLogger) CtxInfof(ctx context.Context, format string, v ...any) {
	l.logf(ctx, LevelInfo, format, v)
}

func (l *defaultLogger) CtxNoticef(ctx context.Context, format string, v ...any) {
	l.logf(ctx, LevelNotice, format, v)
}

func (l *defaultLogger) CtxWarnf(ctx context.Context, format string, v ...any) {
	l.logf(ctx, LevelWarn, format, v)
}

func (l *defaultLogger) CtxErrorf(ctx context.Context, format string, v ...any) {
	l.logf(ctx, LevelError, format, v)
}

func (l *defaultLogger) CtxFatalf(ctx context.Context, format string, v ...any) {
	l.logf(ctx, LevelFatal, format, v)
}

func (l *defaultLogger) enabled(lv Level) bool {
	return lv >= Level(l.level.Load())
}

func (l *defaultLogger) logf(ctx context.Context, lv Level, format string, v []any) {
	if !l.enabled(lv) {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if tag := Tag(ctx); tag != "" {
		msg = "[" + tag + "] " + msg
	}
	l.write(lv, msg)
}

func (l *defaultLogger) print(lv Level, v []any) {
	if !l.enabled(lv) {
		return
	}
	l.write(lv, fmt.Sprint(v...))
}

func (l *defaultLogger) write(lv Level, msg string) {
	_ = l.std.Output(l.depth, lv.String()+msg)
	if lv == LevelFatal {
		os.Exit(1)
	}
}
