package hlog

import (
	"context"
	"io"
	"sync/atomic"
)

var silentMode atomic.Bool

// SetSilentMode 开启后，HTTP 流不再记录对端造成的协议错误。
func SetSilentMode(s bool) {
	silentMode.Store(s)
}

func silenced(format string) bool {
	return format == ProtocolErrorFormat && silentMode.Load()
}

// systemLogger 为每条日志加上前缀后转给 inner。
type systemLogger struct {
	inner  FullLogger
	prefix string
}

func newSystemLogger(inner FullLogger) *systemLogger {
	return &systemLogger{inner: inner, prefix: systemLogPrefix}
}

func (l *systemLogger) SetOutput(w io.Writer) { l.inner.SetOutput(w) }
func (l *systemLogger) SetLevel(lv Level)     { l.inner.SetLevel(lv) }

func (l *systemLogger) with(v []any) []any {
	return append([]any{l.prefix}, v...)
}

func (l *systemLogger) Trace(v ...any)  { l.inner.Trace(l.with(v)...) }
func (l *systemLogger) Debug(v ...any)  { l.inner.Debug(l.with(v)...) }
func (l *systemLogger) Info(v ...any)   { l.inner.Info(l.with(v)...) }
func (l *systemLogger) Notice(v ...any) { l.inner.Notice(l.with(v)...) }
func (l *systemLogger) Warn(v ...any)   { l.inner.Warn(l.with(v)...) }
func (l *systemLogger) Error(v ...any)  { l.inner.Error(l.with(v)...) }
func (l *systemLogger) Fatal(v ...any)  { l.inner.Fatal(l.with(v)...) }

func (l *systemLogger) Tracef(format string, v ...any)  { l.inner.Tracef(l.prefix+format, v...) }
func (l *systemLogger) Debugf(format string, v ...any)  { l.inner.Debugf(l.prefix+format, v...) }
func (l *systemLogger) Infof(format string, v ...any)   { l.inner.Infof(l.prefix+format, v...) }
func (l *systemLogger) Noticef(format string, v ...any) { l.inner.Noticef(l.prefix+format, v...) }
func (l *systemLogger) Fatalf(format string, v ...any)  { l.inner.Fatalf(l.prefix+format, v...) }

func (l *systemLogger) Warnf(format string, v ...any) {
	if silenced(format) {
		return
	}
	l.inner.Warnf(l.prefix+format, v...)
}

func (l *systemLogger) Errorf(format string, v ...any) {
	if silenced(format) {
		return
	}
	l.inner.Errorf(l.prefix+format, v...)
}

func (l *systemLogger) CtxTracef(ctx context.Context, format string, v ...any) {
	l.inner.CtxTracef(ctx, l.prefix+format, v...)
}

func (l *systemLogger) CtxDebugf(ctx context.Context, format string, v ...any) {
	l.inner.CtxDebugf(ctx, l.prefix+format, v...)
}

func (l *systemLogger) CtxInfof(ctx context.Context, format string, v ...any) {
	l.inner.CtxInfof(ctx, l.prefix+format, v...)
}

func (l *systemLogger) CtxNoticef(ctx context.Context, format string, v ...any) {
	l.inner.CtxNoticef(ctx, l.prefix+format, v...)
}

func (l *systemLogger) CtxWarnf(ctx context.Context, format string, v ...any) {
	l.inner.CtxWarnf(ctx, l.prefix+format, v...)
}

func (l *systemLogger) CtxErrorf(ctx context.Context, format string, v ...any) {
	if silenced(format) {
		return
	}
	l.inner.CtxErrorf(ctx, l.prefix+format, v...)
}

func (l *systemLogger) CtxFatalf(ctx context.Context, format string, v ...any) {
	l.inner.CtxFatalf(ctx, l.prefix+format, v...)
}
