package hlog

import (
	"io"
	"log"
	"os"
)

const (
	systemLogPrefix = "dsk: "
	defaultFlags    = log.LstdFlags | log.Lshortfile | log.Lmicroseconds
)

// ProtocolErrorFormat 是 HTTP 流记录对端协议错误的格式，静默模式下不输出。
const ProtocolErrorFormat = "协议错误=%s, 流=%p"

var (
	logger    FullLogger = newDefaultLogger(os.Stderr, defaultFlags, LevelTrace)
	sysLogger FullLogger = newSystemLogger(newDefaultLogger(os.Stderr, defaultFlags, LevelInfo))
)

// SetOutput 同时设置默认记录器和系统记录器的输出，默认 os.Stderr。
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
	sysLogger.SetOutput(w)
}

// SetLevel 设置默认记录器的级别。
func SetLevel(lv Level) {
	logger.SetLevel(lv)
}

// SetSystemLevel 设置库内部日志的级别，默认 LevelInfo。
func SetSystemLevel(lv Level) {
	sysLogger.SetLevel(lv)
}

// DefaultLogger 返回默认记录器。
func DefaultLogger() FullLogger {
	return logger
}

// SystemLogger 返回库内部使用的记录器，输出带 "dsk: " 前缀。
func SystemLogger() FullLogger {
	return sysLogger
}

// SetSystemLogger 替换库内部使用的记录器。须在事件循环运行前调用。
func SetSystemLogger(v FullLogger) {
	sysLogger = newSystemLogger(v)
}

// SetLogger 以 v 同时替换默认记录器和系统记录器。须在事件循环运行前调用。
func SetLogger(v FullLogger) {
	logger = v
	SetSystemLogger(v)
}
