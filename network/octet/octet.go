// Package octet 定义非阻塞字节流的读写能力接口及其实现。
//
// 读写结果遵循统一约定：成功时 n>0 且 err 为 nil；
// errors.ErrAgain 表示暂无数据或暂不可写，应等待对应钩子的通知后重试；
// io.EOF 表示对端已结束；其他错误均为终止性错误。
package octet

import (
	"github.com/favbox/dsk/common/buffer"
)

// Source 是可读的字节流。
type Source interface {
	// Read 读取至多 len(p) 个字节。
	Read(p []byte) (int, error)

	// ReadBuffer 将可读数据追加到 b，吞吐量优于 Read。
	ReadBuffer(b *buffer.Buffer) (int, error)

	// Shutdown 请求半关闭读方向，并清除可读钩子。
	Shutdown()

	// ReadableHook 返回可读通知钩子。
	ReadableHook() *Hook
}

// Sink 是可写的字节流。
type Sink interface {
	// Write 写入 p 的前缀，返回写入的字节数。
	Write(p []byte) (int, error)

	// WriteBuffer 从 b 的头部写出数据并丢弃已写出的部分。
	WriteBuffer(b *buffer.Buffer) (int, error)

	// Shutdown 请求半关闭写方向，并清除可写钩子。
	Shutdown()

	// WritableHook 返回可写通知钩子。
	WritableHook() *Hook
}
