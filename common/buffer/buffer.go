// Package buffer 提供由字节片段链表组成的缓冲区。
//
// 追加、丢弃和缓冲区之间的整段转移都是 O(1) 的链表操作，
// 转移时片段的所有权随之移动，不会拷贝数据。缓冲区本身不做任何 I/O 调度，
// 且不是并发安全的：同一时刻只能被一个所有者修改。
package buffer

import (
	"bytes"
	"io"

	"github.com/favbox/dsk/internal/nocopy"
)

// Buffer 是片段链表形式的字节缓冲区。零值即为可用的空缓冲区。
type Buffer struct {
	noCopy nocopy.NoCopy

	size  int
	first *fragment
	last  *fragment
}

var (
	_ io.Reader     = (*Buffer)(nil)
	_ io.Writer     = (*Buffer)(nil)
	_ io.ByteReader = (*Buffer)(nil)
)

// Len 返回缓冲区中的有效字节数。
func (b *Buffer) Len() int {
	return b.size
}

func (b *Buffer) push(f *fragment) {
	f.next = nil
	if b.last == nil {
		b.first = f
	} else {
		b.last.next = f
	}
	b.last = f
}

// 确保尾片段至少有 1 字节可写空间，返回尾片段。
func (b *Buffer) tail() *fragment {
	if b.last == nil || b.last.avail() == 0 {
		b.push(allocFragment())
	}
	return b.last
}

// Append 拷贝 p 到缓冲区尾部。
func (b *Buffer) Append(p []byte) {
	for len(p) > 0 {
		f := b.tail()
		n := copy(f.buf[f.end():], p)
		f.length += n
		b.size += n
		p = p[n:]
	}
}

// AppendString 拷贝 s 到缓冲区尾部。
func (b *Buffer) AppendString(s string) {
	for len(s) > 0 {
		f := b.tail()
		n := copy(f.buf[f.end():], s)
		f.length += n
		b.size += n
		s = s[n:]
	}
}

// AppendByte 追加单个字节。
func (b *Buffer) AppendByte(c byte) {
	f := b.tail()
	f.buf[f.end()] = c
	f.length++
	b.size++
}

// AppendForeign 零拷贝地追加 p。
//
// 缓冲区负责在 p 被完全消费或缓冲区被清空时调用且仅调用一次 destroy，
// 在此之前调用方不得修改 p。destroy 可为 nil。
func (b *Buffer) AppendForeign(p []byte, destroy func()) {
	if len(p) == 0 {
		if destroy != nil {
			destroy()
		}
		return
	}
	b.push(&fragment{
		buf:     p,
		length:  len(p),
		foreign: true,
		destroy: destroy,
	})
	b.size += len(p)
}

// Write 实现 io.Writer，总是成功。
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// WriteString 实现 io.StringWriter，总是成功。
func (b *Buffer) WriteString(s string) (int, error) {
	b.AppendString(s)
	return len(s), nil
}

// 从头部移除至多 n 个字节，若 out 非空则拷贝到 out。完全消费的片段被回收。
func (b *Buffer) consume(n int, out []byte) int {
	rv := 0
	for rv < n && b.first != nil {
		f := b.first
		take := f.length
		if take > n-rv {
			take = n - rv
		}
		if out != nil {
			copy(out[rv:], f.buf[f.start:f.start+take])
		}
		f.start += take
		f.length -= take
		rv += take
		if f.length == 0 {
			b.first = f.next
			if b.first == nil {
				b.last = nil
			}
			freeFragment(f)
		}
	}
	b.size -= rv
	return rv
}

// Read 拷贝并移除头部至多 len(p) 个字节。缓冲区为空时返回 io.EOF。
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.size == 0 {
		return 0, io.EOF
	}
	return b.consume(len(p), p), nil
}

// ReadByte 读取并移除头部的一个字节。
func (b *Buffer) ReadByte() (byte, error) {
	if b.size == 0 {
		return 0, io.EOF
	}
	f := b.first
	c := f.buf[f.start]
	b.consume(1, nil)
	return c, nil
}

// Peek 拷贝头部至多 len(p) 个字节，不修改缓冲区。
func (b *Buffer) Peek(p []byte) int {
	rv := 0
	for f := b.first; f != nil && rv < len(p); f = f.next {
		rv += copy(p[rv:], f.data())
	}
	return rv
}

// Discard 丢弃头部至多 n 个字节，返回实际丢弃的字节数。
func (b *Buffer) Discard(n int) int {
	return b.consume(n, nil)
}

// Clear 清空缓冲区，释放全部片段。
func (b *Buffer) Clear() {
	for b.first != nil {
		f := b.first
		b.first = f.next
		freeFragment(f)
	}
	b.last = nil
	b.size = 0
}

// ByteAt 返回偏移量 i 处的字节，越界时 ok 为 false。
func (b *Buffer) ByteAt(i int) (c byte, ok bool) {
	if i < 0 || i >= b.size {
		return 0, false
	}
	for f := b.first; f != nil; f = f.next {
		if i < f.length {
			return f.buf[f.start+i], true
		}
		i -= f.length
	}
	return 0, false
}

// IndexFrom 从偏移量 start 开始查找字节 c，返回其偏移量，未找到返回 -1。
func (b *Buffer) IndexFrom(start int, c byte) int {
	if start < 0 {
		start = 0
	}
	offset := 0
	for f := b.first; f != nil; f = f.next {
		if start < offset+f.length {
			skip := 0
			if start > offset {
				skip = start - offset
			}
			if i := bytes.IndexByte(f.buf[f.start+skip:f.end()], c); i >= 0 {
				return offset + skip + i
			}
		}
		offset += f.length
	}
	return -1
}

// IndexByte 查找字节 c 首次出现的偏移量，未找到返回 -1。
func (b *Buffer) IndexByte(c byte) int {
	return b.IndexFrom(0, c)
}

// ReadLine 读取并移除一行，返回的行不含结尾的 '\n'。没有完整的行时 ok 为 false。
func (b *Buffer) ReadLine() (line string, ok bool) {
	i := b.IndexByte('\n')
	if i < 0 {
		return "", false
	}
	p := make([]byte, i+1)
	b.consume(i+1, p)
	return string(p[:i]), true
}

// Bytes 返回缓冲区全部内容的拷贝，不修改缓冲区。
func (b *Buffer) Bytes() []byte {
	p := make([]byte, b.size)
	b.Peek(p)
	return p
}

// String 返回缓冲区全部内容的字符串拷贝。
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Drain 将 src 的全部片段转移到 dst 尾部，返回转移的字节数。
//
// 只重连链表，与数据量无关；之后 src 为空。
func Drain(dst, src *Buffer) int {
	if src.first == nil {
		return 0
	}
	if dst.last == nil {
		dst.first = src.first
	} else {
		dst.last.next = src.first
	}
	dst.last = src.last
	n := src.size
	dst.size += n
	src.first, src.last, src.size = nil, nil, 0
	return n
}

// Transfer 从 src 头部移动至多 max 个字节到 dst 尾部，返回移动的字节数。
//
// 完整落入范围的片段直接重连，最后一个不完整的片段按需拷贝拆分。
func Transfer(dst, src *Buffer, max int) int {
	rv := 0
	for rv < max && src.first != nil {
		f := src.first
		if f.length == 0 {
			src.first = f.next
			if src.first == nil {
				src.last = nil
			}
			freeFragment(f)
			continue
		}
		if f.length <= max-rv {
			src.first = f.next
			if src.first == nil {
				src.last = nil
			}
			src.size -= f.length
			dst.push(f)
			dst.size += f.length
			rv += f.length
			continue
		}

		n := max - rv
		dst.Append(f.buf[f.start : f.start+n])
		f.start += n
		f.length -= n
		src.size -= n
		rv += n
	}
	return rv
}
