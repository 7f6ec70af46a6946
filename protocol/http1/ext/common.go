package ext

import (
	"fmt"

	"github.com/favbox/dsk/common/buffer"
)

// BufferSnippet 返回字节切片的片段。
//
// 形如: <前缀 20 位>...<后缀=总长度-20位>
//
// 若前缀长 >= 后缀长，则直接返回原始切片。
func BufferSnippet(b []byte) string {
	n := len(b)
	start := 20
	end := n - start
	if start >= end {
		start = n
		end = n
	}
	bStart, bEnd := b[:start], b[end:]
	if len(bEnd) == 0 {
		return fmt.Sprintf("%q", b)
	}
	return fmt.Sprintf("%q...%q", bStart, bEnd)
}

// HeaderScanner 在不断增长的缓冲区中查找标头块的结尾（"\n\n" 或 "\n\r\n"）。
//
// 每次扫描都从上次停下的位置继续，整个标头只被检查一遍。
// 标头被取走后须调用 Reset。
type HeaderScanner struct {
	checked int
}

// Reset 为下一个标头块重置扫描进度。
func (s *HeaderScanner) Reset() {
	s.checked = 0
}

// Checked 返回已检查的字节数。
func (s *HeaderScanner) Checked() int {
	return s.checked
}

// Scan 返回标头块（含结尾空行）的长度。标头尚不完整时 ok 为 false。
//
// 开始扫描前会丢弃标头之前多余的空行。
func (s *HeaderScanner) Scan(b *buffer.Buffer) (n int, ok bool) {
	if s.checked == 0 && !skipLeadingCRLF(b) {
		return 0, false
	}
	for {
		i := b.IndexFrom(s.checked, '\n')
		if i < 0 {
			s.checked = b.Len()
			return 0, false
		}
		c, ok := b.ByteAt(i + 1)
		if !ok {
			s.checked = i
			return 0, false
		}
		switch c {
		case '\n':
			return i + 2, true
		case '\r':
			c, ok = b.ByteAt(i + 2)
			if !ok {
				s.checked = i
				return 0, false
			}
			if c == '\n' {
				return i + 3, true
			}
		}
		s.checked = i + 1
	}
}

// 丢弃开头的 "\n" 与 "\r\n"。剩余数据以其他字节开头时返回 true。
func skipLeadingCRLF(b *buffer.Buffer) bool {
	for {
		c, ok := b.ByteAt(0)
		if !ok {
			return false
		}
		switch c {
		case '\n':
			b.Discard(1)
		case '\r':
			c, ok = b.ByteAt(1)
			if !ok {
				return false
			}
			if c != '\n' {
				return true
			}
			b.Discard(2)
		default:
			return true
		}
	}
}

// IsOnlyCRLF 报告缓冲区是否只含有 '\r' 与 '\n'。
//
// 有缺陷的对端可能在正文之后多发送 CRLF，这类数据可以安全丢弃。
func IsOnlyCRLF(b *buffer.Buffer) bool {
	for i := 0; i < b.Len(); i++ {
		if c, _ := b.ByteAt(i); c != '\r' && c != '\n' {
			return false
		}
	}
	return true
}
