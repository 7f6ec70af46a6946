package ext

import (
	"github.com/favbox/dsk/common/buffer"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/internal/bytesconv"
)

// LastChunk 是分块正文的结束块及空的挂车。
const LastChunk = "0\r\n\r\n"

// AppendChunkHeader 追加分块大小行 "%x\r\n"。
func AppendChunkHeader(dst []byte, size int) []byte {
	dst = bytesconv.AppendHexUint(dst, size)
	return append(dst, '\r', '\n')
}

// WriteChunk 将 data 的全部内容作为一个分块移入 dst，data 为空时不写入。
func WriteChunk(dst, data *buffer.Buffer) int {
	n := data.Len()
	if n == 0 {
		return 0
	}
	var hdr [20]byte
	dst.Append(AppendChunkHeader(hdr[:0], n))
	buffer.Drain(dst, data)
	dst.AppendString("\r\n")
	return n
}

func badChunk(format string, v ...any) error {
	return errs.NewProtocolf(errs.ErrBadChunk, format, v...)
}

// ChunkSizeParser 逐字节解析分块大小行，可在任意字节处中断后继续。
//
// 忽略 '\r'、空白及 ';' 之后的分块扩展。
type ChunkSizeParser struct {
	size   int
	digits int
	inExt  bool
}

// Parse 从 b 中消费字节直到读完一行。数据不足时 ok 为 false。
func (p *ChunkSizeParser) Parse(b *buffer.Buffer) (size int, ok bool, err error) {
	for {
		c, e := b.ReadByte()
		if e != nil {
			return 0, false, nil
		}
		switch {
		case c == '\n':
			if p.digits == 0 {
				return 0, false, badChunk("缺少分块大小")
			}
			size = p.size
			*p = ChunkSizeParser{}
			return size, true, nil
		case p.inExt || c == '\r':
		case c == ';':
			p.inExt = true
		case c == ' ' || c == '\t':
			if p.digits > 0 {
				p.inExt = true
			}
		default:
			v, isHex, e := bytesconv.AccumulateHex(p.size, c)
			if !isHex {
				return 0, false, badChunk("分块大小含有非法字符 %q", c)
			}
			if e != nil {
				return 0, false, badChunk("分块大小溢出")
			}
			p.size = v
			p.digits++
		}
	}
}

// ChunkEndParser 消费分块数据之后的 CRLF。
type ChunkEndParser struct{}

// Parse 读到 '\n' 时 ok 为 true，遇到 '\r' 之外的字节时返回错误。
func (ChunkEndParser) Parse(b *buffer.Buffer) (ok bool, err error) {
	for {
		c, e := b.ReadByte()
		if e != nil {
			return false, nil
		}
		switch c {
		case '\r':
		case '\n':
			return true, nil
		default:
			return false, badChunk("分块数据后缺少 CRLF")
		}
	}
}

// TrailerSkipper 跳过结束块之后的挂车字段，直到空行。
type TrailerSkipper struct {
	inLine bool
	size   int
}

// Skip 从 b 中消费挂车数据，读到结尾空行时 done 为 true。
// 挂车累计超过 max 字节时返回 ErrHeaderTooLong。
func (t *TrailerSkipper) Skip(b *buffer.Buffer, max int) (done bool, err error) {
	for {
		c, e := b.ReadByte()
		if e != nil {
			return false, nil
		}
		t.size++
		if max > 0 && t.size > max {
			return false, errs.NewProtocolf(errs.ErrHeaderTooLong, "挂车超过 %d 字节", max)
		}
		switch {
		case c == '\n':
			if !t.inLine {
				*t = TrailerSkipper{}
				return true, nil
			}
			t.inLine = false
		case c == '\r' && !t.inLine:
		default:
			t.inLine = true
		}
	}
}
