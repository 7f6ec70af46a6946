package protocol

import (
	"strings"

	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/internal/bytesconv"
	"golang.org/x/net/http/httpguts"
)

// 请求与响应共有的部分。
type message struct {
	ProtoMajor int
	ProtoMinor int
	Header     Header

	// 正文长度，-1 表示未指定。
	ContentLength int64

	// 正文使用分块传输编码。
	Chunked bool

	// Connection: close。
	ConnectionClose bool

	// Connection: keep-alive，仅对 HTTP/1.0 有意义。
	KeepAlive bool

	// Transfer-Encoding 存在但最后一项不是 chunked。
	unknownEncoding bool

	// 解析时的整块标头。字段值均是其子串，整条消息只占用这一次分配。
	raw string
}

func (m *message) init() {
	m.ProtoMajor, m.ProtoMinor = 1, 1
	m.ContentLength = -1
}

// IsHTTP11 报告协议版本是否不低于 HTTP/1.1。
func (m *message) IsHTTP11() bool {
	return m.ProtoMajor > 1 || (m.ProtoMajor == 1 && m.ProtoMinor >= 1)
}

// WantsClose 报告此消息之后连接是否应关闭。
func (m *message) WantsClose() bool {
	if m.ConnectionClose {
		return true
	}
	return !m.IsHTTP11() && !m.KeepAlive
}

// ContentType 返回 Content-Type 标头。
func (m *message) ContentType() string {
	return m.Header.Get("content-type")
}

// RawHeader 返回解析时的原始标头块。
func (m *message) RawHeader() string {
	return m.raw
}

// 去掉行尾的 '\r'。
func trimCR(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}

func badHeader(format string, v ...any) error {
	return errs.NewProtocolf(errs.ErrBadHeader, format, v...)
}

// 解析标头块（起始行、字段及结尾空行），返回起始行。
func (m *message) parse(raw []byte) (string, error) {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	s := bytesconv.B2s(buf)
	m.raw = s

	// 跳过起始行前多余的空行
	for strings.HasPrefix(s, "\r\n") || strings.HasPrefix(s, "\n") {
		if s[0] == '\r' {
			s, buf = s[2:], buf[2:]
		} else {
			s, buf = s[1:], buf[1:]
		}
	}

	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return "", badHeader("缺少起始行")
	}
	first := trimCR(s[:i])
	off := i + 1

	for off < len(s) {
		end := strings.IndexByte(s[off:], '\n')
		if end < 0 {
			return "", badHeader("标头未以空行结束")
		}
		line := trimCR(s[off : off+end])
		lineStart := off
		off += end + 1
		if line == "" {
			return first, m.applyFraming()
		}

		// 以空白开头的行是上一字段的续行
		if line[0] == ' ' || line[0] == '\t' {
			n := len(m.Header.fields)
			if n == 0 {
				return "", badHeader("首个字段不能是续行")
			}
			m.Header.fields[n-1].Value += " " + strings.TrimSpace(line)
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return "", badHeader("无效的标头行 %q", line)
		}
		if !httpguts.ValidHeaderFieldName(line[:colon]) {
			return "", badHeader("无效的字段名 %q", line[:colon])
		}
		bytesconv.LowercaseBytes(buf[lineStart : lineStart+colon])
		key := line[:colon]
		value := strings.Trim(line[colon+1:], " \t")
		if !httpguts.ValidHeaderFieldValue(value) {
			return "", badHeader("字段 %s 的值无效", key)
		}
		m.Header.fields = append(m.Header.fields, HeaderField{Key: key, Value: value})
	}
	return "", badHeader("标头未以空行结束")
}

// 由分帧相关字段计算 ContentLength、Chunked 与连接选项。
func (m *message) applyFraming() error {
	for _, kv := range m.Header.fields {
		switch kv.Key {
		case "content-length":
			n, err := bytesconv.ParseUint(bytesconv.S2b(strings.TrimSpace(kv.Value)))
			if err != nil {
				return badHeader("无效的 Content-Length %q", kv.Value)
			}
			if m.ContentLength >= 0 && m.ContentLength != int64(n) {
				return badHeader("Content-Length 不一致")
			}
			m.ContentLength = int64(n)
		case "transfer-encoding":
			last := lastToken(kv.Value)
			switch {
			case bytesconv.EqualFold(last, "chunked"):
				m.Chunked = true
				m.unknownEncoding = false
			case bytesconv.EqualFold(last, "identity"):
			default:
				m.unknownEncoding = true
			}
		case "connection":
			if hasToken(kv.Value, "close") {
				m.ConnectionClose = true
			}
			if hasToken(kv.Value, "keep-alive") {
				m.KeepAlive = true
			}
		}
	}
	// 分块编码优先于 Content-Length
	if m.Chunked {
		m.ContentLength = -1
	}
	return nil
}

// 解析 HTTP/x.y。
func parseVersion(v string) (major, minor int, ok bool) {
	if len(v) != 8 || !strings.HasPrefix(v, "HTTP/") || v[6] != '.' {
		return 0, 0, false
	}
	if v[5] < '0' || v[5] > '9' || v[7] < '0' || v[7] > '9' {
		return 0, 0, false
	}
	return int(v[5] - '0'), int(v[7] - '0'), true
}

func appendVersion(dst []byte, major, minor int) []byte {
	dst = append(dst, "HTTP/"...)
	dst = append(dst, byte('0'+major), '.', byte('0'+minor))
	return dst
}

// 追加分帧字段。bodyless 为 true 时不输出长度。
func (m *message) appendFraming(dst []byte, bodyless bool) []byte {
	if !bodyless {
		if m.Chunked {
			dst = appendField(dst, "transfer-encoding", "chunked")
		} else if m.ContentLength >= 0 {
			dst = appendCanonicalKey(dst, "content-length")
			dst = append(dst, ": "...)
			dst = bytesconv.AppendUint(dst, int(m.ContentLength))
			dst = append(dst, "\r\n"...)
		}
	}
	if m.ConnectionClose {
		dst = appendField(dst, "connection", "close")
	} else if m.KeepAlive && !m.IsHTTP11() {
		dst = appendField(dst, "connection", "keep-alive")
	}
	return dst
}
