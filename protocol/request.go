package protocol

import (
	"strings"

	"github.com/favbox/dsk/protocol/consts"
	"golang.org/x/net/http/httpguts"
)

// Request 是 HTTP 请求的标头部分。正文以流的形式单独传递。
type Request struct {
	message

	Method string

	// 请求目标，如 /index.html?x=1。
	Path string
}

// NewRequest 创建 HTTP/1.1 请求。
func NewRequest(method, path string) *Request {
	r := &Request{Method: method, Path: path}
	r.init()
	return r
}

// ParseRequest 解析以空行结尾的完整请求标头块。
func ParseRequest(raw []byte) (*Request, error) {
	r := &Request{}
	r.init()
	first, err := r.parse(raw)
	if err != nil {
		return nil, err
	}

	method, rest, ok1 := strings.Cut(first, " ")
	target, version, ok2 := strings.Cut(rest, " ")
	if !ok1 || !ok2 || method == "" || target == "" {
		return nil, badHeader("无效的请求行 %q", first)
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, badHeader("无效的请求方法 %q", method)
	}
	major, minor, ok := parseVersion(version)
	if !ok || major != 1 {
		return nil, badHeader("不支持的协议版本 %q", version)
	}
	if r.unknownEncoding {
		return nil, badHeader("不支持的 Transfer-Encoding")
	}

	r.Method, r.Path = method, target
	r.ProtoMajor, r.ProtoMinor = major, minor
	// 请求未声明长度时没有正文
	if !r.Chunked && r.ContentLength < 0 {
		r.ContentLength = 0
	}
	return r, nil
}

// URIPath 返回不含查询串的路径部分。
func (r *Request) URIPath() string {
	if i := strings.IndexByte(r.Path, '?'); i >= 0 {
		return r.Path[:i]
	}
	return r.Path
}

// Query 返回查询串，不含 '?'。
func (r *Request) Query() string {
	if i := strings.IndexByte(r.Path, '?'); i >= 0 {
		return r.Path[i+1:]
	}
	return ""
}

// Host 返回 Host 标头。
func (r *Request) Host() string {
	return r.Header.Get("host")
}

// UserAgent 返回 User-Agent 标头。
func (r *Request) UserAgent() string {
	return r.Header.Get("user-agent")
}

// IsHead 报告是否为 HEAD 请求，其响应没有正文。
func (r *Request) IsHead() bool {
	return r.Method == consts.MethodHead
}

// HasBody 报告请求是否带有正文。
func (r *Request) HasBody() bool {
	return r.Chunked || r.ContentLength > 0
}

// Cookie 返回名为 name 的 cookie 值。
func (r *Request) Cookie(name string) (string, bool) {
	for _, v := range r.Header.Values("cookie") {
		for v != "" {
			var pair string
			pair, v, _ = strings.Cut(v, ";")
			k, val, _ := strings.Cut(strings.TrimSpace(pair), "=")
			if k == name {
				return strings.Trim(val, `"`), true
			}
		}
	}
	return "", false
}

// AppendHeader 将请求行、字段和结尾空行追加到 dst。
func (r *Request) AppendHeader(dst []byte) []byte {
	dst = append(dst, r.Method...)
	dst = append(dst, ' ')
	dst = append(dst, r.Path...)
	dst = append(dst, ' ')
	dst = appendVersion(dst, r.ProtoMajor, r.ProtoMinor)
	dst = append(dst, "\r\n"...)
	dst = r.Header.appendTo(dst)
	dst = r.appendFraming(dst, false)
	return append(dst, "\r\n"...)
}

func (r *Request) String() string {
	return string(r.AppendHeader(nil))
}
