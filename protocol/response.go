package protocol

import (
	"strings"

	"github.com/favbox/dsk/internal/bytesconv"
	"github.com/favbox/dsk/protocol/consts"
)

// Response 是 HTTP 响应的标头部分。正文以流的形式单独传递。
type Response struct {
	message

	StatusCode int

	// 原因短语，为空时使用状态码的标准短语。
	Reason string
}

// NewResponse 创建 HTTP/1.1 响应。
func NewResponse(statusCode int) *Response {
	r := &Response{StatusCode: statusCode}
	r.init()
	return r
}

// ParseResponse 解析以空行结尾的完整响应标头块。
func ParseResponse(raw []byte) (*Response, error) {
	r := &Response{}
	r.init()
	first, err := r.parse(raw)
	if err != nil {
		return nil, err
	}

	version, rest, _ := strings.Cut(first, " ")
	major, minor, ok := parseVersion(version)
	if !ok || major != 1 {
		return nil, badHeader("无效的状态行 %q", first)
	}
	code, reason, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return nil, badHeader("无效的状态码 %q", code)
	}
	status, err := bytesconv.ParseUint(bytesconv.S2b(code))
	if err != nil || status < 100 {
		return nil, badHeader("无效的状态码 %q", code)
	}

	r.ProtoMajor, r.ProtoMinor = major, minor
	r.StatusCode = status
	r.Reason = reason
	return r, nil
}

// IsInformational 报告是否为 1xx 临时响应。
func (r *Response) IsInformational() bool {
	return consts.StatusInformational(r.StatusCode)
}

// BodyAllowed 报告该状态码的响应是否可以有正文。
func (r *Response) BodyAllowed() bool {
	return consts.StatusBodyAllowed(r.StatusCode)
}

// Location 返回 Location 标头。
func (r *Response) Location() string {
	return r.Header.Get("location")
}

// AppendHeader 将状态行、字段和结尾空行追加到 dst。
func (r *Response) AppendHeader(dst []byte) []byte {
	if r.ProtoMajor == 1 && r.ProtoMinor == 1 && r.Reason == "" {
		dst = append(dst, consts.StatusLine(r.StatusCode)...)
	} else {
		dst = appendVersion(dst, r.ProtoMajor, r.ProtoMinor)
		dst = append(dst, ' ')
		dst = bytesconv.AppendUint(dst, r.StatusCode)
		dst = append(dst, ' ')
		if r.Reason != "" {
			dst = append(dst, r.Reason...)
		} else {
			dst = append(dst, consts.StatusMessage(r.StatusCode)...)
		}
		dst = append(dst, "\r\n"...)
	}
	dst = r.Header.appendTo(dst)
	dst = r.appendFraming(dst, !r.BodyAllowed())
	return append(dst, "\r\n"...)
}

func (r *Response) String() string {
	return string(r.AppendHeader(nil))
}
