package protocol

import (
	"strings"

	"github.com/favbox/dsk/internal/bytesconv"
)

// HeaderField 是一个标头字段。解析得到的字段名为小写。
type HeaderField struct {
	Key   string
	Value string
}

// Header 是有序的标头字段列表，字段名大小写不敏感，同名字段可重复。
type Header struct {
	fields []HeaderField
}

// 返回小写的字段名，已是小写时不分配。
func lowerKey(key string) string {
	for i := 0; i < len(key); i++ {
		if c := key[i]; c >= 'A' && c <= 'Z' {
			b := []byte(key)
			bytesconv.LowercaseBytes(b)
			return bytesconv.B2s(b)
		}
	}
	return key
}

// Add 追加一个字段。
func (h *Header) Add(key, value string) {
	h.fields = append(h.fields, HeaderField{Key: lowerKey(key), Value: value})
}

// Set 设置字段值，替换所有同名字段。
func (h *Header) Set(key, value string) {
	key = lowerKey(key)
	for i := range h.fields {
		if h.fields[i].Key == key {
			h.fields[i].Value = value
			h.del(key, i+1)
			return
		}
	}
	h.fields = append(h.fields, HeaderField{Key: key, Value: value})
}

// Get 返回第一个同名字段的值，不存在时返回空串。
func (h *Header) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Lookup 返回第一个同名字段的值及其是否存在。
func (h *Header) Lookup(key string) (string, bool) {
	key = lowerKey(key)
	for i := range h.fields {
		if h.fields[i].Key == key {
			return h.fields[i].Value, true
		}
	}
	return "", false
}

// Values 返回所有同名字段的值。
func (h *Header) Values(key string) []string {
	key = lowerKey(key)
	var vs []string
	for i := range h.fields {
		if h.fields[i].Key == key {
			vs = append(vs, h.fields[i].Value)
		}
	}
	return vs
}

// Has 报告是否存在同名字段。
func (h *Header) Has(key string) bool {
	_, ok := h.Lookup(key)
	return ok
}

// Del 删除所有同名字段。
func (h *Header) Del(key string) {
	h.del(lowerKey(key), 0)
}

func (h *Header) del(key string, from int) {
	j := from
	for i := from; i < len(h.fields); i++ {
		if h.fields[i].Key != key {
			h.fields[j] = h.fields[i]
			j++
		}
	}
	h.fields = h.fields[:j]
}

// Len 返回字段数。
func (h *Header) Len() int {
	return len(h.fields)
}

// VisitAll 按顺序访问每个字段。
func (h *Header) VisitAll(f func(key, value string)) {
	for _, kv := range h.fields {
		f(kv.Key, kv.Value)
	}
}

// Reset 清空所有字段。
func (h *Header) Reset() {
	h.fields = h.fields[:0]
}

// 由消息结构体字段单独输出的标头。
func isFramingKey(key string) bool {
	switch key {
	case "content-length", "transfer-encoding", "connection":
		return true
	}
	return false
}

// 以规范大小写追加字段名，如 content-type -> Content-Type。
func appendCanonicalKey(dst []byte, key string) []byte {
	upper := true
	for i := 0; i < len(key); i++ {
		c := key[i]
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		dst = append(dst, c)
		upper = c == '-'
	}
	return dst
}

func appendField(dst []byte, key, value string) []byte {
	dst = appendCanonicalKey(dst, key)
	dst = append(dst, ": "...)
	dst = append(dst, value...)
	return append(dst, "\r\n"...)
}

// 追加除分帧字段外的全部字段。
func (h *Header) appendTo(dst []byte) []byte {
	for _, kv := range h.fields {
		if isFramingKey(kv.Key) {
			continue
		}
		dst = appendField(dst, kv.Key, kv.Value)
	}
	return dst
}

// 逗号分隔的列表值中是否含有 token，大小写不敏感。
func hasToken(value, token string) bool {
	for value != "" {
		var part string
		part, value, _ = strings.Cut(value, ",")
		if bytesconv.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// 逗号分隔的列表值中的最后一项。
func lastToken(value string) string {
	if i := strings.LastIndexByte(value, ','); i >= 0 {
		value = value[i+1:]
	}
	return strings.TrimSpace(value)
}
