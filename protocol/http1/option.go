package http1

import (
	"github.com/favbox/dsk/common/config"
)

// WithMaxHeaderSize 设置客户端流可接受的响应标头最大字节数。
func WithMaxHeaderSize(n int) config.HTTPClientStreamOption {
	return config.HTTPClientStreamOption{F: func(o *config.HTTPClientStreamOptions) {
		o.MaxHeaderSize = n
	}}
}

// WithMaxPipelinedRequests 设置客户端流同时在途的请求数上限。
func WithMaxPipelinedRequests(n int) config.HTTPClientStreamOption {
	return config.HTTPClientStreamOption{F: func(o *config.HTTPClientStreamOptions) {
		o.MaxPipelinedRequests = n
	}}
}

// WithMaxOutgoingData 设置客户端流出站缓冲区的字节数上限。
func WithMaxOutgoingData(n int) config.HTTPClientStreamOption {
	return config.HTTPClientStreamOption{F: func(o *config.HTTPClientStreamOptions) {
		o.MaxOutgoingData = n
	}}
}

// WithPrintWarnings 设置客户端流是否打印协议警告。
func WithPrintWarnings(b bool) config.HTTPClientStreamOption {
	return config.HTTPClientStreamOption{F: func(o *config.HTTPClientStreamOptions) {
		o.PrintWarnings = b
	}}
}

// WithServerStreamOptions 用整组流选项替换服务器的默认值。
func WithServerStreamOptions(so config.HTTPServerStreamOptions) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.Stream = so
	}}
}

// WithMaxRequestHeaderSize 设置服务器可接受的请求标头最大字节数。
func WithMaxRequestHeaderSize(n int) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.Stream.MaxHeaderSize = n
	}}
}

// WithMaxPostDataSize 设置等待完整请求正文时允许的最大字节数。
func WithMaxPostDataSize(n int) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.Stream.MaxPostDataSize = n
	}}
}

// WithWaitForContent 设置是否在请求正文接收完整后才调用处理器。
func WithWaitForContent(b bool) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.Stream.WaitForContent = b
	}}
}

// WithMaxInternalRedirects 设置单个请求内部重定向的最大次数。
func WithMaxInternalRedirects(n int) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.MaxInternalRedirects = n
	}}
}

// WithServerName 设置 Server 响应标头，为空则不发送。
func WithServerName(name string) config.Option {
	return config.Option{F: func(o *config.Options) {
		o.ServerName = name
	}}
}
