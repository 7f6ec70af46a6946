package config

import (
	"time"
)

const (
	defaultMaxHeaderSize        = 16 * 1024
	defaultMaxPipelinedRequests = 4
	defaultMaxOutgoingData      = 64 * 1024
	defaultMaxPostDataSize      = 4 * 1024 * 1024
	defaultMaxInternalRedirects = 16
	defaultServerName           = "dsk"

	// 定时器类选项的“禁用”值。
	Disabled time.Duration = -1
)

// Option 是配置服务器选项的唯一结构体。
type Option struct {
	F func(o *Options)
}

// Options 是服务器选项。
type Options struct {
	// 每个接入连接的流选项。
	Stream HTTPServerStreamOptions

	// 单个请求内部重定向的最大次数，超出则响应 500，默认 16。
	MaxInternalRedirects int `vd:"$>0"`

	// Server 响应标头的值，为空则不发送，默认 "dsk"。
	ServerName string
}

// Apply 将指定的一组配置方法 opts 应用到配置项上。
func (o *Options) Apply(opts []Option) {
	for _, opt := range opts {
		opt.F(o)
	}
}

// NewOptions 创建基于给定配置函数的服务器选项。
func NewOptions(opts []Option) *Options {
	options := &Options{
		Stream:               *NewHTTPServerStreamOptions(nil),
		MaxInternalRedirects: defaultMaxInternalRedirects,
		ServerName:           defaultServerName,
	}
	options.Apply(opts)
	return options
}
