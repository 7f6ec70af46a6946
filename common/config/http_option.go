package config

// HTTPClientStreamOption 是配置 HTTP 客户端流选项的唯一结构体。
type HTTPClientStreamOption struct {
	F func(o *HTTPClientStreamOptions)
}

// HTTPClientStreamOptions 是 HTTP 客户端流的选项。
type HTTPClientStreamOptions struct {
	// 响应标头的最大字节数，默认 16KB。
	MaxHeaderSize int `vd:"$>0"`

	// 已发出但尚未收到响应的请求数上限，默认 4。
	MaxPipelinedRequests int `vd:"$>0"`

	// 出站缓冲区的字节数上限，超出后暂停从请求正文读取，默认 64KB。
	MaxOutgoingData int `vd:"$>0"`

	// 是否打印协议警告，默认打印。
	PrintWarnings bool
}

// Apply 将指定的一组配置方法 opts 应用到配置项上。
func (o *HTTPClientStreamOptions) Apply(opts []HTTPClientStreamOption) {
	for _, opt := range opts {
		opt.F(o)
	}
}

// NewHTTPClientStreamOptions 创建基于给定配置函数的 HTTP 客户端流选项。
func NewHTTPClientStreamOptions(opts []HTTPClientStreamOption) *HTTPClientStreamOptions {
	options := &HTTPClientStreamOptions{
		MaxHeaderSize:        defaultMaxHeaderSize,
		MaxPipelinedRequests: defaultMaxPipelinedRequests,
		MaxOutgoingData:      defaultMaxOutgoingData,
		PrintWarnings:        true,
	}
	options.Apply(opts)
	return options
}

// HTTPServerStreamOption 是配置 HTTP 服务端流选项的唯一结构体。
type HTTPServerStreamOption struct {
	F func(o *HTTPServerStreamOptions)
}

// HTTPServerStreamOptions 是 HTTP 服务端流（单个接入连接）的选项。
type HTTPServerStreamOptions struct {
	// 请求标头的最大字节数，默认 16KB。
	MaxHeaderSize int `vd:"$>0"`

	// 已读取但尚未响应完毕的请求数上限，默认 4。
	MaxPipelinedRequests int `vd:"$>0"`

	// 出站缓冲区的字节数上限，默认 64KB。
	MaxOutgoingData int `vd:"$>0"`

	// 等待完整正文时允许的最大请求正文字节数，默认 4MB。
	MaxPostDataSize int `vd:"$>0"`

	// 是否在请求正文接收完整后才交给处理器，默认是。
	WaitForContent bool

	// 是否打印协议警告，默认打印。
	PrintWarnings bool
}

// Apply 将指定的一组配置方法 opts 应用到配置项上。
func (o *HTTPServerStreamOptions) Apply(opts []HTTPServerStreamOption) {
	for _, opt := range opts {
		opt.F(o)
	}
}

// NewHTTPServerStreamOptions 创建基于给定配置函数的 HTTP 服务端流选项。
func NewHTTPServerStreamOptions(opts []HTTPServerStreamOption) *HTTPServerStreamOptions {
	options := &HTTPServerStreamOptions{
		MaxHeaderSize:        defaultMaxHeaderSize,
		MaxPipelinedRequests: defaultMaxPipelinedRequests,
		MaxOutgoingData:      defaultMaxOutgoingData,
		MaxPostDataSize:      defaultMaxPostDataSize,
		WaitForContent:       true,
		PrintWarnings:        true,
	}
	options.Apply(opts)
	return options
}
