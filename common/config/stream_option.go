package config

import (
	"time"
)

// ClientStreamOption 是配置客户端流选项的唯一结构体。
type ClientStreamOption struct {
	F func(o *ClientStreamOptions)
}

// ClientStreamOptions 是单个出站连接的选项。
//
// Hostname、Address、Path 三者必须且只能设置一个：
// Hostname 需经域名解析，Address 为数字地址，Path 为 Unix 域套接字路径。
type ClientStreamOptions struct {
	Hostname string
	Address  string
	Path     string

	// TCP 端口，使用 Path 时忽略。
	Port int `vd:"$>=0&&$<=65535"`

	// 断开后自动重连的间隔，负数表示不重连，默认不重连。
	ReconnectInterval time.Duration

	// 连接闲置超过此时长则断开，非正数表示不限，默认不限。
	IdleDisconnectTime time.Duration

	// 解析域名时查询 IPv6 地址。
	IPv6 bool

	// 非阻塞连接的超时时间，非正数表示不限，默认不限。
	ConnectTimeout time.Duration
}

// Apply 将指定的一组配置方法 opts 应用到配置项上。
func (o *ClientStreamOptions) Apply(opts []ClientStreamOption) {
	for _, opt := range opts {
		opt.F(o)
	}
}

// NewClientStreamOptions 创建基于给定配置函数的客户端流选项。
func NewClientStreamOptions(opts []ClientStreamOption) *ClientStreamOptions {
	options := &ClientStreamOptions{
		ReconnectInterval:  Disabled,
		IdleDisconnectTime: Disabled,
		ConnectTimeout:     Disabled,
	}
	options.Apply(opts)
	return options
}
