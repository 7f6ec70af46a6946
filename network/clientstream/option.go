package clientstream

import (
	"time"

	"github.com/favbox/dsk/common/config"
)

// WithHostname 指定需经域名解析的主机名。
func WithHostname(name string) config.ClientStreamOption {
	return config.ClientStreamOption{F: func(o *config.ClientStreamOptions) {
		o.Hostname = name
	}}
}

// WithAddress 指定数字 IP 地址。
func WithAddress(addr string) config.ClientStreamOption {
	return config.ClientStreamOption{F: func(o *config.ClientStreamOptions) {
		o.Address = addr
	}}
}

// WithPath 指定 Unix 域套接字路径。
func WithPath(path string) config.ClientStreamOption {
	return config.ClientStreamOption{F: func(o *config.ClientStreamOptions) {
		o.Path = path
	}}
}

// WithPort 指定 TCP 端口。
func WithPort(port int) config.ClientStreamOption {
	return config.ClientStreamOption{F: func(o *config.ClientStreamOptions) {
		o.Port = port
	}}
}

// WithReconnectInterval 设置断开后的重连间隔。默认不重连。
func WithReconnectInterval(d time.Duration) config.ClientStreamOption {
	return config.ClientStreamOption{F: func(o *config.ClientStreamOptions) {
		o.ReconnectInterval = d
	}}
}

// WithIdleDisconnectTime 设置闲置断开时间。默认不断开。
//
// 因闲置断开后，读写钩子上再次出现陷阱时自动重新连接。
func WithIdleDisconnectTime(d time.Duration) config.ClientStreamOption {
	return config.ClientStreamOption{F: func(o *config.ClientStreamOptions) {
		o.IdleDisconnectTime = d
	}}
}

// WithIPv6 解析主机名时使用 IPv6 地址。
func WithIPv6(on bool) config.ClientStreamOption {
	return config.ClientStreamOption{F: func(o *config.ClientStreamOptions) {
		o.IPv6 = on
	}}
}

// WithConnectTimeout 设置连接超时。默认不限。
func WithConnectTimeout(d time.Duration) config.ClientStreamOption {
	return config.ClientStreamOption{F: func(o *config.ClientStreamOptions) {
		o.ConnectTimeout = d
	}}
}
