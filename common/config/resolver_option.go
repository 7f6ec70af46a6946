package config

import "time"

const (
	defaultLookupTimeout   = 5 * time.Second
	defaultCacheTTL        = 5 * time.Minute
	defaultNegativeTTL     = 30 * time.Second
	defaultMaxCacheEntries = 1024
)

// ResolverOption 是配置域名解析器选项的唯一结构体。
type ResolverOption struct {
	F func(o *ResolverOptions)
}

// ResolverOptions 是域名解析器的选项。
type ResolverOptions struct {
	// 单次查询的超时时间，默认 5s。
	Timeout time.Duration `vd:"$>0"`

	// 成功结果的缓存时长，0 表示不缓存，默认 5 分钟。
	CacheTTL time.Duration `vd:"$>=0"`

	// 失败结果（域名不存在）的缓存时长，0 表示不缓存，默认 30s。
	NegativeTTL time.Duration `vd:"$>=0"`

	// 缓存条目数上限，默认 1024。
	MaxCacheEntries int `vd:"$>0"`
}

// Apply 将指定的一组配置方法 opts 应用到配置项上。
func (o *ResolverOptions) Apply(opts []ResolverOption) {
	for _, opt := range opts {
		opt.F(o)
	}
}

// NewResolverOptions 创建基于给定配置函数的解析器选项。
func NewResolverOptions(opts []ResolverOption) *ResolverOptions {
	options := &ResolverOptions{
		Timeout:         defaultLookupTimeout,
		CacheTTL:        defaultCacheTTL,
		NegativeTTL:     defaultNegativeTTL,
		MaxCacheEntries: defaultMaxCacheEntries,
	}
	options.Apply(opts)
	return options
}
