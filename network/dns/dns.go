// Package dns 提供异步的域名解析服务。
//
// 查询在后台 goroutine 中通过系统解析器执行，结果经 Dispatcher.Post 交回事件循环，
// 因此回调总在分发器的 goroutine 中执行，且从不在 Lookup 调用内部执行。
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/favbox/dsk/common/config"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/common/hlog"
	"github.com/favbox/dsk/network/dispatch"
	"golang.org/x/sync/singleflight"
)

// Status 是一次查询的结果状态。
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusTimeout
	StatusBadResponse
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not found"
	case StatusTimeout:
		return "timeout"
	case StatusBadResponse:
		return "bad response"
	}
	return "unknown"
}

// Result 是一次查询的结果。
type Result struct {
	Status  Status
	Addrs   []netip.Addr
	Message string // StatusBadResponse 时的说明
}

// Addr 返回第一个地址。
func (r *Result) Addr() netip.Addr {
	if len(r.Addrs) == 0 {
		return netip.Addr{}
	}
	return r.Addrs[0]
}

// Err 将失败的结果转换为错误，成功时返回 nil。
func (r *Result) Err(name string) error {
	switch r.Status {
	case StatusFound:
		return nil
	case StatusNotFound:
		return errs.New(errs.ErrNameNotFound, errs.ErrorTypeDNS, name)
	case StatusTimeout:
		return errs.New(errs.ErrTimeout, errs.ErrorTypeDNS, name)
	}
	return errs.New(errs.ErrBadResponse, errs.ErrorTypeDNS, name+": "+r.Message)
}

// Func 接收查询结果。
type Func func(*Result)

// Resolver 是异步的名称到地址查询服务。
type Resolver interface {
	// Lookup 查询 name 的 IPv4（ipv6 为 true 时为 IPv6）地址，完成后调用 fn。
	Lookup(name string, ipv6 bool, fn Func)
}

// LookupFunc 执行实际的阻塞查询，network 为 "ip4" 或 "ip6"。
type LookupFunc func(ctx context.Context, network, host string) ([]netip.Addr, error)

// 跨分发器合并同一名称的并发查询。键以查询函数的归属为前缀，
// 使用系统解析器的实例之间共享，自定义了查询函数的实例各自独立。
var group singleflight.Group

const systemFlight = "sys/"

type cacheKey struct {
	name string
	ipv6 bool
}

type cacheEntry struct {
	result  *Result
	expires time.Time
}

// 同一名称同一地址族的进行中查询，完成时按序回调。
type job struct {
	fns []Func
}

// StubResolver 是带缓存的 Resolver 实现。
type StubResolver struct {
	d      *dispatch.Dispatcher
	opts   *config.ResolverOptions
	lookup LookupFunc
	flight string // group 键前缀

	cache map[cacheKey]*cacheEntry
	jobs  map[cacheKey]*job
}

var _ Resolver = (*StubResolver)(nil)

// NewResolver 创建绑定到分发器 d 的解析器。
func NewResolver(d *dispatch.Dispatcher, opts ...config.ResolverOption) (*StubResolver, error) {
	options := config.NewResolverOptions(opts)
	if err := config.Validate(options); err != nil {
		return nil, err
	}
	return &StubResolver{
		d:      d,
		opts:   options,
		lookup: net.DefaultResolver.LookupNetIP,
		flight: systemFlight,
		cache:  make(map[cacheKey]*cacheEntry),
		jobs:   make(map[cacheKey]*job),
	}, nil
}

var (
	defaultOnce     sync.Once
	defaultResolver *StubResolver
)

// Default 返回绑定到默认分发器的解析器。
func Default() *StubResolver {
	defaultOnce.Do(func() {
		// 默认选项总能通过校验
		defaultResolver, _ = NewResolver(dispatch.Default())
	})
	return defaultResolver
}

// SetLookupFunc 替换实际执行查询的函数。
func (r *StubResolver) SetLookupFunc(fn LookupFunc) {
	r.lookup = fn
	r.flight = fmt.Sprintf("%p/", r)
}

// Lookup 实现 Resolver。数字地址直接返回，不经查询。
func (r *StubResolver) Lookup(name string, ipv6 bool, fn Func) {
	if ip, err := netip.ParseAddr(name); err == nil {
		res := &Result{Status: StatusFound, Addrs: []netip.Addr{ip.Unmap()}}
		r.d.AddIdle(func() { fn(res) })
		return
	}

	key := cacheKey{name: name, ipv6: ipv6}
	if e, ok := r.cache[key]; ok {
		if time.Now().Before(e.expires) {
			res := e.result
			r.d.AddIdle(func() { fn(res) })
			return
		}
		delete(r.cache, key)
	}

	if j, ok := r.jobs[key]; ok {
		j.fns = append(j.fns, fn)
		return
	}
	r.jobs[key] = &job{fns: []Func{fn}}

	network := "ip4"
	if ipv6 {
		network = "ip6"
	}
	lookup := r.lookup
	flight := r.flight + network + "/" + name
	timeout := r.opts.Timeout
	go func() {
		v, err, _ := group.Do(flight, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return lookup(ctx, network, name)
		})
		addrs, _ := v.([]netip.Addr)
		res := toResult(addrs, err)
		r.d.Post(func() { r.finish(key, res) })
	}()
}

func toResult(addrs []netip.Addr, err error) *Result {
	if err != nil {
		var dnsErr *net.DNSError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return &Result{Status: StatusTimeout}
		case errors.As(err, &dnsErr) && dnsErr.IsTimeout:
			return &Result{Status: StatusTimeout}
		case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
			return &Result{Status: StatusNotFound}
		}
		return &Result{Status: StatusBadResponse, Message: err.Error()}
	}
	if len(addrs) == 0 {
		return &Result{Status: StatusNotFound}
	}
	out := make([]netip.Addr, len(addrs))
	for i, a := range addrs {
		out[i] = a.Unmap()
	}
	return &Result{Status: StatusFound, Addrs: out}
}

func (r *StubResolver) finish(key cacheKey, res *Result) {
	j := r.jobs[key]
	delete(r.jobs, key)

	var ttl time.Duration
	switch res.Status {
	case StatusFound:
		ttl = r.opts.CacheTTL
	case StatusNotFound:
		ttl = r.opts.NegativeTTL
	}
	if ttl > 0 {
		r.store(key, res, ttl)
	}
	if res.Status != StatusFound {
		hlog.SystemLogger().Debugf("解析 %s 失败: %s", key.name, res.Status)
	}

	if j == nil {
		return
	}
	for _, fn := range j.fns {
		fn(res)
	}
}

func (r *StubResolver) store(key cacheKey, res *Result, ttl time.Duration) {
	now := time.Now()
	if len(r.cache) >= r.opts.MaxCacheEntries {
		for k, e := range r.cache {
			if !now.Before(e.expires) {
				delete(r.cache, k)
			}
		}
		// 仍然满时随机淘汰一个
		for k := range r.cache {
			if len(r.cache) < r.opts.MaxCacheEntries {
				break
			}
			delete(r.cache, k)
		}
	}
	r.cache[key] = &cacheEntry{result: res, expires: now.Add(ttl)}
}

// Flush 清空缓存。
func (r *StubResolver) Flush() {
	for k := range r.cache {
		delete(r.cache, k)
	}
}
