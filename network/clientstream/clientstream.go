// Package clientstream 管理单个出站 TCP 或 Unix 域连接的生命周期：
// 域名解析、非阻塞连接、失败后定时重连以及闲置断开，并以 Source/Sink 的形式对外提供读写。
package clientstream

import (
	"io"
	"net/netip"
	"time"

	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/favbox/dsk/common/buffer"
	"github.com/favbox/dsk/common/config"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/common/hlog"
	"github.com/favbox/dsk/network/dispatch"
	"github.com/favbox/dsk/network/dns"
	"github.com/favbox/dsk/network/octet"
	"golang.org/x/sys/unix"
)

// State 是连接状态。
type State int

const (
	StateUnresolved State = iota
	StateResolving
	StateConnecting
	StateConnected
	StateDisconnected
)

var stateNames = [...]string{"unresolved", "resolving", "connecting", "connected", "disconnected"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ClientStream 是一条可自动重连的出站连接。
//
// 未连接时读写返回 errors.ErrAgain，连接建立后对应钩子被通知。
// 不会再重连（未配置重连且已断开）时读写返回 errors.ErrNotConnected。
// 已建立的连接断开后，读方向返回 io.EOF，直到发起下一次连接。
type ClientStream struct {
	d        *dispatch.Dispatcher
	opts     *config.ClientStreamOptions
	resolver dns.Resolver

	state State
	fd    int
	sa    unix.Sockaddr // 数字地址或 Unix 路径时固定
	gen   uint64        // 每次发起连接递增，丢弃过期的解析结果

	readable  *octet.Hook
	writable  *octet.Hook
	errorHook *octet.Hook

	latestError error

	reconnectTimer *dispatch.Timer
	connectTimer   *dispatch.Timer
	idleTimer      *dispatch.Timer
	idleClosed     bool // 因闲置断开，有读写需求时再连接
	readEOF        bool // 上一条连接已断开，读方向报告 io.EOF

	readShut  bool
	writeShut bool
	closed    bool
}

// New 创建并立即开始连接。r 为 nil 时使用绑定到 d 的解析器。
func New(d *dispatch.Dispatcher, r dns.Resolver, opts ...config.ClientStreamOption) (*ClientStream, error) {
	options := config.NewClientStreamOptions(opts)
	if err := config.ValidateClientStream(options); err != nil {
		return nil, err
	}

	s := &ClientStream{
		d:         d,
		opts:      options,
		resolver:  r,
		fd:        -1,
		readable:  octet.NewHook(d),
		writable:  octet.NewHook(d),
		errorHook: octet.NewHook(d),
	}
	s.readable.SetCallbacks(s.onDemand, s.updateWatch)
	s.writable.SetCallbacks(s.onDemand, s.updateWatch)

	switch {
	case options.Path != "":
		s.sa = &unix.SockaddrUnix{Name: options.Path}
	case options.Address != "":
		ip, err := netip.ParseAddr(options.Address)
		if err != nil {
			return nil, errs.NewConfigf("无效的地址 %q", options.Address)
		}
		s.sa = sockaddr(ip, options.Port)
	default:
		if ip, err := netip.ParseAddr(options.Hostname); err == nil {
			s.sa = sockaddr(ip, options.Port)
		}
	}

	if s.sa == nil && s.resolver == nil {
		if dispatch.IsDefault(d) {
			s.resolver = dns.Default()
		} else {
			res, err := dns.NewResolver(d)
			if err != nil {
				return nil, err
			}
			s.resolver = res
		}
	}

	s.begin()
	return s, nil
}

func sockaddr(ip netip.Addr, port int) unix.Sockaddr {
	ip = ip.Unmap()
	if ip.Is4() {
		return &unix.SockaddrInet4{Port: port, Addr: ip.As4()}
	}
	return &unix.SockaddrInet6{Port: port, Addr: ip.As16()}
}

// State 返回当前状态。
func (s *ClientStream) State() State {
	return s.state
}

// IsConnected 报告连接是否已建立。
func (s *ClientStream) IsConnected() bool {
	return s.state == StateConnected
}

// Options 返回连接选项。
func (s *ClientStream) Options() *config.ClientStreamOptions {
	return s.opts
}

// LatestError 返回最近一次失败的原因。
func (s *ClientStream) LatestError() error {
	return s.latestError
}

// ErrorHook 在连接、解析或读写失败时被通知，失败原因见 LatestError。
func (s *ClientStream) ErrorHook() *octet.Hook {
	return s.errorHook
}

// Source 返回读方向。
func (s *ClientStream) Source() octet.Source {
	return streamSource{s}
}

// Sink 返回写方向。
func (s *ClientStream) Sink() octet.Sink {
	return streamSink{s}
}

func (s *ClientStream) name() string {
	switch {
	case s.opts.Path != "":
		return s.opts.Path
	case s.opts.Hostname != "":
		return s.opts.Hostname
	}
	return s.opts.Address
}

// 开始一次连接尝试。
func (s *ClientStream) begin() {
	if s.closed {
		return
	}
	s.gen++
	s.idleClosed = false
	s.readEOF = false
	if s.sa != nil {
		s.connect(s.sa)
		return
	}

	s.state = StateResolving
	gen := s.gen
	s.resolver.Lookup(s.opts.Hostname, s.opts.IPv6, func(res *dns.Result) {
		if gen != s.gen || s.closed || s.state != StateResolving {
			return
		}
		if err := res.Err(s.opts.Hostname); err != nil {
			s.fail(err)
			return
		}
		s.connect(sockaddr(res.Addr(), s.opts.Port))
	})
}

func (s *ClientStream) connect(sa unix.Sockaddr) {
	family := unix.AF_INET
	switch sa.(type) {
	case *unix.SockaddrUnix:
		family = unix.AF_UNIX
	case *unix.SockaddrInet6:
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		s.fail(errs.NewIO("socket", err))
		return
	}
	unix.CloseOnExec(fd)
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		s.fail(errs.NewIO("set nonblock", err))
		return
	}
	if family != unix.AF_UNIX {
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}

	err = unix.Connect(fd, sa)
	switch err {
	case nil:
		s.fd = fd
		s.onConnected()
	case unix.EINPROGRESS, unix.EAGAIN, unix.EINTR:
		s.fd = fd
		s.state = StateConnecting
		s.d.WatchFD(fd, dispatch.EventRead|dispatch.EventWrite, s.onConnectReady)
		if s.opts.ConnectTimeout > 0 {
			s.connectTimer = s.d.AddTimer(s.opts.ConnectTimeout, func() {
				s.connectTimer = nil
				s.closeFD()
				s.fail(errs.New(errs.ErrTimeout, errs.ErrorTypeIO, "connect "+s.name()))
			})
		}
	default:
		unix.Close(fd)
		s.fail(errs.NewIO("connect "+s.name(), err))
	}
}

func (s *ClientStream) onConnectReady(fd int, _ dispatch.Events) {
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil {
		if soerr == 0 {
			s.onConnected()
			return
		}
		err = unix.Errno(soerr)
		if err == unix.EINPROGRESS {
			return
		}
	}
	s.closeFD()
	s.fail(errs.NewIO("connect "+s.name(), err))
}

func (s *ClientStream) onConnected() {
	s.state = StateConnected
	if s.connectTimer != nil {
		s.connectTimer.Remove()
		s.connectTimer = nil
	}
	if s.opts.IdleDisconnectTime > 0 {
		s.idleTimer = s.d.AddTimer(s.opts.IdleDisconnectTime, s.onIdle)
	}
	// 连接期间的监听由本流占用，此处换成按钩子需求监听
	s.d.WatchFD(s.fd, dispatch.EventNone, nil)
	s.updateWatch()
}

func (s *ClientStream) onIdle() {
	s.idleTimer = nil
	hlog.SystemLogger().Debugf("连接 %s 闲置超时，断开", s.name())
	s.latestError = errs.ErrIdleTimeout
	s.drop()
	s.idleClosed = true
	s.notifyDropped()
	// 仍有读写方等待时立即重连
	if s.idleClosed && (s.readable.IsTrapped() || s.writable.IsTrapped()) {
		s.begin()
	}
}

// 断开连接。断开的是已建立的连接时，读方向此后看到 io.EOF。
func (s *ClientStream) drop() {
	if s.state == StateConnected {
		s.readEOF = true
	}
	s.closeFD()
	s.state = StateDisconnected
}

// 唤醒等待中的读写方和错误钩子，让它们看到断开。
func (s *ClientStream) notifyDropped() {
	s.errorHook.Notify()
	s.readable.Notify()
	s.writable.Notify()
}

// 重置闲置计时。
func (s *ClientStream) ping() {
	if s.idleTimer != nil {
		s.d.AdjustTimer(s.idleTimer, s.opts.IdleDisconnectTime)
	}
}

// 钩子上出现第一个陷阱：因闲置断开时按需重连。
func (s *ClientStream) onDemand() {
	if s.idleClosed && s.state == StateDisconnected {
		s.begin()
		return
	}
	s.updateWatch()
}

func (s *ClientStream) updateWatch() {
	if s.state != StateConnected {
		return
	}
	ev := dispatch.EventNone
	if s.readable.IsTrapped() {
		ev |= dispatch.EventRead
	}
	if s.writable.IsTrapped() {
		ev |= dispatch.EventWrite
	}
	s.d.WatchFD(s.fd, ev, s.onReady)
}

func (s *ClientStream) onReady(_ int, ev dispatch.Events) {
	if ev&dispatch.EventRead != 0 {
		s.readable.Notify()
	}
	if ev&dispatch.EventWrite != 0 && s.state == StateConnected {
		s.writable.Notify()
	}
}

func (s *ClientStream) closeFD() {
	if s.connectTimer != nil {
		s.connectTimer.Remove()
		s.connectTimer = nil
	}
	if s.idleTimer != nil {
		s.idleTimer.Remove()
		s.idleTimer = nil
	}
	if s.fd >= 0 {
		s.d.FDClosed(s.fd)
		unix.Close(s.fd)
		s.fd = -1
	}
}

// 记录失败并断开，按配置安排重连。
func (s *ClientStream) fail(err error) {
	hlog.SystemLogger().Debugf("连接 %s 失败: %v", s.name(), err)
	s.latestError = err
	s.closeFD()
	s.state = StateDisconnected
	s.scheduleReconnect()
	s.errorHook.Notify()
	if s.reconnectTimer == nil {
		// 不会再连接，让等待中的读写方看到 ErrNotConnected
		s.readable.Notify()
		s.writable.Notify()
	}
}

func (s *ClientStream) scheduleReconnect() {
	if s.closed || s.opts.ReconnectInterval < 0 || s.reconnectTimer != nil {
		return
	}
	delay := s.opts.ReconnectInterval
	if delay > 0 {
		delay += time.Duration(fastrand.Int63n(int64(delay/8) + 1))
	}
	hlog.SystemLogger().Tracef("%v 后重连 %s", delay, s.name())
	s.reconnectTimer = s.d.AddTimer(delay, func() {
		s.reconnectTimer = nil
		s.begin()
	})
}

// 连接被对端关闭或读写出错。
func (s *ClientStream) lost(err error) {
	if err == io.EOF {
		s.drop()
		s.scheduleReconnect()
		s.writable.Notify()
		return
	}
	s.fail(err)
}

// Disconnect 断开当前连接，按配置安排重连。
func (s *ClientStream) Disconnect() {
	if s.closed {
		return
	}
	s.gen++
	s.latestError = errs.New(errs.ErrConnectionClosed, errs.ErrorTypeIO, "disconnect "+s.name())
	s.drop()
	s.scheduleReconnect()
	s.notifyDropped()
}

// Reconnect 断开当前连接（如有）并立即重新连接。
func (s *ClientStream) Reconnect() {
	if s.closed {
		return
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Remove()
		s.reconnectTimer = nil
	}
	s.drop()
	s.readable.Notify()
	s.begin()
}

// Close 永久关闭，清除所有钩子。
func (s *ClientStream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Remove()
		s.reconnectTimer = nil
	}
	s.closeFD()
	s.state = StateDisconnected
	s.readable.Clear()
	s.writable.Clear()
	s.errorHook.Clear()
}

// 未连接时读写的返回值。
func (s *ClientStream) notReady() error {
	if s.closed {
		return errs.ErrStreamShutdown
	}
	if s.state == StateDisconnected && s.reconnectTimer == nil && !s.idleClosed {
		return errs.ErrNotConnected
	}
	return errs.ErrAgain
}

func (s *ClientStream) read(p []byte) (int, error) {
	if s.readShut {
		return 0, errs.ErrStreamShutdown
	}
	if s.state != StateConnected {
		if s.readEOF && !s.closed {
			return 0, io.EOF
		}
		return 0, s.notReady()
	}
	n, err := unix.Read(s.fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, errs.ErrAgain
	case err != nil:
		e := errs.NewIO("read", err)
		s.lost(e)
		return 0, e
	case n == 0 && len(p) > 0:
		s.lost(io.EOF)
		return 0, io.EOF
	}
	s.ping()
	return n, nil
}

func (s *ClientStream) readBuffer(b *buffer.Buffer) (int, error) {
	if s.readShut {
		return 0, errs.ErrStreamShutdown
	}
	if s.state != StateConnected {
		if s.readEOF && !s.closed {
			return 0, io.EOF
		}
		return 0, s.notReady()
	}
	n, err := b.ReadvFrom(s.fd)
	switch {
	case err == errs.ErrAgain:
		return 0, err
	case err == io.EOF:
		s.lost(io.EOF)
		return 0, io.EOF
	case err != nil:
		e := errs.NewIO("readv", err)
		s.lost(e)
		return 0, e
	}
	s.ping()
	return n, nil
}

func (s *ClientStream) write(p []byte) (int, error) {
	if s.writeShut {
		return 0, errs.ErrStreamShutdown
	}
	if s.state != StateConnected {
		return 0, s.notReady()
	}
	n, err := unix.Write(s.fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, errs.ErrAgain
	case err != nil:
		e := errs.NewIO("write", err)
		s.lost(e)
		return 0, e
	}
	s.ping()
	return n, nil
}

func (s *ClientStream) writeBuffer(b *buffer.Buffer) (int, error) {
	if s.writeShut {
		return 0, errs.ErrStreamShutdown
	}
	if s.state != StateConnected {
		return 0, s.notReady()
	}
	n, err := b.WritevTo(s.fd)
	switch {
	case err == errs.ErrAgain:
		return 0, err
	case err != nil:
		e := errs.NewIO("writev", err)
		s.lost(e)
		return 0, e
	}
	s.ping()
	return n, nil
}

func (s *ClientStream) shutdownRead() {
	if s.readShut {
		return
	}
	s.readShut = true
	s.readable.Clear()
	if s.fd >= 0 {
		unix.Shutdown(s.fd, unix.SHUT_RD)
	}
	if s.writeShut {
		s.Close()
	}
}

func (s *ClientStream) shutdownWrite() {
	if s.writeShut {
		return
	}
	s.writeShut = true
	s.writable.Clear()
	if s.fd >= 0 {
		unix.Shutdown(s.fd, unix.SHUT_WR)
	}
	if s.readShut {
		s.Close()
	}
}

type streamSource struct{ s *ClientStream }

func (src streamSource) Read(p []byte) (int, error)               { return src.s.read(p) }
func (src streamSource) ReadBuffer(b *buffer.Buffer) (int, error) { return src.s.readBuffer(b) }
func (src streamSource) Shutdown()                                { src.s.shutdownRead() }
func (src streamSource) ReadableHook() *octet.Hook                { return src.s.readable }

type streamSink struct{ s *ClientStream }

func (snk streamSink) Write(p []byte) (int, error)               { return snk.s.write(p) }
func (snk streamSink) WriteBuffer(b *buffer.Buffer) (int, error) { return snk.s.writeBuffer(b) }
func (snk streamSink) Shutdown()                                 { snk.s.shutdownWrite() }
func (snk streamSink) WritableHook() *octet.Hook                 { return snk.s.writable }
