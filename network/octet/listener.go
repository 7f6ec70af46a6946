package octet

import (
	"net/netip"

	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/network/dispatch"
	"golang.org/x/sys/unix"
)

// 单个 Unix 域套接字路径的最大长度（不含结尾 NUL）。
const MaxUnixPathLen = 107

// BindInfo 描述监听套接字绑定的地址，TCP 监听时 Path 为空，Unix 监听时 Port 为 0。
type BindInfo struct {
	Port int
	Path string
}

// Listener 是非阻塞的监听套接字，新连接到达时通知其可读钩子。
type Listener struct {
	d    *dispatch.Dispatcher
	fd   int
	bind BindInfo

	readable *Hook
}

// ListenTCP 在 address:port 上监听，address 为空时监听所有 IPv4 地址，port 为 0 时由内核分配。
func ListenTCP(d *dispatch.Dispatcher, address string, port int) (*Listener, error) {
	if port < 0 || port > 65535 {
		return nil, errs.NewConfigf("端口 %d 超出范围", port)
	}
	var (
		family = unix.AF_INET
		sa     unix.Sockaddr
	)
	if address == "" {
		sa = &unix.SockaddrInet4{Port: port}
	} else {
		ip, err := netip.ParseAddr(address)
		if err != nil {
			return nil, errs.NewConfigf("无效的监听地址 %q", address)
		}
		if ip.Is4() {
			sa = &unix.SockaddrInet4{Port: port, Addr: ip.As4()}
		} else {
			family = unix.AF_INET6
			sa = &unix.SockaddrInet6{Port: port, Addr: ip.As16()}
		}
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errs.NewIO("socket", err)
	}
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	return listen(d, fd, sa, BindInfo{Port: port})
}

// ListenUnix 在 Unix 域套接字路径 path 上监听，已存在的同名文件会被删除。
func ListenUnix(d *dispatch.Dispatcher, path string) (*Listener, error) {
	if path == "" || len(path) > MaxUnixPathLen {
		return nil, errs.NewConfigf("无效的 Unix 套接字路径 %q", path)
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errs.NewIO("socket", err)
	}
	if err = unix.Unlink(path); err != nil && err != unix.ENOENT {
		unix.Close(fd)
		return nil, errs.NewIO("unlink "+path, err)
	}
	return listen(d, fd, &unix.SockaddrUnix{Name: path}, BindInfo{Path: path})
}

func listen(d *dispatch.Dispatcher, fd int, sa unix.Sockaddr, bind BindInfo) (*Listener, error) {
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errs.NewIO("set nonblock", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errs.NewIO("bind", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, errs.NewIO("listen", err)
	}

	// 端口为 0 时取内核分配的端口
	if bind.Path == "" && bind.Port == 0 {
		if got, err := unix.Getsockname(fd); err == nil {
			switch a := got.(type) {
			case *unix.SockaddrInet4:
				bind.Port = a.Port
			case *unix.SockaddrInet6:
				bind.Port = a.Port
			}
		}
	}

	l := &Listener{d: d, fd: fd, bind: bind, readable: NewHook(d)}
	l.readable.SetCallbacks(l.updateWatch, l.updateWatch)
	return l, nil
}

// Bind 返回监听地址信息。
func (l *Listener) Bind() BindInfo {
	return l.bind
}

// ReadableHook 在有新连接待接受时被通知。
func (l *Listener) ReadableHook() *Hook {
	return l.readable
}

func (l *Listener) updateWatch() {
	if l.fd < 0 {
		return
	}
	if l.readable.IsTrapped() {
		l.d.WatchFD(l.fd, dispatch.EventRead, func(int, dispatch.Events) { l.readable.Notify() })
	} else {
		l.d.WatchFD(l.fd, dispatch.EventNone, nil)
	}
}

// Accept 接受一个连接。没有待接受的连接时返回 errors.ErrAgain。
func (l *Listener) Accept() (*FDStream, error) {
	if l.fd < 0 {
		return nil, errs.ErrStreamShutdown
	}
	fd, _, err := unix.Accept(l.fd)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR || err == unix.ECONNABORTED:
		return nil, errs.ErrAgain
	case err != nil:
		return nil, errs.NewIO("accept", err)
	}
	unix.CloseOnExec(fd)
	s, err := NewFDStream(l.d, fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// Close 停止监听。Unix 域套接字文件会被删除。
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	fd := l.fd
	l.fd = -1
	l.readable.Clear()
	l.d.FDClosed(fd)
	if l.bind.Path != "" {
		unix.Unlink(l.bind.Path)
	}
	return unix.Close(fd)
}
