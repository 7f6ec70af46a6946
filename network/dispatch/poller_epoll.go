//go:build linux

package dispatch

import "golang.org/x/sys/unix"

type epoller struct {
	epfd   int
	events [maxReadyEvents]unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epoller{epfd: epfd}, nil
}

func epollEvents(e Events) uint32 {
	var ev uint32
	if e&EventRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if e&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epoller) control(fd int, old, new Events) error {
	switch {
	case new == EventNone:
		err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		if err == unix.ENOENT || err == unix.EBADF {
			return nil
		}
		return err
	case old == EventNone:
		ev := unix.EpollEvent{Events: epollEvents(new), Fd: int32(fd)}
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	default:
		ev := unix.EpollEvent{Events: epollEvents(new), Fd: int32(fd)}
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
}

func (p *epoller) wait(msec int, ready []readyEvent) ([]readyEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.events[:], msec)
	if err != nil {
		return ready, err
	}
	for i := 0; i < n; i++ {
		ev := p.events[i].Events
		var e Events
		// 错误与挂断同时视为可读可写，由回调在读写时发现具体错误。
		if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			e = EventRead | EventWrite
		}
		if ev&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLPRI) != 0 {
			e |= EventRead
		}
		if ev&unix.EPOLLOUT != 0 {
			e |= EventWrite
		}
		ready = append(ready, readyEvent{fd: int(p.events[i].Fd), events: e})
	}
	return ready, nil
}

func (p *epoller) close() error {
	return unix.Close(p.epfd)
}

func wakePipe() (r, w int, err error) {
	var fds [2]int
	if err = unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}
