//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package dispatch

import "golang.org/x/sys/unix"

// 基于 poll(2) 的后端，每次等待时由关注集合重建描述符数组。
type pollPoller struct {
	interest map[int]Events
	fds      []unix.PollFd
}

func newPoller() (poller, error) {
	return &pollPoller{interest: make(map[int]Events)}, nil
}

func (p *pollPoller) control(fd int, _, new Events) error {
	if new == EventNone {
		delete(p.interest, fd)
	} else {
		p.interest[fd] = new
	}
	return nil
}

func (p *pollPoller) wait(msec int, ready []readyEvent) ([]readyEvent, error) {
	p.fds = p.fds[:0]
	for fd, e := range p.interest {
		var ev int16
		if e&EventRead != 0 {
			ev |= unix.POLLIN
		}
		if e&EventWrite != 0 {
			ev |= unix.POLLOUT
		}
		p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: ev})
	}
	n, err := unix.Poll(p.fds, msec)
	if err != nil || n <= 0 {
		return ready, err
	}
	for _, pfd := range p.fds {
		if pfd.Revents == 0 {
			continue
		}
		var e Events
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			e = EventRead | EventWrite
		}
		if pfd.Revents&unix.POLLIN != 0 {
			e |= EventRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			e |= EventWrite
		}
		ready = append(ready, readyEvent{fd: int(pfd.Fd), events: e})
		if len(ready) == maxReadyEvents {
			break
		}
	}
	return ready, nil
}

func (p *pollPoller) close() error {
	return nil
}

func wakePipe() (r, w int, err error) {
	var fds [2]int
	if err = unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err = unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return -1, -1, err
		}
	}
	return fds[0], fds[1], nil
}
