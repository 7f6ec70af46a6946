package octet

import (
	"io"

	"github.com/favbox/dsk/common/buffer"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/network/dispatch"
	"golang.org/x/sys/unix"
)

// FDStream 是基于非阻塞描述符（套接字或管道）的双向字节流。
//
// 可读、可写钩子上的陷阱决定分发器上对该描述符的监听事件。
// 两个方向都半关闭后描述符被关闭。
type FDStream struct {
	d  *dispatch.Dispatcher
	fd int

	readable *Hook
	writable *Hook

	readShut  bool
	writeShut bool
}

// NewFDStream 接管描述符 fd 并将其设为非阻塞。
func NewFDStream(d *dispatch.Dispatcher, fd int) (*FDStream, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errs.NewIO("set nonblock", err)
	}
	s := &FDStream{
		d:        d,
		fd:       fd,
		readable: NewHook(d),
		writable: NewHook(d),
	}
	s.readable.SetCallbacks(s.updateWatch, s.updateWatch)
	s.writable.SetCallbacks(s.updateWatch, s.updateWatch)
	return s, nil
}

// FD 返回底层描述符，关闭后为 -1。
func (s *FDStream) FD() int {
	return s.fd
}

// Source 返回读方向。
func (s *FDStream) Source() Source {
	return fdSource{s}
}

// Sink 返回写方向。
func (s *FDStream) Sink() Sink {
	return fdSink{s}
}

func (s *FDStream) updateWatch() {
	if s.fd < 0 {
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

func (s *FDStream) onReady(_ int, ev dispatch.Events) {
	if ev&dispatch.EventRead != 0 {
		s.readable.Notify()
	}
	// 可读回调可能已关闭本流
	if ev&dispatch.EventWrite != 0 && s.fd >= 0 {
		s.writable.Notify()
	}
}

func (s *FDStream) read(p []byte) (int, error) {
	if s.fd < 0 || s.readShut {
		return 0, errs.ErrStreamShutdown
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Read(s.fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, errs.ErrAgain
	case err != nil:
		return 0, errs.NewIO("read", err)
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

func (s *FDStream) readBuffer(b *buffer.Buffer) (int, error) {
	if s.fd < 0 || s.readShut {
		return 0, errs.ErrStreamShutdown
	}
	n, err := b.ReadvFrom(s.fd)
	if err != nil && err != errs.ErrAgain && err != io.EOF {
		return 0, errs.NewIO("readv", err)
	}
	return n, err
}

func (s *FDStream) write(p []byte) (int, error) {
	if s.fd < 0 || s.writeShut {
		return 0, errs.ErrStreamShutdown
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Write(s.fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, errs.ErrAgain
	case err != nil:
		return 0, errs.NewIO("write", err)
	}
	return n, nil
}

func (s *FDStream) writeBuffer(b *buffer.Buffer) (int, error) {
	if s.fd < 0 || s.writeShut {
		return 0, errs.ErrStreamShutdown
	}
	n, err := b.WritevTo(s.fd)
	if err != nil && err != errs.ErrAgain {
		return 0, errs.NewIO("writev", err)
	}
	return n, err
}

// 非套接字描述符不支持 shutdown(2)，其错误忽略。
func (s *FDStream) shutdownRead() {
	if s.readShut {
		return
	}
	s.readShut = true
	s.readable.Clear()
	if s.fd >= 0 {
		unix.Shutdown(s.fd, unix.SHUT_RD)
	}
	s.closeIfDone()
}

func (s *FDStream) shutdownWrite() {
	if s.writeShut {
		return
	}
	s.writeShut = true
	s.writable.Clear()
	if s.fd >= 0 {
		unix.Shutdown(s.fd, unix.SHUT_WR)
	}
	s.closeIfDone()
}

func (s *FDStream) closeIfDone() {
	if s.readShut && s.writeShut {
		s.Close()
	}
}

// Close 立即关闭描述符并清除两个钩子。
func (s *FDStream) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	s.readShut, s.writeShut = true, true
	s.readable.Clear()
	s.writable.Clear()
	s.d.FDClosed(fd)
	return unix.Close(fd)
}

type fdSource struct{ s *FDStream }

func (src fdSource) Read(p []byte) (int, error)               { return src.s.read(p) }
func (src fdSource) ReadBuffer(b *buffer.Buffer) (int, error) { return src.s.readBuffer(b) }
func (src fdSource) Shutdown()                                { src.s.shutdownRead() }
func (src fdSource) ReadableHook() *Hook                      { return src.s.readable }

type fdSink struct{ s *FDStream }

func (snk fdSink) Write(p []byte) (int, error)               { return snk.s.write(p) }
func (snk fdSink) WriteBuffer(b *buffer.Buffer) (int, error) { return snk.s.writeBuffer(b) }
func (snk fdSink) Shutdown()                                 { snk.s.shutdownWrite() }
func (snk fdSink) WritableHook() *Hook                       { return snk.s.writable }
