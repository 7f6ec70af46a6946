package octet

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/favbox/dsk/common/buffer"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/network/dispatch"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestMemorySource(t *testing.T) {
	d := newTestDispatcher(t)
	m := NewMemorySource(d)

	p := make([]byte, 16)
	_, err := m.Read(p)
	assert.Equal(t, errs.ErrAgain, err)

	var got buffer.Buffer
	eof := false
	m.ReadableHook().Trap(func() bool {
		_, err := m.ReadBuffer(&got)
		if err == io.EOF {
			eof = true
			return false
		}
		return true
	})

	m.Buffer().AppendString("hello ")
	m.Update()
	d.RunOnce()
	assert.Equal(t, "hello ", got.String())
	assert.False(t, eof)

	m.Buffer().AppendString("world")
	m.Done()
	for !eof {
		d.RunOnce()
	}
	assert.Equal(t, "hello world", got.String())

	m.Shutdown()
	_, err = m.Read(p)
	assert.Equal(t, errs.ErrStreamShutdown, err)
}

func TestMemorySourceAbort(t *testing.T) {
	d := newTestDispatcher(t)
	m := NewMemorySource(d)
	m.Buffer().AppendString("partial")

	var readErr error
	m.ReadableHook().Trap(func() bool {
		_, readErr = m.Read(make([]byte, 16))
		return false
	})
	m.Abort()
	assert.Equal(t, errs.ErrStreamShutdown, readErr)
	assert.True(t, m.ReadableHook().IsCleared())

	done := NewMemorySourceString(d, "whole")
	done.Abort()
	p := make([]byte, 16)
	n, err := done.Read(p)
	assert.Nil(t, err)
	assert.Equal(t, "whole", string(p[:n]))
}

func TestMemorySink(t *testing.T) {
	d := newTestDispatcher(t)
	m := NewMemorySink(d)

	changes := 0
	m.ChangedHook().Trap(func() bool {
		changes++
		return true
	})

	n, err := m.Write([]byte("abc"))
	assert.Nil(t, err)
	assert.Equal(t, 3, n)

	var b buffer.Buffer
	b.AppendString("def")
	n, err = m.WriteBuffer(&b)
	assert.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, "abcdef", m.Buffer().String())

	m.Shutdown()
	assert.True(t, m.IsShutdown())
	assert.Equal(t, 3, changes)
	_, err = m.Write([]byte("x"))
	assert.Equal(t, errs.ErrStreamShutdown, err)
}

func TestFDStream(t *testing.T) {
	d := newTestDispatcher(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	assert.Nil(t, err)

	a, err := NewFDStream(d, fds[0])
	assert.Nil(t, err)
	b, err := NewFDStream(d, fds[1])
	assert.Nil(t, err)
	defer a.Close()
	defer b.Close()

	_, err = b.Source().Read(make([]byte, 4))
	assert.Equal(t, errs.ErrAgain, err)

	var got buffer.Buffer
	eof := false
	b.Source().ReadableHook().Trap(func() bool {
		_, err := b.Source().ReadBuffer(&got)
		if err == io.EOF {
			eof = true
			return false
		}
		return true
	})
	assert.Equal(t, dispatch.EventRead, d.WatchedEvents(fds[1]))

	var out buffer.Buffer
	out.AppendString("ping")
	a.Sink().WritableHook().Trap(func() bool {
		a.Sink().WriteBuffer(&out)
		if out.Len() == 0 {
			a.Sink().Shutdown()
			return false
		}
		return true
	})

	for !eof {
		d.RunOnce()
	}
	assert.Equal(t, "ping", got.String())

	_, err = a.Sink().Write([]byte("x"))
	assert.Equal(t, errs.ErrStreamShutdown, err)
}

func TestFileSource(t *testing.T) {
	d := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "hello.txt")
	assert.Nil(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	f, err := OpenFileSource(d, path)
	assert.Nil(t, err)
	assert.Equal(t, int64(6), f.Size())

	var got buffer.Buffer
	done := false
	f.ReadableHook().Trap(func() bool {
		_, err := f.ReadBuffer(&got)
		if err == io.EOF {
			done = true
			f.Shutdown()
			return false
		}
		return true
	})
	for !done {
		d.RunOnce()
	}
	assert.Equal(t, "hello\n", got.String())

	_, err = OpenFileSource(d, filepath.Dir(path))
	assert.NotNil(t, err)
}

func TestListenerUnix(t *testing.T) {
	d := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "test.sock")

	l, err := ListenUnix(d, path)
	assert.Nil(t, err)
	assert.Equal(t, path, l.Bind().Path)
	defer l.Close()

	_, err = l.Accept()
	assert.Equal(t, errs.ErrAgain, err)

	var accepted *FDStream
	l.ReadableHook().Trap(func() bool {
		s, err := l.Accept()
		if err != nil {
			return true
		}
		accepted = s
		return false
	})

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	assert.Nil(t, err)
	defer unix.Close(fd)
	assert.Nil(t, unix.Connect(fd, &unix.SockaddrUnix{Name: path}))

	for accepted == nil {
		d.RunOnce()
	}
	defer accepted.Close()

	unix.Write(fd, []byte("hi"))
	p := make([]byte, 8)
	var n int
	for {
		n, err = accepted.Source().Read(p)
		if err != errs.ErrAgain {
			break
		}
	}
	assert.Nil(t, err)
	assert.Equal(t, "hi", string(p[:n]))

	_, err = ListenUnix(d, "")
	assert.NotNil(t, err)
}

func TestListenerTCPEphemeralPort(t *testing.T) {
	d := newTestDispatcher(t)
	l, err := ListenTCP(d, "127.0.0.1", 0)
	assert.Nil(t, err)
	defer l.Close()
	assert.True(t, l.Bind().Port > 0)

	_, err = ListenTCP(d, "not-an-ip", 80)
	assert.True(t, errs.IsTerminal(err))
}
