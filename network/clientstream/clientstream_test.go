package clientstream

import (
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/favbox/dsk/common/buffer"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/network/dispatch"
	"github.com/favbox/dsk/network/dns"
	"github.com/favbox/dsk/network/octet"
	"github.com/stretchr/testify/assert"
)

func newTestDispatcher(t *testing.T) *dispatch.Dispatcher {
	d, err := dispatch.New()
	assert.Nil(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// 运行分发器直到 cond 成立或超时，返回 cond 的最终结果。
func runUntil(d *dispatch.Dispatcher, timeout time.Duration, cond func() bool) bool {
	expired := false
	tm := d.AddTimer(timeout, func() { expired = true })
	for !cond() && !expired {
		d.RunOnce()
	}
	tm.Remove()
	return cond()
}

// 接受连接并收集对端发来的数据。
type testServer struct {
	l        *octet.Listener
	accepted []*octet.FDStream
	received buffer.Buffer
}

func newTestServer(t *testing.T, d *dispatch.Dispatcher, l *octet.Listener) *testServer {
	srv := &testServer{l: l}
	l.ReadableHook().Trap(func() bool {
		s, err := l.Accept()
		if err != nil {
			return true
		}
		srv.accepted = append(srv.accepted, s)
		s.Source().ReadableHook().Trap(func() bool {
			_, err := s.Source().ReadBuffer(&srv.received)
			return !errs.IsTerminal(err)
		})
		return true
	})
	t.Cleanup(func() {
		for _, s := range srv.accepted {
			s.Close()
		}
		l.Close()
	})
	return srv
}

func writeString(s *ClientStream, data string) {
	var out buffer.Buffer
	out.AppendString(data)
	s.Sink().WritableHook().Trap(func() bool {
		_, err := s.Sink().WriteBuffer(&out)
		if errs.IsTerminal(err) {
			return false
		}
		return out.Len() > 0
	})
}

func TestConnectUnix(t *testing.T) {
	d := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "test.sock")
	l, err := octet.ListenUnix(d, path)
	assert.Nil(t, err)
	srv := newTestServer(t, d, l)

	s, err := New(d, nil, WithPath(path))
	assert.Nil(t, err)
	defer s.Close()

	writeString(s, "hello")
	assert.True(t, runUntil(d, time.Second, func() bool { return srv.received.Len() == 5 }))
	assert.Equal(t, "hello", srv.received.String())
	assert.Equal(t, StateConnected, s.State())
}

func TestConnectTCP(t *testing.T) {
	d := newTestDispatcher(t)
	l, err := octet.ListenTCP(d, "127.0.0.1", 0)
	assert.Nil(t, err)
	srv := newTestServer(t, d, l)

	s, err := New(d, nil, WithAddress("127.0.0.1"), WithPort(l.Bind().Port))
	assert.Nil(t, err)
	defer s.Close()

	writeString(s, "tcp")
	assert.True(t, runUntil(d, time.Second, func() bool { return srv.received.Len() == 3 }))
	assert.True(t, s.IsConnected())

	// 对端关闭后读到 EOF 并断开
	srv.accepted[0].Close()
	var got error
	s.Source().ReadableHook().Trap(func() bool {
		_, got = s.Source().Read(make([]byte, 16))
		return !errs.IsTerminal(got)
	})
	assert.True(t, runUntil(d, time.Second, func() bool { return got != nil && got != errs.ErrAgain }))
	assert.True(t, errs.IsEOF(got))
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectHostname(t *testing.T) {
	d := newTestDispatcher(t)
	l, err := octet.ListenTCP(d, "127.0.0.1", 0)
	assert.Nil(t, err)
	srv := newTestServer(t, d, l)

	r, err := dns.NewResolver(d)
	assert.Nil(t, err)
	r.SetLookupFunc(func(_ context.Context, _, host string) ([]netip.Addr, error) {
		assert.Equal(t, "stream.example.test", host)
		return []netip.Addr{netip.MustParseAddr("127.0.0.1")}, nil
	})

	s, err := New(d, r, WithHostname("stream.example.test"), WithPort(l.Bind().Port))
	assert.Nil(t, err)
	defer s.Close()
	assert.Equal(t, StateResolving, s.State())

	writeString(s, "named")
	assert.True(t, runUntil(d, time.Second, func() bool { return srv.received.Len() == 5 }))
}

func TestFailureWithoutReconnect(t *testing.T) {
	d := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "missing.sock")

	s, err := New(d, nil, WithPath(path))
	assert.Nil(t, err)
	defer s.Close()

	assert.Equal(t, StateDisconnected, s.State())
	assert.NotNil(t, s.LatestError())
	_, err = s.Sink().Write([]byte("x"))
	assert.Equal(t, errs.ErrNotConnected, err)
}

func TestReconnect(t *testing.T) {
	d := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "later.sock")

	s, err := New(d, nil, WithPath(path), WithReconnectInterval(5*time.Millisecond))
	assert.Nil(t, err)
	defer s.Close()

	failures := 0
	s.ErrorHook().Trap(func() bool {
		failures++
		return true
	})
	assert.NotNil(t, s.LatestError())
	_, err = s.Sink().Write([]byte("x"))
	assert.Equal(t, errs.ErrAgain, err)

	assert.True(t, runUntil(d, time.Second, func() bool { return failures >= 1 }))

	l, err := octet.ListenUnix(d, path)
	assert.Nil(t, err)
	srv := newTestServer(t, d, l)
	writeString(s, "again")
	assert.True(t, runUntil(d, time.Second, func() bool { return srv.received.Len() == 5 }))
	assert.True(t, s.IsConnected())
}

func TestIdleDisconnect(t *testing.T) {
	d := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "idle.sock")
	l, err := octet.ListenUnix(d, path)
	assert.Nil(t, err)
	srv := newTestServer(t, d, l)

	idle, err := New(d, nil, WithPath(path), WithIdleDisconnectTime(30*time.Millisecond))
	assert.Nil(t, err)
	defer idle.Close()
	busy, err := New(d, nil, WithPath(path), WithIdleDisconnectTime(30*time.Millisecond))
	assert.Nil(t, err)
	defer busy.Close()
	assert.True(t, idle.IsConnected())

	// busy 每 10ms 写一次
	ticker := d.AddRepeatingTimer(10*time.Millisecond, func() {
		busy.Sink().Write([]byte("."))
	})
	defer ticker.Remove()

	assert.True(t, runUntil(d, time.Second, func() bool { return idle.State() == StateDisconnected }))
	assert.True(t, errors.Is(idle.LatestError(), errs.ErrIdleTimeout))
	stop := time.Now().Add(100 * time.Millisecond)
	runUntil(d, time.Second, func() bool { return time.Now().After(stop) })
	assert.True(t, busy.IsConnected())
	assert.True(t, srv.received.Len() > 0)

	// 有写需求时按需重连
	writeString(idle, "wake")
	assert.True(t, runUntil(d, time.Second, idle.IsConnected))
}

func TestDisconnectWakesReader(t *testing.T) {
	d := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "drop.sock")
	l, err := octet.ListenUnix(d, path)
	assert.Nil(t, err)
	newTestServer(t, d, l)

	s, err := New(d, nil, WithPath(path), WithReconnectInterval(time.Hour))
	assert.Nil(t, err)
	defer s.Close()
	assert.True(t, s.IsConnected())

	var readErr error
	errored := 0
	s.ErrorHook().Trap(func() bool {
		errored++
		return true
	})
	s.Source().ReadableHook().Trap(func() bool {
		_, readErr = s.Source().Read(make([]byte, 16))
		return errors.Is(readErr, errs.ErrAgain)
	})

	s.Disconnect()
	assert.True(t, errs.IsEOF(readErr))
	assert.Equal(t, 1, errored)
	assert.True(t, errors.Is(s.LatestError(), errs.ErrConnectionClosed))

	// 重新连接前持续报告 EOF
	_, err = s.Source().Read(make([]byte, 16))
	assert.True(t, errs.IsEOF(err))
}

func TestIdleDisconnectWakesReader(t *testing.T) {
	d := newTestDispatcher(t)
	path := filepath.Join(t.TempDir(), "idle-read.sock")
	l, err := octet.ListenUnix(d, path)
	assert.Nil(t, err)
	newTestServer(t, d, l)

	s, err := New(d, nil, WithPath(path), WithIdleDisconnectTime(30*time.Millisecond))
	assert.Nil(t, err)
	defer s.Close()

	var readErr error
	s.Source().ReadableHook().Trap(func() bool {
		_, readErr = s.Source().Read(make([]byte, 16))
		return errors.Is(readErr, errs.ErrAgain)
	})

	assert.True(t, runUntil(d, time.Second, func() bool { return readErr != nil && !errors.Is(readErr, errs.ErrAgain) }))
	assert.True(t, errs.IsEOF(readErr))
	assert.True(t, errors.Is(s.LatestError(), errs.ErrIdleTimeout))
}

func TestBadOptions(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := New(d, nil, WithAddress("127.0.0.1"))
	assert.True(t, errors.Is(err, errs.ErrBadConfig))
	_, err = New(d, nil, WithAddress("not-an-ip"), WithPort(80))
	assert.True(t, errors.Is(err, errs.ErrBadConfig))
}
