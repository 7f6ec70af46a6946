package http1

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/favbox/dsk/common/config"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/network/dispatch"
	"github.com/favbox/dsk/network/octet"
	"github.com/favbox/dsk/protocol"
	"github.com/favbox/dsk/protocol/consts"
	"github.com/stretchr/testify/assert"
)

const chunkedWire = "HTTP/1.1 200 OK\r\n" +
	"Content-Type: text/plain\r\n" +
	"Transfer-Encoding: chunked\r\n" +
	"\r\n" +
	"7\r\nhi mom\n\r\n" +
	"0\r\n\r\n"

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

// 向 src 追加数据，并运行到数据被读走。
func feed(d *dispatch.Dispatcher, src *octet.MemorySource, data string) bool {
	src.Buffer().AppendString(data)
	src.Update()
	return runUntil(d, time.Second, func() bool { return src.Buffer().Len() == 0 })
}

type clientResult struct {
	resp      *protocol.Response
	content   string
	complete  bool
	err       error
	destroyed int
}

func (r *clientResult) funcs() ClientRequestFuncs {
	return ClientRequestFuncs{
		HandleResponse: func(t *ClientTransfer) {
			r.resp = t.Response
		},
		HandleContentComplete: func(t *ClientTransfer) {
			r.content = t.Content().Buffer().String()
			r.complete = true
		},
		HandleError: func(_ *ClientTransfer, err error) {
			r.err = err
		},
		Destroy: func(*ClientTransfer) {
			r.destroyed++
		},
	}
}

type clientPair struct {
	d    *dispatch.Dispatcher
	src  *octet.MemorySource
	sink *octet.MemorySink
	s    *ClientStream
}

func newClientPair(t *testing.T, opts ...config.HTTPClientStreamOption) *clientPair {
	d := newTestDispatcher(t)
	p := &clientPair{
		d:    d,
		src:  octet.NewMemorySource(d),
		sink: octet.NewMemorySink(d),
	}
	var err error
	p.s, err = NewClientStream(p.src, p.sink, opts...)
	assert.Nil(t, err)
	return p
}

// 发出请求并运行到请求标头写出。
func (p *clientPair) request(t *testing.T, req *protocol.Request) *clientResult {
	r := &clientResult{}
	_, err := p.s.Request(req, nil, r.funcs())
	assert.Nil(t, err)
	assert.True(t, runUntil(p.d, time.Second, func() bool {
		return strings.HasSuffix(p.sink.Buffer().String(), "\r\n\r\n")
	}))
	return r
}

func TestClientStreamIncrementalResponse(t *testing.T) {
	for _, step := range []int{len(chunkedWire), 1, 2, 5} {
		p := newClientPair(t)
		r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))
		assert.Equal(t, "GET / HTTP/1.1\r\nUser-Agent: dsk\r\n\r\n", p.sink.Buffer().String())

		for i := 0; i < len(chunkedWire); i += step {
			assert.True(t, feed(p.d, p.src, chunkedWire[i:min(i+step, len(chunkedWire))]))
		}
		assert.True(t, r.complete, "step %d", step)
		assert.Equal(t, "hi mom\n", r.content)
		assert.Equal(t, 200, r.resp.StatusCode)
		assert.Equal(t, "text/plain", r.resp.ContentType())
		assert.True(t, r.resp.Chunked)
		assert.Nil(t, r.err)
		assert.Equal(t, 1, r.destroyed)
		assert.Equal(t, 0, p.s.Pending())
		assert.False(t, p.s.IsShutdown())
	}
}

func TestClientStreamTrailingCRLF(t *testing.T) {
	p := newClientPair(t)
	r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))
	assert.True(t, feed(p.d, p.src, chunkedWire+"\r\n"))
	assert.True(t, r.complete)
	assert.Equal(t, "hi mom\n", r.content)
	assert.False(t, p.s.IsShutdown())
}

func TestClientStreamUnsolicitedData(t *testing.T) {
	p := newClientPair(t, WithPrintWarnings(false))
	r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))
	assert.True(t, feed(p.d, p.src, chunkedWire+"HTTP/1.1 200 OK\r\n"))
	assert.True(t, r.complete)
	assert.True(t, p.s.IsShutdown())
	assert.True(t, errors.Is(p.s.LatestError(), errs.ErrUnsolicitedData))
	assert.True(t, p.sink.IsShutdown())
}

func TestClientStreamTrailer(t *testing.T) {
	p := newClientPair(t)
	r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))
	wire := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3;ext=1\r\nabc\r\n" +
		"A\r\n0123456789\r\n" +
		"0\r\nExpires: never\r\n\r\n"
	assert.True(t, feed(p.d, p.src, wire))
	assert.True(t, r.complete)
	assert.Equal(t, "abc0123456789", r.content)
}

func TestClientStreamPipelining(t *testing.T) {
	p := newClientPair(t)
	var order []string
	for _, path := range []string{"/a", "/b", "/c"} {
		path := path
		_, err := p.s.Request(protocol.NewRequest(consts.MethodGet, path), nil, ClientRequestFuncs{
			HandleContentComplete: func(t *ClientTransfer) {
				order = append(order, path+"="+t.Content().Buffer().String())
			},
		})
		assert.Nil(t, err)
	}
	assert.True(t, runUntil(p.d, time.Second, func() bool {
		return strings.Count(p.sink.Buffer().String(), "GET ") == 3
	}))
	assert.Equal(t, 3, p.s.Pending())

	assert.True(t, feed(p.d, p.src,
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nA"+
			"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nB"+
			"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nC"))
	assert.Equal(t, []string{"/a=A", "/b=B", "/c=C"}, order)
	assert.Equal(t, 0, p.s.Pending())
}

func TestClientStreamPipelineLimit(t *testing.T) {
	p := newClientPair(t, WithMaxPipelinedRequests(1))
	done := 0
	for _, path := range []string{"/a", "/b"} {
		_, err := p.s.Request(protocol.NewRequest(consts.MethodGet, path), nil, ClientRequestFuncs{
			HandleContentComplete: func(*ClientTransfer) { done++ },
		})
		assert.Nil(t, err)
	}
	assert.True(t, runUntil(p.d, time.Second, func() bool {
		return strings.Contains(p.sink.Buffer().String(), "\r\n\r\n")
	}))
	// 第二个请求要等第一个响应完成才写出
	runUntil(p.d, 20*time.Millisecond, func() bool { return false })
	assert.Equal(t, 1, strings.Count(p.sink.Buffer().String(), "GET "))

	assert.True(t, feed(p.d, p.src, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	assert.Equal(t, 1, done)
	assert.True(t, runUntil(p.d, time.Second, func() bool {
		return strings.Count(p.sink.Buffer().String(), "GET ") == 2
	}))
	assert.True(t, strings.Contains(p.sink.Buffer().String(), "GET /b HTTP/1.1"))
}

func TestClientStreamRequestBody(t *testing.T) {
	p := newClientPair(t)
	body := octet.NewMemorySource(p.d)
	body.Buffer().AppendString("abc")
	body.Update()

	var r clientResult
	_, err := p.s.Request(protocol.NewRequest(consts.MethodPost, "/upload"), body, r.funcs())
	assert.Nil(t, err)
	assert.True(t, runUntil(p.d, time.Second, func() bool {
		return strings.HasSuffix(p.sink.Buffer().String(), "3\r\nabc\r\n")
	}))
	assert.Contains(t, p.sink.Buffer().String(), "Transfer-Encoding: chunked\r\n\r\n")

	body.Buffer().AppendString("de")
	body.Done()
	assert.True(t, runUntil(p.d, time.Second, func() bool {
		return strings.HasSuffix(p.sink.Buffer().String(), "2\r\nde\r\n0\r\n\r\n")
	}))

	assert.True(t, feed(p.d, p.src, "HTTP/1.1 204 No Content\r\n\r\n"))
	assert.True(t, r.complete)
	assert.Equal(t, "", r.content)
}

func TestClientStreamFixedLengthBody(t *testing.T) {
	p := newClientPair(t)
	req := protocol.NewRequest(consts.MethodPut, "/x")
	req.ContentLength = 5
	var r clientResult
	_, err := p.s.Request(req, octet.NewMemorySourceString(p.d, "hello"), r.funcs())
	assert.Nil(t, err)
	assert.True(t, runUntil(p.d, time.Second, func() bool {
		return strings.HasSuffix(p.sink.Buffer().String(), "\r\n\r\nhello")
	}))
	assert.Contains(t, p.sink.Buffer().String(), "Content-Length: 5\r\n")
}

func TestClientStreamShortBody(t *testing.T) {
	p := newClientPair(t, WithPrintWarnings(false))
	req := protocol.NewRequest(consts.MethodPut, "/x")
	req.ContentLength = 10
	var r clientResult
	_, err := p.s.Request(req, octet.NewMemorySourceString(p.d, "hello"), r.funcs())
	assert.Nil(t, err)
	assert.True(t, runUntil(p.d, time.Second, func() bool { return r.err != nil }))
	assert.True(t, errors.Is(r.err, errs.ErrPrematureEOF))
	assert.Equal(t, 1, r.destroyed)
}

func TestClientStreamInformational(t *testing.T) {
	p := newClientPair(t)
	r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))
	assert.True(t, feed(p.d, p.src, "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	assert.True(t, r.complete)
	assert.Equal(t, 200, r.resp.StatusCode)
	assert.Equal(t, "ok", r.content)
}

func TestClientStreamHead(t *testing.T) {
	p := newClientPair(t)
	r := p.request(t, protocol.NewRequest(consts.MethodHead, "/"))
	assert.True(t, feed(p.d, p.src, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n"))
	assert.True(t, r.complete)
	assert.Equal(t, int64(10), r.resp.ContentLength)
	assert.Equal(t, "", r.content)
	assert.False(t, p.s.IsShutdown())
}

func TestClientStreamBodyUntilEOF(t *testing.T) {
	p := newClientPair(t, WithPrintWarnings(false))
	var r clientResult
	tr, err := p.s.Request(protocol.NewRequest(consts.MethodGet, "/"), nil, r.funcs())
	assert.Nil(t, err)
	assert.True(t, feed(p.d, p.src, "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nhello"))
	assert.False(t, r.complete)
	assert.Equal(t, "hello", tr.Content().Buffer().String())

	p.src.Buffer().AppendString(" world")
	p.src.Done()
	assert.True(t, runUntil(p.d, time.Second, func() bool { return r.complete }))
	assert.Equal(t, "hello world", r.content)
	assert.Nil(t, r.err)
	assert.True(t, p.s.IsShutdown())
}

func TestClientStreamPrematureEOF(t *testing.T) {
	p := newClientPair(t, WithPrintWarnings(false))
	r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))
	p.src.Buffer().AppendString("HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhel")
	p.src.Done()
	assert.True(t, runUntil(p.d, time.Second, func() bool { return r.err != nil }))
	assert.True(t, errors.Is(r.err, errs.ErrPrematureEOF))
	assert.False(t, r.complete)
	assert.Equal(t, 1, r.destroyed)
	assert.True(t, errors.Is(p.s.LatestError(), errs.ErrPrematureEOF))
}

func TestClientStreamHeaderTooLong(t *testing.T) {
	p := newClientPair(t, WithMaxHeaderSize(64), WithPrintWarnings(false))
	r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))

	errorNotified := false
	p.s.ErrorHook().Trap(func() bool {
		errorNotified = true
		return false
	})
	assert.True(t, feed(p.d, p.src, "HTTP/1.1 200 OK\r\nX-Long: "+strings.Repeat("x", 100)))
	assert.True(t, errors.Is(r.err, errs.ErrHeaderTooLong))
	assert.True(t, errorNotified)
	assert.True(t, p.s.IsShutdown())
}

func TestClientStreamBadHeader(t *testing.T) {
	p := newClientPair(t, WithPrintWarnings(false))
	r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))
	assert.True(t, feed(p.d, p.src, "HTTP/1.1 2000 OK\r\n\r\n"))
	assert.True(t, errors.Is(r.err, errs.ErrBadHeader))
}

func TestClientStreamShutdown(t *testing.T) {
	p := newClientPair(t)
	r := p.request(t, protocol.NewRequest(consts.MethodGet, "/"))
	p.s.Shutdown()
	assert.True(t, errors.Is(r.err, errs.ErrStreamShutdown))
	assert.Equal(t, 1, r.destroyed)

	_, err := p.s.Request(protocol.NewRequest(consts.MethodGet, "/"), nil, ClientRequestFuncs{})
	assert.True(t, errors.Is(err, errs.ErrStreamShutdown))
}

func TestClientStreamShutdownAbortsContent(t *testing.T) {
	p := newClientPair(t)
	var r clientResult
	tr, err := p.s.Request(protocol.NewRequest(consts.MethodGet, "/"), nil, r.funcs())
	assert.Nil(t, err)
	assert.True(t, feed(p.d, p.src, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhel"))
	assert.Equal(t, "hel", tr.Content().Buffer().String())

	var readErr error
	tr.Content().ReadableHook().Trap(func() bool {
		_, readErr = tr.Content().Read(make([]byte, 16))
		return readErr == nil || errors.Is(readErr, errs.ErrAgain)
	})
	p.s.Shutdown()
	assert.True(t, errors.Is(readErr, errs.ErrStreamShutdown))
	assert.True(t, errors.Is(r.err, errs.ErrStreamShutdown))
	assert.False(t, r.complete)
	assert.Equal(t, 1, r.destroyed)
}

func TestClientStreamConnectionClose(t *testing.T) {
	p := newClientPair(t)
	req := protocol.NewRequest(consts.MethodGet, "/")
	req.ConnectionClose = true
	r := p.request(t, req)
	assert.Contains(t, p.sink.Buffer().String(), "Connection: close\r\n")

	_, err := p.s.Request(protocol.NewRequest(consts.MethodGet, "/"), nil, ClientRequestFuncs{})
	assert.True(t, errors.Is(err, errs.ErrConnectionClosed))

	assert.True(t, feed(p.d, p.src, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	assert.True(t, r.complete)
	assert.True(t, p.s.IsShutdown())
}

func TestClientStreamBadOptions(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := NewClientStream(octet.NewMemorySource(d), octet.NewMemorySink(d), WithMaxPipelinedRequests(0))
	assert.True(t, errors.Is(err, errs.ErrBadConfig))
}
