package http1

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/favbox/dsk/common/config"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/common/json"
	"github.com/favbox/dsk/network/clientstream"
	"github.com/favbox/dsk/network/octet"
	"github.com/favbox/dsk/protocol"
	"github.com/favbox/dsk/protocol/consts"
	"github.com/favbox/dsk/route"
	"github.com/stretchr/testify/assert"
)

// 在内存流上跑一遍请求，返回解析后的响应。
func serveString(t *testing.T, srv *Server, bind octet.BindInfo, requests string) ([]*protocol.Response, []string) {
	d := srv.Dispatcher()
	src := octet.NewMemorySource(d)
	sink := octet.NewMemorySink(d)
	_, err := srv.Serve(src, sink, bind)
	assert.Nil(t, err)
	src.Buffer().AppendString(requests)
	src.Done()
	assert.True(t, runUntil(d, time.Second, sink.IsShutdown))
	return parseResponses(t, sink.Buffer().String())
}

func newTestServer(t *testing.T, opts ...config.Option) *Server {
	srv, err := NewServer(newTestDispatcher(t), opts...)
	assert.Nil(t, err)
	return srv
}

func TestServerRouting(t *testing.T) {
	srv := newTestServer(t)
	srv.AddHandler(func(c *RequestContext) {
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "root")
	})

	srv.MatchSave()
	assert.Nil(t, srv.AddMatch(route.MatchPath, "/static/.*"))
	srv.AddHandler(func(c *RequestContext) {
		c.Pass()
	})
	srv.AddHandler(func(c *RequestContext) {
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "static:"+c.Request().URIPath())
	})
	assert.Nil(t, srv.MatchRestore())

	srv.MatchSave()
	assert.Nil(t, srv.AddMatch(route.MatchPath, "/old"))
	srv.AddHandler(func(c *RequestContext) {
		c.InternalRedirect("/static/new")
	})
	assert.Nil(t, srv.MatchRestore())

	srv.MatchSave()
	assert.Nil(t, srv.AddMatch(route.MatchHost, `api\.example\.com(:[0-9]+)?`))
	srv.AddHandler(func(c *RequestContext) {
		assert.Nil(t, c.RespondJSON(consts.StatusOK, map[string]string{"host": c.Request().Host()}))
	})
	assert.Nil(t, srv.MatchRestore())

	resps, bodies := serveString(t, srv, octet.BindInfo{Port: 80},
		"GET /static/a?x=1 HTTP/1.1\r\nHost: www\r\n\r\n"+
			"GET /old HTTP/1.1\r\nHost: www\r\n\r\n"+
			"GET /other HTTP/1.1\r\nHost: www\r\n\r\n"+
			"GET /any HTTP/1.1\r\nHost: api.example.com:8080\r\n\r\n")
	assert.Equal(t, []string{
		"static:/static/a",
		"static:/static/new",
		"root",
		`{"host":"api.example.com:8080"}`,
	}, bodies)
	if assert.Equal(t, 4, len(resps)) {
		assert.Equal(t, consts.MIMEApplicationJSON, resps[3].ContentType())
		for _, resp := range resps {
			assert.Equal(t, "dsk", resp.Header.Get(consts.HeaderServer))
			_, err := time.Parse(consts.TimeFormat, resp.Header.Get(consts.HeaderDate))
			assert.Nil(t, err)
		}
	}
}

func TestServerNotFound(t *testing.T) {
	srv := newTestServer(t, WithServerName(""))
	srv.MatchSave()
	assert.Nil(t, srv.AddMatch(route.MatchUserAgent, "curl/.*"))
	srv.AddHandler(func(c *RequestContext) {
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "curl")
	})
	assert.Nil(t, srv.MatchRestore())

	resps, bodies := serveString(t, srv, octet.BindInfo{},
		"GET / HTTP/1.1\r\nUser-Agent: wget/1.0\r\n\r\nGET / HTTP/1.1\r\nUser-Agent: curl/8.0\r\n\r\n")
	if assert.Equal(t, 2, len(resps)) {
		assert.Equal(t, consts.StatusNotFound, resps[0].StatusCode)
		assert.Equal(t, "Not Found\n", bodies[0])
		assert.False(t, resps[0].Header.Has(consts.HeaderServer))
		assert.Equal(t, "curl", bodies[1])
	}
}

func TestServerBindMatches(t *testing.T) {
	srv := newTestServer(t)
	srv.MatchSave()
	assert.Nil(t, srv.AddMatch(route.MatchBindPort, "8080"))
	srv.AddHandler(func(c *RequestContext) {
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "port")
	})
	assert.Nil(t, srv.MatchRestore())
	srv.MatchSave()
	assert.Nil(t, srv.AddMatch(route.MatchBindPath, ".*/admin\\.sock"))
	srv.AddHandler(func(c *RequestContext) {
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "admin")
	})
	assert.Nil(t, srv.MatchRestore())

	_, bodies := serveString(t, srv, octet.BindInfo{Port: 8080}, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, []string{"port"}, bodies)
	_, bodies = serveString(t, srv, octet.BindInfo{Path: "/run/admin.sock"}, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, []string{"admin"}, bodies)
	resps, _ := serveString(t, srv, octet.BindInfo{Port: 80}, "GET / HTTP/1.1\r\n\r\n")
	if assert.Equal(t, 1, len(resps)) {
		assert.Equal(t, consts.StatusNotFound, resps[0].StatusCode)
	}
}

func TestServerRedirectLimit(t *testing.T) {
	srv := newTestServer(t, WithMaxInternalRedirects(3))
	var seen int
	srv.AddHandler(func(c *RequestContext) {
		seen = c.Redirects()
		c.InternalRedirect("/again")
	})
	resps, _ := serveString(t, srv, octet.BindInfo{}, "GET / HTTP/1.1\r\n\r\n")
	if assert.Equal(t, 1, len(resps)) {
		assert.Equal(t, consts.StatusInternalServerError, resps[0].StatusCode)
	}
	assert.Equal(t, 3, seen)
}

func TestServerAsyncHandlers(t *testing.T) {
	srv := newTestServer(t)
	d := srv.Dispatcher()
	srv.MatchSave()
	assert.Nil(t, srv.AddMatch(route.MatchPath, "/later"))
	srv.AddHandler(func(c *RequestContext) {
		d.AddTimer(5*time.Millisecond, c.Pass)
	})
	assert.Nil(t, srv.MatchRestore())
	srv.AddHandler(func(c *RequestContext) {
		d.AddTimer(5*time.Millisecond, func() {
			c.RespondString(consts.StatusOK, consts.MIMETextPlain, "async "+c.Request().Path)
		})
	})

	_, bodies := serveString(t, srv, octet.BindInfo{},
		"GET /later HTTP/1.1\r\n\r\nGET /now HTTP/1.1\r\n\r\n")
	assert.Equal(t, []string{"async /later", "async /now"}, bodies)
}

func TestServerRespondTwice(t *testing.T) {
	srv := newTestServer(t)
	srv.AddHandler(func(c *RequestContext) {
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "first")
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "second")
		c.Pass()
	})
	_, bodies := serveString(t, srv, octet.BindInfo{}, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, []string{"first"}, bodies)
}

func TestServerRespondJSONError(t *testing.T) {
	srv := newTestServer(t)
	var jsonErr error
	srv.AddHandler(func(c *RequestContext) {
		jsonErr = c.RespondJSON(consts.StatusOK, func() {})
	})
	resps, _ := serveString(t, srv, octet.BindInfo{}, "GET / HTTP/1.1\r\n\r\n")
	assert.NotNil(t, jsonErr)
	if assert.Equal(t, 1, len(resps)) {
		assert.Equal(t, consts.StatusInternalServerError, resps[0].StatusCode)
	}
}

func TestServerRespondFile(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(`{"a":1}`), 0o644))

	srv := newTestServer(t)
	srv.AddHandler(func(c *RequestContext) {
		c.RespondFile(filepath.Join(dir, c.Request().URIPath()))
	})
	resps, bodies := serveString(t, srv, octet.BindInfo{},
		"GET /data.json HTTP/1.1\r\n\r\nGET /missing.txt HTTP/1.1\r\n\r\n")
	if assert.Equal(t, 2, len(resps)) {
		assert.Equal(t, consts.StatusOK, resps[0].StatusCode)
		assert.Equal(t, "application/json", resps[0].ContentType())

		var v map[string]int
		assert.Nil(t, json.Unmarshal([]byte(bodies[0]), &v))
		assert.Equal(t, 1, v["a"])

		assert.Equal(t, consts.StatusNotFound, resps[1].StatusCode)
	}
}

func TestServerTooLarge(t *testing.T) {
	srv := newTestServer(t, WithMaxPostDataSize(4))
	called := false
	srv.AddHandler(func(c *RequestContext) {
		called = true
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "ok")
	})
	resps, _ := serveString(t, srv, octet.BindInfo{}, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	if assert.Equal(t, 1, len(resps)) {
		assert.Equal(t, consts.StatusRequestEntityTooLarge, resps[0].StatusCode)
	}
	assert.False(t, called)
}

func TestServerBadOptions(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := NewServer(d, WithMaxInternalRedirects(0))
	assert.True(t, errors.Is(err, errs.ErrBadConfig))
	_, err = NewServer(d, WithMaxRequestHeaderSize(-1))
	assert.True(t, errors.Is(err, errs.ErrBadConfig))

	srv, err := NewServer(d)
	assert.Nil(t, err)
	assert.NotNil(t, srv.MatchRestore())
	assert.NotNil(t, srv.AddMatch(route.MatchPath, "("))
}

func TestServerUnixSocket(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello\n"), 0o644))
	sock := filepath.Join(dir, "http.sock")

	srv := newTestServer(t)
	d := srv.Dispatcher()
	srv.MatchSave()
	assert.Nil(t, srv.AddMatch(route.MatchBindPath, `.*/http\.sock`))
	srv.AddHandler(func(c *RequestContext) {
		c.RespondFile(filepath.Join(dir, c.Request().URIPath()))
	})
	assert.Nil(t, srv.MatchRestore())
	assert.Nil(t, srv.ListenUnix(sock))
	defer srv.Close()

	conn, err := clientstream.New(d, nil, clientstream.WithPath(sock))
	assert.Nil(t, err)
	defer conn.Close()
	cs, err := NewClientStream(conn.Source(), conn.Sink())
	assert.Nil(t, err)

	var first, second clientResult
	_, err = cs.Request(protocol.NewRequest(consts.MethodGet, "/hello.txt"), nil, first.funcs())
	assert.Nil(t, err)
	_, err = cs.Request(protocol.NewRequest(consts.MethodGet, "/nope.txt"), nil, second.funcs())
	assert.Nil(t, err)

	assert.True(t, runUntil(d, 2*time.Second, func() bool { return second.complete || second.err != nil }))
	if assert.True(t, first.complete) {
		assert.Equal(t, consts.StatusOK, first.resp.StatusCode)
		assert.Equal(t, int64(6), first.resp.ContentLength)
		assert.True(t, strings.HasPrefix(first.resp.ContentType(), "text/plain"))
		assert.Equal(t, "hello\n", first.content)
	}
	if assert.True(t, second.complete) {
		assert.Equal(t, consts.StatusNotFound, second.resp.StatusCode)
	}
	assert.Equal(t, 1, srv.Connections())

	cs.Shutdown()
	assert.True(t, runUntil(d, time.Second, func() bool { return srv.Connections() == 0 }))
}

func TestServerIdleClientFailsPendingTransfer(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "slow.sock")
	srv := newTestServer(t)
	d := srv.Dispatcher()
	srv.AddHandler(func(c *RequestContext) {
		d.AddTimer(300*time.Millisecond, func() {
			c.RespondString(consts.StatusOK, consts.MIMETextPlain, "late")
		})
	})
	assert.Nil(t, srv.ListenUnix(sock))
	defer srv.Close()

	conn, err := clientstream.New(d, nil, clientstream.WithPath(sock),
		clientstream.WithIdleDisconnectTime(100*time.Millisecond))
	assert.Nil(t, err)
	defer conn.Close()
	cs, err := NewClientStream(conn.Source(), conn.Sink(), WithPrintWarnings(false))
	assert.Nil(t, err)

	var r clientResult
	_, err = cs.Request(protocol.NewRequest(consts.MethodGet, "/slow"), nil, r.funcs())
	assert.Nil(t, err)

	assert.True(t, runUntil(d, 2*time.Second, func() bool { return r.destroyed > 0 }))
	assert.True(t, errors.Is(r.err, errs.ErrPrematureEOF))
	assert.False(t, r.complete)
	assert.True(t, cs.IsShutdown())
	assert.True(t, errors.Is(conn.LatestError(), errs.ErrIdleTimeout))

	// 服务端随后发现连接已关闭
	assert.True(t, runUntil(d, time.Second, func() bool { return srv.Connections() == 0 }))
}

func TestServerTCP(t *testing.T) {
	srv := newTestServer(t)
	d := srv.Dispatcher()
	srv.AddHandler(func(c *RequestContext) {
		c.RespondString(consts.StatusOK, consts.MIMETextPlain, "port "+c.Request().Host())
	})
	bind, err := srv.ListenTCP("127.0.0.1", 0)
	assert.Nil(t, err)
	assert.NotEqual(t, 0, bind.Port)
	defer srv.Close()

	conn, err := clientstream.New(d, nil, clientstream.WithAddress("127.0.0.1"), clientstream.WithPort(bind.Port))
	assert.Nil(t, err)
	defer conn.Close()
	cs, err := NewClientStream(conn.Source(), conn.Sink())
	assert.Nil(t, err)

	req := protocol.NewRequest(consts.MethodGet, "/")
	req.Header.Set("Host", "localhost")
	var r clientResult
	_, err = cs.Request(req, nil, r.funcs())
	assert.Nil(t, err)
	assert.True(t, runUntil(d, 2*time.Second, func() bool { return r.complete }))
	assert.Equal(t, "port localhost", r.content)

	assert.Equal(t, 1, srv.Connections())
	assert.Nil(t, srv.Close())
	assert.Equal(t, 0, srv.Connections())
	cs.Shutdown()
}
