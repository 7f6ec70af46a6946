package http1

import (
	"errors"
	"io/fs"
	"mime"
	"path/filepath"
	"time"

	"github.com/favbox/dsk/common/config"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/common/hlog"
	"github.com/favbox/dsk/common/json"
	"github.com/favbox/dsk/network/dispatch"
	"github.com/favbox/dsk/network/octet"
	"github.com/favbox/dsk/protocol"
	"github.com/favbox/dsk/protocol/consts"
	"github.com/favbox/dsk/route"
)

// Handler 处理一个请求。处理器必须调用 Pass、InternalRedirect 或某个 Respond 方法之一，
// 可以在返回之后（如在定时器中）再调用。
type Handler func(c *RequestContext)

// Server 是 HTTP/1.1 服务器：接受连接，把每个请求交给匹配作用域树中的处理器。
type Server struct {
	d       *dispatch.Dispatcher
	options *config.Options
	tree    *route.Tree[Handler]

	listeners []*octet.Listener
	traps     []*octet.Trap
	streams   map[*ServerStream]struct{}
}

// NewServer 创建绑定到分发器 d 的服务器。
func NewServer(d *dispatch.Dispatcher, opts ...config.Option) (*Server, error) {
	options := config.NewOptions(opts)
	if err := config.Validate(options); err != nil {
		return nil, err
	}
	if err := config.Validate(&options.Stream); err != nil {
		return nil, err
	}
	return &Server{
		d:       d,
		options: options,
		tree:    route.New[Handler](),
		streams: make(map[*ServerStream]struct{}),
	}, nil
}

// Dispatcher 返回服务器所属的分发器。
func (s *Server) Dispatcher() *dispatch.Dispatcher {
	return s.d
}

// Options 返回服务器选项。
func (s *Server) Options() *config.Options {
	return s.options
}

// MatchSave 新建一层匹配作用域并进入。
func (s *Server) MatchSave() {
	s.tree.Save()
}

// AddMatch 为当前作用域增加谓词，pattern 须完整匹配对应的请求属性。
func (s *Server) AddMatch(m route.Match, pattern string) error {
	return s.tree.AddMatch(m, pattern)
}

// MatchRestore 回到上一层作用域。
func (s *Server) MatchRestore() error {
	return s.tree.Restore()
}

// AddHandler 为当前作用域追加处理器。
func (s *Server) AddHandler(h Handler) {
	s.tree.AddHandler(h)
}

// ListenTCP 在 address:port 上接受连接，port 为 0 时由系统分配。
func (s *Server) ListenTCP(address string, port int) (octet.BindInfo, error) {
	l, err := octet.ListenTCP(s.d, address, port)
	if err != nil {
		return octet.BindInfo{}, err
	}
	s.addListener(l)
	return l.Bind(), nil
}

// ListenUnix 在 Unix 域套接字 path 上接受连接。
func (s *Server) ListenUnix(path string) error {
	l, err := octet.ListenUnix(s.d, path)
	if err != nil {
		return err
	}
	s.addListener(l)
	return nil
}

func (s *Server) addListener(l *octet.Listener) {
	s.listeners = append(s.listeners, l)
	s.traps = append(s.traps, l.ReadableHook().Trap(func() bool {
		s.accept(l)
		return true
	}))
}

func (s *Server) accept(l *octet.Listener) {
	for {
		fs, err := l.Accept()
		if err == errs.ErrAgain {
			return
		}
		if err != nil {
			hlog.SystemLogger().Warnf("接受连接失败: %v", err)
			return
		}
		if _, err = s.Serve(fs.Source(), fs.Sink(), l.Bind()); err != nil {
			fs.Close()
		}
	}
}

// Serve 在任意一对读写流上提供服务，bind 参与 bind-port/bind-path 匹配。
func (s *Server) Serve(source octet.Source, sink octet.Sink, bind octet.BindInfo) (*ServerStream, error) {
	streamOptions := s.options.Stream
	st, err := NewServerStream(source, sink, func(t *ServerTransfer) {
		s.handle(t, bind)
	}, config.HTTPServerStreamOption{F: func(o *config.HTTPServerStreamOptions) {
		*o = streamOptions
	}})
	if err != nil {
		return nil, err
	}
	s.streams[st] = struct{}{}
	st.SetCloseFunc(func() {
		delete(s.streams, st)
	})
	return st, nil
}

// Connections 返回当前打开的连接数。
func (s *Server) Connections() int {
	return len(s.streams)
}

// Close 停止接受连接并关闭所有打开的连接。
func (s *Server) Close() error {
	var first error
	for _, t := range s.traps {
		t.Remove()
	}
	s.traps = nil
	for _, l := range s.listeners {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.listeners = nil
	for st := range s.streams {
		st.Shutdown()
	}
	return first
}

func (s *Server) handle(t *ServerTransfer, bind octet.BindInfo) {
	c := &RequestContext{server: s, transfer: t, bind: bind}
	c.handlers = s.tree.Resolve(c.routeInfo())
	c.run()
}

type handlerState uint8

const (
	stateReady handlerState = iota
	stateInvoking
	stateWaiting
	statePassed
	stateRedirected
	stateResponded
)

// RequestContext 是处理器看到的单个请求。
//
// 处理器在调用期间做出的决定只记录在状态中，由外层循环推进，
// 因此同步响应或连续 Pass 都不会加深调用栈。
type RequestContext struct {
	server   *Server
	transfer *ServerTransfer
	bind     octet.BindInfo

	handlers  []Handler
	cursor    int
	state     handlerState
	redirect  string
	redirects int
}

// Request 返回请求。
func (c *RequestContext) Request() *protocol.Request {
	return c.transfer.Request
}

// Content 返回请求正文。
func (c *RequestContext) Content() *octet.MemorySource {
	return c.transfer.Content()
}

// Bind 返回接受该连接的监听地址。
func (c *RequestContext) Bind() octet.BindInfo {
	return c.bind
}

// Server 返回所属的服务器。
func (c *RequestContext) Server() *Server {
	return c.server
}

// Transfer 返回底层的传输。
func (c *RequestContext) Transfer() *ServerTransfer {
	return c.transfer
}

// Redirects 返回已发生的内部重定向次数。
func (c *RequestContext) Redirects() int {
	return c.redirects
}

func (c *RequestContext) routeInfo() *route.Info {
	req := c.transfer.Request
	return &route.Info{
		Path:      req.URIPath(),
		Host:      req.Host(),
		UserAgent: req.UserAgent(),
		BindPort:  c.bind.Port,
		BindPath:  c.bind.Path,
	}
}

func (c *RequestContext) run() {
	for {
		switch c.state {
		case statePassed:
			c.cursor++
		case stateRedirected:
			c.redirects++
			if c.redirects > c.server.options.MaxInternalRedirects {
				hlog.SystemLogger().Warnf("内部重定向超过 %d 次: %s", c.server.options.MaxInternalRedirects, c.redirect)
				c.RespondStatus(consts.StatusInternalServerError)
				return
			}
			c.transfer.Request.Path = c.redirect
			c.handlers = c.server.tree.Resolve(c.routeInfo())
			c.cursor = 0
		case stateResponded:
			return
		}

		if c.cursor >= len(c.handlers) {
			c.RespondStatus(consts.StatusNotFound)
			return
		}
		c.state = stateInvoking
		c.handlers[c.cursor](c)
		if c.state == stateInvoking {
			c.state = stateWaiting
			return
		}
	}
}

// Pass 放弃处理，交给下一个匹配的处理器。
func (c *RequestContext) Pass() {
	switch c.state {
	case stateInvoking:
		c.state = statePassed
	case stateWaiting:
		c.state = statePassed
		c.run()
	}
}

// InternalRedirect 以新的请求目标 path 重新路由，复用同一个传输。
func (c *RequestContext) InternalRedirect(path string) {
	switch c.state {
	case stateInvoking:
		c.state = stateRedirected
		c.redirect = path
	case stateWaiting:
		c.state = stateRedirected
		c.redirect = path
		c.run()
	}
}

// Respond 提交响应，补充 Server 与 Date 标头。
func (c *RequestContext) Respond(resp *protocol.Response, body octet.Source) {
	if c.state == stateResponded {
		if body != nil {
			body.Shutdown()
		}
		hlog.SystemLogger().Warnf("重复响应请求 %s", c.transfer.Request.Path)
		return
	}
	c.state = stateResponded
	if name := c.server.options.ServerName; name != "" && !resp.Header.Has(consts.HeaderServer) {
		resp.Header.Set(consts.HeaderServer, name)
	}
	if !resp.Header.Has(consts.HeaderDate) {
		resp.Header.Set(consts.HeaderDate, time.Now().UTC().Format(consts.TimeFormat))
	}
	if err := c.transfer.Respond(resp, body); err != nil {
		hlog.SystemLogger().Debugf("响应 %s 失败: %v", c.transfer.Request.Path, err)
	}
}

// RespondString 以 contentType 类型的文本 body 响应。
func (c *RequestContext) RespondString(statusCode int, contentType, body string) {
	resp := protocol.NewResponse(statusCode)
	resp.Header.Set(consts.HeaderContentType, contentType)
	resp.ContentLength = int64(len(body))
	c.Respond(resp, octet.NewMemorySourceString(c.server.d, body))
}

// RespondStatus 以状态码的标准短语作为正文响应。
func (c *RequestContext) RespondStatus(statusCode int) {
	c.RespondString(statusCode, consts.MIMETextPlain, consts.StatusMessage(statusCode)+"\n")
}

// RespondJSON 以 v 的 JSON 编码响应，编码失败时响应 500。
func (c *RequestContext) RespondJSON(statusCode int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		c.RespondStatus(consts.StatusInternalServerError)
		return err
	}
	c.RespondString(statusCode, consts.MIMEApplicationJSON, string(data))
	return nil
}

// RespondFile 以文件 path 的内容响应，Content-Type 由扩展名推断。
// 文件不存在时响应 404，其他打开错误响应 500。
func (c *RequestContext) RespondFile(path string) error {
	f, err := octet.OpenFileSource(c.server.d, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.RespondStatus(consts.StatusNotFound)
		} else {
			c.RespondStatus(consts.StatusInternalServerError)
		}
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = consts.DefaultContentType
	}
	resp := protocol.NewResponse(consts.StatusOK)
	resp.Header.Set(consts.HeaderContentType, contentType)
	resp.ContentLength = f.Size()
	c.Respond(resp, f)
	return nil
}
