package http1

import (
	"io"

	"github.com/favbox/dsk/common/buffer"
	"github.com/favbox/dsk/common/config"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/common/hlog"
	"github.com/favbox/dsk/network/dispatch"
	"github.com/favbox/dsk/network/octet"
	"github.com/favbox/dsk/protocol"
	"github.com/favbox/dsk/protocol/consts"
	"github.com/favbox/dsk/protocol/http1/ext"
)

var errAlreadyResponded = errs.NewUsage("该请求已经响应过")

// ServerTransfer 是服务端流上一次请求/响应交换的状态。
type ServerTransfer struct {
	stream *ServerStream

	Request  *protocol.Request
	content  *octet.MemorySource
	reader   bodyReader
	readDone bool

	response *protocol.Response
	body     bodyWriter
	wstate   writeState

	onDestroy func()

	// UserData 供调用方存放任意数据。
	UserData any
}

// Stream 返回传输所属的流。
func (t *ServerTransfer) Stream() *ServerStream {
	return t.stream
}

// Content 返回请求正文。
func (t *ServerTransfer) Content() *octet.MemorySource {
	return t.content
}

// Response 返回已提交的响应，尚未响应时为 nil。
func (t *ServerTransfer) Response() *protocol.Response {
	return t.response
}

// OnDestroy 设置传输结束（响应写完或流关闭）时的回调，恰好调用一次。
func (t *ServerTransfer) OnDestroy(fn func()) {
	t.onDestroy = fn
}

func (t *ServerTransfer) destroy() {
	if f := t.onDestroy; f != nil {
		t.onDestroy = nil
		f()
	}
}

// Respond 提交响应。body 为响应正文，可为 nil。
//
// 响应按请求顺序写出，不会在调用中同步写入连接，因此可以在处理器内部直接调用。
// 未声明长度的正文：FileSource 与已结束的 MemorySource 取其长度，
// 其余情况对 HTTP/1.1 请求使用分块编码，对 HTTP/1.0 请求写到连接关闭为止。
func (t *ServerTransfer) Respond(resp *protocol.Response, body octet.Source) error {
	s := t.stream
	if t.response != nil {
		if body != nil {
			body.Shutdown()
		}
		return errAlreadyResponded
	}
	if s.shutdown {
		if body != nil {
			body.Shutdown()
		}
		return errStreamShutdown
	}

	req := t.Request
	resp.ProtoMajor, resp.ProtoMinor = 1, req.ProtoMinor
	if req.WantsClose() {
		resp.ConnectionClose = true
	} else if !req.IsHTTP11() {
		resp.KeepAlive = true
	}

	switch {
	case req.IsHead() || !resp.BodyAllowed():
		if body != nil {
			body.Shutdown()
			body = nil
		}
		resp.Chunked = false
	case body == nil:
		resp.Chunked = false
		resp.ContentLength = 0
	case !resp.Chunked && resp.ContentLength < 0:
		switch b := body.(type) {
		case *octet.FileSource:
			resp.ContentLength = b.Size()
		case *octet.MemorySource:
			if b.IsDone() {
				resp.ContentLength = int64(b.Buffer().Len())
			}
		}
		if resp.ContentLength < 0 {
			if req.IsHTTP11() {
				resp.Chunked = true
			} else {
				resp.ConnectionClose = true
				resp.KeepAlive = false
			}
		}
	}
	if resp.Chunked && !req.IsHTTP11() {
		resp.Chunked = false
		resp.ContentLength = -1
		resp.ConnectionClose = true
		resp.KeepAlive = false
	}

	t.response = resp
	t.body.init(body, resp.Chunked, resp.ContentLength)
	if resp.WantsClose() {
		s.noMoreRequests = true
	}
	s.updateTraps()
	return nil
}

// ServerStream 在一条接入连接上解析请求、调用处理器并按序写出响应。
//
// 请求可以流水线方式到达，至多 MaxPipelinedRequests 个请求同时等待响应，
// 超出时暂停读取连接。
type ServerStream struct {
	d       *dispatch.Dispatcher
	source  octet.Source
	sink    octet.Sink
	options *config.HTTPServerStreamOptions
	handler func(t *ServerTransfer)

	incoming buffer.Buffer
	outgoing buffer.Buffer
	scanner  ext.HeaderScanner

	// 队首正在写出响应；reading 为正在读取正文的传输。
	transfers []*ServerTransfer
	reading   *ServerTransfer

	readTrap  *octet.Trap
	writeTrap *octet.Trap

	processing      bool
	readEOF         bool
	noMoreRequests  bool
	closeAfterWrite bool
	shutdown        bool
	latestError     error
	errorHook       *octet.Hook
	onClose         func()
}

// NewServerStream 创建基于 source/sink 的 HTTP 服务端流，并开始读取请求。
//
// 每个请求的标头（WaitForContent 时为完整正文）到达后调用 handler。
func NewServerStream(source octet.Source, sink octet.Sink, handler func(t *ServerTransfer), opts ...config.HTTPServerStreamOption) (*ServerStream, error) {
	options := config.NewHTTPServerStreamOptions(opts)
	if err := config.Validate(options); err != nil {
		return nil, err
	}
	d := source.ReadableHook().Dispatcher()
	s := &ServerStream{
		d:         d,
		source:    source,
		sink:      sink,
		options:   options,
		handler:   handler,
		errorHook: octet.NewHook(d),
	}
	s.updateTraps()
	return s, nil
}

// Dispatcher 返回流所属的分发器。
func (s *ServerStream) Dispatcher() *dispatch.Dispatcher {
	return s.d
}

// Options 返回流的选项。
func (s *ServerStream) Options() *config.HTTPServerStreamOptions {
	return s.options
}

// LatestError 返回导致流关闭的错误。
func (s *ServerStream) LatestError() error {
	return s.latestError
}

// ErrorHook 在流因错误关闭时被通知。
func (s *ServerStream) ErrorHook() *octet.Hook {
	return s.errorHook
}

// IsShutdown 报告流是否已关闭。
func (s *ServerStream) IsShutdown() bool {
	return s.shutdown
}

// SetCloseFunc 设置流关闭后的回调。
func (s *ServerStream) SetCloseFunc(fn func()) {
	s.onClose = fn
}

// Shutdown 立即关闭流，未完成的传输被销毁。
func (s *ServerStream) Shutdown() {
	s.close()
}

func (s *ServerStream) updateTraps() {
	if s.shutdown {
		return
	}
	if s.outgoing.Len() == 0 && s.finished() {
		s.close()
		return
	}

	wantRead := !s.readEOF &&
		(s.reading != nil || (!s.noMoreRequests && len(s.transfers) < s.options.MaxPipelinedRequests))
	if wantRead && s.readTrap == nil {
		s.readTrap = s.source.ReadableHook().Trap(s.onReadable)
	} else if !wantRead && s.readTrap != nil {
		s.readTrap.Remove()
		s.readTrap = nil
	}

	wantWrite := s.outgoing.Len() > 0
	if !wantWrite && len(s.transfers) > 0 {
		t := s.transfers[0]
		wantWrite = t.response != nil && t.wstate != writeDone && !t.body.waiting()
	}
	if wantWrite && s.writeTrap == nil {
		s.writeTrap = s.sink.WritableHook().Trap(s.onWritable)
	} else if !wantWrite && s.writeTrap != nil {
		s.writeTrap.Remove()
		s.writeTrap = nil
	}
}

// 所有响应都已写出且不会再有新的请求。
func (s *ServerStream) finished() bool {
	if s.closeAfterWrite {
		return len(s.transfers) == 0 || s.transfers[0].wstate == writeDone
	}
	return s.readEOF && len(s.transfers) == 0
}

func (s *ServerStream) onReadable() bool {
	_, err := s.source.ReadBuffer(&s.incoming)
	switch {
	case err == nil:
		s.processIncoming()
	case err == errs.ErrAgain:
	case err == io.EOF:
		s.readEOF = true
		s.processIncoming()
	default:
		s.fail(err)
	}
	s.updateTraps()
	return true
}

func (s *ServerStream) processIncoming() {
	if s.processing {
		return
	}
	s.processing = true
	defer func() { s.processing = false }()

	for !s.shutdown {
		if s.reading == nil {
			if s.noMoreRequests || len(s.transfers) >= s.options.MaxPipelinedRequests {
				return
			}
			if !s.readHeader() {
				return
			}
			continue
		}

		t := s.reading
		dst := t.content.Buffer()
		before := dst.Len()
		done, err := t.reader.read(&s.incoming, dst)
		if dst.Len() != before {
			t.content.Update()
		}
		if err != nil {
			s.fail(err)
			return
		}
		if s.options.WaitForContent && dst.Len() > s.options.MaxPostDataSize {
			s.rejectTooLarge(t)
			continue
		}
		if !done {
			if s.readEOF {
				s.fail(errs.New(errs.ErrPrematureEOF, errs.ErrorTypeIO, "读取请求正文时连接关闭"))
			}
			return
		}
		s.reading = nil
		t.readDone = true
		t.content.Done()
		if s.options.WaitForContent {
			s.handler(t)
		}
		s.advance()
	}
}

// 读取并解析一个请求标头，数据不足时返回 false。
func (s *ServerStream) readHeader() bool {
	limit := s.options.MaxHeaderSize
	n, ok := s.scanner.Scan(&s.incoming)
	if !ok {
		switch {
		case s.incoming.Len() > limit:
			s.fail(errs.NewProtocolf(errs.ErrHeaderTooLong, "请求标头超过 %d 字节", limit))
		case s.readEOF && s.incoming.Len() > 0:
			s.fail(errs.New(errs.ErrPrematureEOF, errs.ErrorTypeIO, "读取请求标头时连接关闭"))
		}
		return false
	}
	if n > limit {
		s.fail(errs.NewProtocolf(errs.ErrHeaderTooLong, "请求标头 %d 字节，上限 %d", n, limit))
		return false
	}
	raw := make([]byte, n)
	s.incoming.Read(raw)
	s.scanner.Reset()

	req, err := protocol.ParseRequest(raw)
	if err != nil {
		s.fail(ext.HeaderError("请求", err, raw))
		return false
	}

	t := &ServerTransfer{
		stream:  s,
		Request: req,
		content: octet.NewMemorySource(s.d),
	}
	t.reader.maxTrailer = limit
	t.reader.start(req.Chunked, req.ContentLength)
	s.transfers = append(s.transfers, t)
	if req.WantsClose() {
		s.noMoreRequests = true
	}

	if t.reader.state == readDone {
		t.readDone = true
		t.content.Done()
	} else {
		s.reading = t
		if s.options.WaitForContent && req.ContentLength > int64(s.options.MaxPostDataSize) {
			s.rejectTooLarge(t)
			return true
		}
	}
	if t.readDone || !s.options.WaitForContent {
		s.handler(t)
	}
	return true
}

// 请求正文超出上限：响应 413 并在写完后关闭连接。
func (s *ServerStream) rejectTooLarge(t *ServerTransfer) {
	s.reading = nil
	s.noMoreRequests = true
	t.readDone = true
	t.content.Shutdown()
	resp := protocol.NewResponse(consts.StatusRequestEntityTooLarge)
	resp.ConnectionClose = true
	t.Respond(resp, nil)
}

// 把已响应的传输的响应序列化到出站缓冲区。
func (s *ServerStream) fillOutgoing() error {
	for s.outgoing.Len() < s.options.MaxOutgoingData && len(s.transfers) > 0 {
		t := s.transfers[0]
		if t.response == nil {
			return nil
		}
		if t.wstate == writeInit {
			s.outgoing.Append(t.response.AppendHeader(nil))
			t.wstate = writeContent
		}
		if t.wstate == writeContent {
			done, err := t.body.fill(&s.outgoing, s.options.MaxOutgoingData, s.updateTraps)
			if err != nil || !done {
				return err
			}
			t.wstate = writeDone
			if t.response.WantsClose() {
				s.closeAfterWrite = true
			}
		}
		if !s.advance() {
			return nil
		}
	}
	return nil
}

// 移除队首已完成的传输，有传输被移除时返回 true。
func (s *ServerStream) advance() bool {
	popped := false
	for len(s.transfers) > 0 && !s.closeAfterWrite {
		t := s.transfers[0]
		if t.wstate != writeDone || !t.readDone {
			break
		}
		s.transfers[0] = nil
		s.transfers = s.transfers[1:]
		popped = true
		t.destroy()
	}
	if popped && s.incoming.Len() > 0 {
		s.processIncoming()
	}
	return popped
}

func (s *ServerStream) onWritable() bool {
	if err := s.fillOutgoing(); err != nil {
		s.fail(err)
		return true
	}
	if s.outgoing.Len() > 0 {
		if _, err := s.sink.WriteBuffer(&s.outgoing); err != nil && err != errs.ErrAgain {
			s.fail(err)
			return true
		}
	}
	s.updateTraps()
	return true
}

// 记录错误、关闭流并通知错误钩子。
func (s *ServerStream) fail(err error) {
	if s.shutdown {
		return
	}
	s.latestError = err
	if errs.HasType(err, errs.ErrorTypeProtocol) {
		hlog.SystemLogger().Errorf(hlog.ProtocolErrorFormat, err, s)
	}
	s.close()
	s.errorHook.Notify()
	s.errorHook.Clear()
}

func (s *ServerStream) close() {
	if s.shutdown {
		return
	}
	s.shutdown = true
	if s.readTrap != nil {
		s.readTrap.Remove()
		s.readTrap = nil
	}
	if s.writeTrap != nil {
		s.writeTrap.Remove()
		s.writeTrap = nil
	}
	pending := s.transfers
	s.transfers = nil
	s.reading = nil
	s.incoming.Clear()
	s.outgoing.Clear()
	s.source.Shutdown()
	s.sink.Shutdown()

	for _, t := range pending {
		t.body.abort()
		t.content.Abort()
		t.destroy()
	}
	if f := s.onClose; f != nil {
		s.onClose = nil
		f()
	}
}
