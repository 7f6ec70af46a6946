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

var (
	errStreamShutdown   = errs.New(errs.ErrStreamShutdown, errs.ErrorTypeIO, "http 流")
	errConnectionClosed = errs.New(errs.ErrConnectionClosed, errs.ErrorTypeIO, "连接在响应完成前关闭")
	errCloseRequested   = errs.New(errs.ErrConnectionClosed, errs.ErrorTypeIO, "已排队 Connection: close 的请求")
)

// ClientRequestFuncs 是一次请求的回调，均可为 nil。
type ClientRequestFuncs struct {
	// HandleResponse 在收到最终响应的标头后调用，此时正文尚未到达。1xx 临时响应被跳过。
	HandleResponse func(t *ClientTransfer)

	// HandleContentComplete 在响应正文完整接收后调用。
	HandleContentComplete func(t *ClientTransfer)

	// HandleError 在传输因错误终止时调用。
	HandleError func(t *ClientTransfer, err error)

	// Destroy 对每个传输恰好调用一次，无论成功或失败。
	Destroy func(t *ClientTransfer)
}

// ClientTransfer 是客户端流上一次请求/响应交换的状态。
type ClientTransfer struct {
	stream *ClientStream
	funcs  ClientRequestFuncs

	Request  *protocol.Request
	Response *protocol.Response

	content *octet.MemorySource
	reader  bodyReader
	body    bodyWriter
	wstate  writeState

	// UserData 供调用方存放任意数据。
	UserData any
}

// Stream 返回传输所属的流。
func (t *ClientTransfer) Stream() *ClientStream {
	return t.stream
}

// Content 返回响应正文。正文到达时增量追加，接收完整后标记结束。
func (t *ClientTransfer) Content() *octet.MemorySource {
	return t.content
}

// ClientStream 在一条连接上流水线式地发送 HTTP 请求并按序解析响应。
//
// 请求按提交顺序写出，最多 MaxPipelinedRequests 个请求同时等待响应；
// 响应总是交给队首的传输，因此回调顺序与请求顺序一致。
type ClientStream struct {
	d       *dispatch.Dispatcher
	source  octet.Source
	sink    octet.Sink
	options *config.HTTPClientStreamOptions

	incoming buffer.Buffer
	outgoing buffer.Buffer
	scanner  ext.HeaderScanner

	// 队首正在接收响应；下标小于 writeIdx 的传输请求已写完。
	transfers []*ClientTransfer
	writeIdx  int

	readTrap  *octet.Trap
	writeTrap *octet.Trap

	closeQueued bool
	shutdown    bool
	latestError error
	errorHook   *octet.Hook
}

// NewClientStream 创建基于 source/sink 的 HTTP 客户端流，二者通常是同一连接的两端。
func NewClientStream(source octet.Source, sink octet.Sink, opts ...config.HTTPClientStreamOption) (*ClientStream, error) {
	options := config.NewHTTPClientStreamOptions(opts)
	if err := config.Validate(options); err != nil {
		return nil, err
	}
	d := source.ReadableHook().Dispatcher()
	return &ClientStream{
		d:         d,
		source:    source,
		sink:      sink,
		options:   options,
		errorHook: octet.NewHook(d),
	}, nil
}

// Options 返回流的选项。
func (s *ClientStream) Options() *config.HTTPClientStreamOptions {
	return s.options
}

// LatestError 返回导致流关闭的错误。
func (s *ClientStream) LatestError() error {
	return s.latestError
}

// ErrorHook 在流因错误关闭时被通知。
func (s *ClientStream) ErrorHook() *octet.Hook {
	return s.errorHook
}

// IsShutdown 报告流是否已关闭。
func (s *ClientStream) IsShutdown() bool {
	return s.shutdown
}

// Pending 返回尚未完成的传输数。
func (s *ClientStream) Pending() int {
	return len(s.transfers)
}

// Request 将请求排入队列。body 为请求正文，可为 nil。
//
// 正文长度未知时使用分块编码；FileSource 正文取文件大小作为长度。
// 请求写出时才会读取 body，写完或失败后 body 被关闭。
func (s *ClientStream) Request(req *protocol.Request, body octet.Source, funcs ClientRequestFuncs) (*ClientTransfer, error) {
	if s.shutdown {
		if body != nil {
			body.Shutdown()
		}
		return nil, errStreamShutdown
	}
	if s.closeQueued {
		if body != nil {
			body.Shutdown()
		}
		return nil, errCloseRequested
	}
	if !req.Header.Has(consts.HeaderUserAgent) {
		req.Header.Set(consts.HeaderUserAgent, consts.DefaultUserAgent)
	}
	if body == nil {
		req.Chunked = false
	} else if !req.Chunked && req.ContentLength < 0 {
		if f, ok := body.(*octet.FileSource); ok {
			req.ContentLength = f.Size()
		} else {
			req.Chunked = true
		}
	}

	t := &ClientTransfer{
		stream:  s,
		funcs:   funcs,
		Request: req,
		content: octet.NewMemorySource(s.d),
	}
	t.reader.maxTrailer = s.options.MaxHeaderSize
	t.body.init(body, req.Chunked, req.ContentLength)
	s.transfers = append(s.transfers, t)
	if req.ConnectionClose {
		s.closeQueued = true
	}
	s.updateTraps()
	return t, nil
}

// Shutdown 关闭流，未完成的传输以 ErrStreamShutdown 失败。
func (s *ClientStream) Shutdown() {
	s.close(errStreamShutdown)
}

func (s *ClientStream) updateTraps() {
	if s.shutdown {
		return
	}

	wantRead := len(s.transfers) > 0 && s.transfers[0].wstate != writeInit
	if wantRead && s.readTrap == nil {
		s.readTrap = s.source.ReadableHook().Trap(s.onReadable)
	} else if !wantRead && s.readTrap != nil {
		s.readTrap.Remove()
		s.readTrap = nil
	}

	wantWrite := s.outgoing.Len() > 0
	if !wantWrite && s.writeIdx < len(s.transfers) {
		t := s.transfers[s.writeIdx]
		if t.wstate == writeInit {
			wantWrite = s.writeIdx < s.options.MaxPipelinedRequests
		} else {
			wantWrite = !t.body.waiting()
		}
	}
	if wantWrite && s.writeTrap == nil {
		s.writeTrap = s.sink.WritableHook().Trap(s.onWritable)
	} else if !wantWrite && s.writeTrap != nil {
		s.writeTrap.Remove()
		s.writeTrap = nil
	}
}

// 把排队的请求序列化到出站缓冲区，直到达到上限或没有可写的内容。
func (s *ClientStream) fillOutgoing() error {
	for s.outgoing.Len() < s.options.MaxOutgoingData && s.writeIdx < len(s.transfers) {
		t := s.transfers[s.writeIdx]
		if t.wstate == writeInit {
			if s.writeIdx >= s.options.MaxPipelinedRequests {
				return nil
			}
			s.outgoing.Append(t.Request.AppendHeader(nil))
			t.wstate = writeContent
		}
		done, err := t.body.fill(&s.outgoing, s.options.MaxOutgoingData, s.updateTraps)
		if err != nil || !done {
			return err
		}
		t.wstate = writeDone
		s.writeIdx++
	}
	return nil
}

func (s *ClientStream) onWritable() bool {
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

func (s *ClientStream) onReadable() bool {
	_, err := s.source.ReadBuffer(&s.incoming)
	switch {
	case err == nil:
		s.processIncoming()
	case err == errs.ErrAgain:
	case err == io.EOF:
		s.processIncoming()
		s.handleEOF()
	default:
		s.fail(err)
	}
	s.updateTraps()
	return true
}

func (s *ClientStream) processIncoming() {
	for !s.shutdown {
		if len(s.transfers) == 0 || s.transfers[0].wstate == writeInit {
			if s.incoming.Len() == 0 {
				return
			}
			if ext.IsOnlyCRLF(&s.incoming) {
				s.incoming.Clear()
				return
			}
			s.fail(errs.NewProtocolf(errs.ErrUnsolicitedData, "%d 字节: %s", s.incoming.Len(), ext.BufferSnippet(s.incoming.Bytes())))
			return
		}

		t := s.transfers[0]
		if t.Response == nil {
			if !s.readHeader(t) {
				return
			}
			continue
		}

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
		if !done {
			return
		}
		s.complete(t)
	}
}

// 读取并解析队首传输的响应标头，数据不足时返回 false。
func (s *ClientStream) readHeader(t *ClientTransfer) bool {
	limit := s.options.MaxHeaderSize
	n, ok := s.scanner.Scan(&s.incoming)
	if !ok {
		if s.incoming.Len() > limit {
			s.fail(errs.NewProtocolf(errs.ErrHeaderTooLong, "响应标头超过 %d 字节", limit))
		}
		return false
	}
	if n > limit {
		s.fail(errs.NewProtocolf(errs.ErrHeaderTooLong, "响应标头 %d 字节，上限 %d", n, limit))
		return false
	}
	raw := make([]byte, n)
	s.incoming.Read(raw)
	s.scanner.Reset()

	resp, err := protocol.ParseResponse(raw)
	if err != nil {
		s.fail(ext.HeaderError("响应", err, raw))
		return false
	}
	if resp.IsInformational() {
		return true
	}

	t.Response = resp
	if f := t.funcs.HandleResponse; f != nil {
		f(t)
	}
	if s.shutdown {
		return false
	}

	if t.Request.IsHead() || !resp.BodyAllowed() {
		t.reader.state = readDone
		return true
	}
	t.reader.start(resp.Chunked, resp.ContentLength)
	if t.reader.state == readInBodyEOF && !resp.ConnectionClose && s.options.PrintWarnings {
		hlog.SystemLogger().Warnf("响应既无长度也未声明 Connection: close，正文将读到连接关闭: %s %s", t.Request.Method, t.Request.Path)
	}
	return true
}

// 队首传输的响应已完整接收。
func (s *ClientStream) complete(t *ClientTransfer) {
	s.transfers[0] = nil
	s.transfers = s.transfers[1:]
	early := t.wstate != writeDone
	if early {
		t.body.abort()
	} else {
		s.writeIdx--
	}
	t.content.Done()

	if f := t.funcs.HandleContentComplete; f != nil {
		f(t)
	}
	if f := t.funcs.Destroy; f != nil {
		f(t)
	}

	// 请求未写完就收到了完整响应，连接上的字节序列已无法继续使用
	if early || t.Response.WantsClose() || t.Request.ConnectionClose || t.reader.state == readInBodyEOF {
		s.close(errConnectionClosed)
	}
}

func (s *ClientStream) handleEOF() {
	if s.shutdown {
		return
	}
	if len(s.transfers) > 0 {
		t := s.transfers[0]
		if t.Response != nil && t.reader.state == readInBodyEOF {
			s.complete(t)
		}
	}
	if s.shutdown {
		return
	}
	if len(s.transfers) > 0 {
		s.fail(errs.New(errs.ErrPrematureEOF, errs.ErrorTypeIO, "等待响应时连接关闭"))
		return
	}
	s.close(errConnectionClosed)
}

// 记录错误、关闭流并通知错误钩子。
func (s *ClientStream) fail(err error) {
	if s.shutdown {
		return
	}
	s.latestError = err
	if errs.HasType(err, errs.ErrorTypeProtocol) {
		hlog.SystemLogger().Errorf(hlog.ProtocolErrorFormat, err, s)
	}
	s.close(err)
	s.errorHook.Notify()
	s.errorHook.Clear()
}

// 关闭流，以 err 终止所有未完成的传输。
func (s *ClientStream) close(err error) {
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
	s.writeIdx = 0
	s.incoming.Clear()
	s.outgoing.Clear()
	s.source.Shutdown()
	s.sink.Shutdown()

	for _, t := range pending {
		t.body.abort()
		t.content.Abort()
		if f := t.funcs.HandleError; f != nil {
			f(t, err)
		}
		if f := t.funcs.Destroy; f != nil {
			f(t)
		}
	}
}
