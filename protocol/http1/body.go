package http1

import (
	"io"
	"math"

	"github.com/favbox/dsk/common/buffer"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/network/octet"
	"github.com/favbox/dsk/protocol/http1/ext"
)

type readState uint8

const (
	readNeedHeader readState = iota
	readInBody
	readInBodyEOF
	readChunkHeader
	readInChunk
	readAfterChunk
	readTrailer
	readDone
)

type writeState uint8

const (
	writeInit writeState = iota
	writeContent
	writeDone
)

// bodyReader 从连接的入站缓冲区中增量取出一条消息的正文。
// 任意时刻输入不足都会返回，下次从原状态继续。
type bodyReader struct {
	state      readState
	remaining  int64
	maxTrailer int

	chunkSize ext.ChunkSizeParser
	chunkEnd  ext.ChunkEndParser
	trailer   ext.TrailerSkipper
}

// 按消息的分帧方式开始读取正文。length<0 表示读到连接关闭。
func (r *bodyReader) start(chunked bool, length int64) {
	switch {
	case chunked:
		r.state = readChunkHeader
	case length > 0:
		r.state = readInBody
		r.remaining = length
	case length == 0:
		r.state = readDone
	default:
		r.state = readInBodyEOF
	}
}

func clampInt(n int64) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// 将 in 中属于正文的数据零拷贝地移入 dst，正文读完时返回 true。
func (r *bodyReader) read(in, dst *buffer.Buffer) (bool, error) {
	for {
		switch r.state {
		case readInBody, readInChunk:
			if in.Len() == 0 {
				return false, nil
			}
			n := buffer.Transfer(dst, in, clampInt(r.remaining))
			r.remaining -= int64(n)
			if r.remaining > 0 {
				return false, nil
			}
			if r.state == readInBody {
				r.state = readDone
			} else {
				r.state = readAfterChunk
			}
		case readInBodyEOF:
			buffer.Drain(dst, in)
			return false, nil
		case readChunkHeader:
			size, ok, err := r.chunkSize.Parse(in)
			if err != nil || !ok {
				return false, err
			}
			if size == 0 {
				r.state = readTrailer
			} else {
				r.state = readInChunk
				r.remaining = int64(size)
			}
		case readAfterChunk:
			ok, err := r.chunkEnd.Parse(in)
			if err != nil || !ok {
				return false, err
			}
			r.state = readChunkHeader
		case readTrailer:
			ok, err := r.trailer.Skip(in, r.maxTrailer)
			if err != nil || !ok {
				return false, err
			}
			r.state = readDone
		case readDone:
			return true, nil
		default:
			return false, nil
		}
	}
}

// bodyWriter 把正文源中的数据按分帧方式搬运到出站缓冲区。
type bodyWriter struct {
	src     octet.Source
	chunked bool

	// 定长正文剩余的字节数，-1 表示读到源结束为止。
	remaining int64

	pending buffer.Buffer
	trap    *octet.Trap
	done    bool
}

func (w *bodyWriter) init(src octet.Source, chunked bool, length int64) {
	w.src = src
	w.chunked = chunked
	w.remaining = length
	if chunked {
		w.remaining = -1
	}
	w.done = src == nil
}

// 在 out 不超过 limit 字节的前提下搬运正文，正文已完整写入 out 时返回 true。
// 源暂无数据时在其可读钩子上设陷阱，可读后调用 wake。
func (w *bodyWriter) fill(out *buffer.Buffer, limit int, wake func()) (bool, error) {
	for !w.done && out.Len() < limit {
		if w.remaining == 0 {
			w.finish()
			break
		}
		if w.pending.Len() == 0 {
			_, err := w.src.ReadBuffer(&w.pending)
			switch {
			case err == nil:
			case err == errs.ErrAgain:
				w.wait(wake)
				return false, nil
			case err == io.EOF:
				if w.remaining > 0 {
					return false, errs.New(errs.ErrPrematureEOF, errs.ErrorTypeIO, "正文源提前结束")
				}
				if w.chunked {
					out.AppendString(ext.LastChunk)
				}
				w.finish()
				return true, nil
			default:
				return false, err
			}
		}

		room := limit - out.Len()
		if w.remaining > 0 && int64(room) > w.remaining {
			room = int(w.remaining)
		}
		if w.chunked {
			var part buffer.Buffer
			buffer.Transfer(&part, &w.pending, room)
			ext.WriteChunk(out, &part)
		} else {
			n := buffer.Transfer(out, &w.pending, room)
			if w.remaining > 0 {
				w.remaining -= int64(n)
			}
		}
	}
	return w.done, nil
}

func (w *bodyWriter) wait(wake func()) {
	if w.trap != nil {
		return
	}
	w.trap = w.src.ReadableHook().Trap(func() bool {
		w.trap = nil
		wake()
		return false
	})
}

// 正文写完：丢弃多余的数据并关闭源。
func (w *bodyWriter) finish() {
	w.done = true
	w.abort()
}

// 停止写出正文并释放源。
func (w *bodyWriter) abort() {
	if w.trap != nil {
		w.trap.Remove()
		w.trap = nil
	}
	w.pending.Clear()
	if w.src != nil {
		w.src.Shutdown()
		w.src = nil
	}
}

// 正在等待源变为可读。
func (w *bodyWriter) waiting() bool {
	return w.trap != nil
}
