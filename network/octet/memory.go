package octet

import (
	"io"

	"github.com/favbox/dsk/common/buffer"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/network/dispatch"
)

// MemorySource 是由内存缓冲区提供数据的可读流。
//
// 生产者向 Buffer 追加数据后调用 Update，不再有数据时调用 Done。
// 有数据或已结束时，可读钩子处于空闲通知模式。
type MemorySource struct {
	buf      buffer.Buffer
	done     bool
	shutdown bool
	readable *Hook
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource 创建空的内存可读流。
func NewMemorySource(d *dispatch.Dispatcher) *MemorySource {
	return &MemorySource{readable: NewHook(d)}
}

// NewMemorySourceString 创建内容为 s 且已结束的内存可读流。
func NewMemorySourceString(d *dispatch.Dispatcher, s string) *MemorySource {
	m := NewMemorySource(d)
	m.buf.AppendString(s)
	m.Done()
	return m
}

// Buffer 返回待读数据所在的缓冲区。修改后需调用 Update。
func (m *MemorySource) Buffer() *buffer.Buffer {
	return &m.buf
}

// Update 通知读者缓冲区已变化。
func (m *MemorySource) Update() {
	m.readable.SetIdleNotify(m.buf.Len() > 0 || m.done)
}

// Done 标记数据结束，读完缓冲区后读者得到 io.EOF。
func (m *MemorySource) Done() {
	m.done = true
	m.Update()
}

// IsDone 报告是否已调用 Done。
func (m *MemorySource) IsDone() bool {
	return m.done
}

func (m *MemorySource) Read(p []byte) (int, error) {
	if m.shutdown {
		return 0, errs.ErrStreamShutdown
	}
	if m.buf.Len() == 0 {
		if m.done {
			return 0, io.EOF
		}
		return 0, errs.ErrAgain
	}
	n, _ := m.buf.Read(p)
	m.Update()
	return n, nil
}

func (m *MemorySource) ReadBuffer(b *buffer.Buffer) (int, error) {
	if m.shutdown {
		return 0, errs.ErrStreamShutdown
	}
	if m.buf.Len() == 0 {
		if m.done {
			return 0, io.EOF
		}
		return 0, errs.ErrAgain
	}
	n := buffer.Drain(b, &m.buf)
	m.Update()
	return n, nil
}

func (m *MemorySource) Shutdown() {
	if m.shutdown {
		return
	}
	m.shutdown = true
	m.buf.Clear()
	m.readable.Clear()
}

// Abort 中止数据：唤醒等待中的读者，此后读取返回 ErrStreamShutdown。
// 已调用 Done 的流不受影响。
func (m *MemorySource) Abort() {
	if m.shutdown || m.done {
		return
	}
	m.shutdown = true
	m.buf.Clear()
	m.readable.Notify()
	m.readable.Clear()
}

func (m *MemorySource) ReadableHook() *Hook {
	return m.readable
}

// MemorySink 将写入的数据收集到内存缓冲区，总是可写。
//
// 每次写入或关闭后通知 ChangedHook，便于消费者增量地取走数据。
type MemorySink struct {
	buf      buffer.Buffer
	shutdown bool
	writable *Hook
	changed  *Hook
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink 创建内存可写流。
func NewMemorySink(d *dispatch.Dispatcher) *MemorySink {
	m := &MemorySink{
		writable: NewHook(d),
		changed:  NewHook(d),
	}
	m.writable.SetIdleNotify(true)
	return m
}

// Buffer 返回已写入数据所在的缓冲区。
func (m *MemorySink) Buffer() *buffer.Buffer {
	return &m.buf
}

// IsShutdown 报告写方向是否已关闭，即数据是否完整。
func (m *MemorySink) IsShutdown() bool {
	return m.shutdown
}

// ChangedHook 在数据写入或写方向关闭时被通知。
func (m *MemorySink) ChangedHook() *Hook {
	return m.changed
}

func (m *MemorySink) Write(p []byte) (int, error) {
	if m.shutdown {
		return 0, errs.ErrStreamShutdown
	}
	m.buf.Append(p)
	m.changed.Notify()
	return len(p), nil
}

func (m *MemorySink) WriteBuffer(b *buffer.Buffer) (int, error) {
	if m.shutdown {
		return 0, errs.ErrStreamShutdown
	}
	n := buffer.Drain(&m.buf, b)
	m.changed.Notify()
	return n, nil
}

func (m *MemorySink) Shutdown() {
	if m.shutdown {
		return
	}
	m.shutdown = true
	m.writable.Clear()
	m.changed.Notify()
}

func (m *MemorySink) WritableHook() *Hook {
	return m.writable
}
