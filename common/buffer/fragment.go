package buffer

import (
	"github.com/bytedance/gopkg/lang/mcache"
)

const (
	// 原生片段的默认容量，为 2 的幂以便 mcache 精确回收。
	defaultFragmentSize = 8192

	// 片段空闲链表的容量上限。
	maxPooledFragments = 16
)

// 片段空闲链表。单线程事件循环外也可能有多个缓冲区在其他 goroutine 中使用，
// 故用带缓冲通道实现有界且并发安全的池。
var fragmentPool = make(chan *fragment, maxPooledFragments)

// 缓冲区的一个片段。
type fragment struct {
	buf     []byte    // 底层存储，len(buf) 即容量
	start   int       // 有效数据的起始偏移量
	length  int       // 有效数据的长度
	foreign bool      // 存储是否来自外部（零拷贝追加）
	destroy func()    // 外部存储的析构函数，仅调用一次
	next    *fragment // 下一个片段
}

func (f *fragment) end() int {
	return f.start + f.length
}

// 尾部可写的空间。外部片段只读。
func (f *fragment) avail() int {
	if f.foreign {
		return 0
	}
	return len(f.buf) - f.end()
}

func (f *fragment) data() []byte {
	return f.buf[f.start:f.end()]
}

// 分配一个原生片段，优先从空闲链表取。
func allocFragment() *fragment {
	select {
	case f := <-fragmentPool:
		return f
	default:
	}
	buf := mcache.Malloc(defaultFragmentSize)
	return &fragment{buf: buf[:cap(buf)]}
}

// 释放片段：外部片段调用其析构函数，原生片段回收到空闲链表或 mcache。
func freeFragment(f *fragment) {
	f.next = nil
	if f.foreign {
		destroy := f.destroy
		f.destroy = nil
		f.buf = nil
		if destroy != nil {
			destroy()
		}
		return
	}

	f.start, f.length = 0, 0
	if len(f.buf) == defaultFragmentSize {
		select {
		case fragmentPool <- f:
			return
		default:
		}
	}
	mcache.Free(f.buf)
	f.buf = nil
}
