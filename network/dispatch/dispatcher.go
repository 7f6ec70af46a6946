package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/favbox/dsk/common/hlog"
	"github.com/favbox/dsk/internal/nocopy"
	"golang.org/x/sys/unix"
)

// Events 是描述符关注或就绪的事件集合。
type Events uint8

const (
	EventRead Events = 1 << iota
	EventWrite

	EventNone Events = 0
)

// FDFunc 在描述符就绪时被调用，events 为就绪事件与关注事件的交集。
type FDFunc func(fd int, events Events)

// 单次轮询最多处理的就绪事件数。
const maxReadyEvents = 128

type watch struct {
	events Events
	fn     FDFunc
}

type readyEvent struct {
	fd     int
	events Events
}

// Dispatcher 是单线程事件分发器。
type Dispatcher struct {
	noCopy nocopy.NoCopy

	poller poller

	watches    map[int]*watch // 期望的监听集合
	registered map[int]Events // 后端当前已知的监听集合
	changes    []int          // 上次提交后变更过的描述符

	// 分发过程中被关闭的描述符，本轮不再通知。
	closedInPass map[int]struct{}
	inPass       bool
	ready        []readyEvent

	timers   timerHeap
	timerSeq uint64
	idles    *queue.Queue

	mu        sync.Mutex
	posted    []func()
	wakeArmed bool
	wakeR     int
	wakeW     int

	quit   bool
	closed bool
}

// New 创建一个独立的分发器。
func New() (*Dispatcher, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	r, w, err := wakePipe()
	if err != nil {
		p.close()
		return nil, err
	}
	d := &Dispatcher{
		poller:       p,
		watches:      make(map[int]*watch),
		registered:   make(map[int]Events),
		closedInPass: make(map[int]struct{}),
		ready:        make([]readyEvent, 0, maxReadyEvents),
		idles:        queue.New(),
		wakeR:        r,
		wakeW:        w,
	}
	d.WatchFD(r, EventRead, d.onWake)
	return d, nil
}

var (
	defaultOnce       sync.Once
	defaultDispatcher atomic.Pointer[Dispatcher]
)

// Default 返回延迟创建的进程级默认分发器。后端不可用时 panic。
func Default() *Dispatcher {
	defaultOnce.Do(func() {
		d, err := New()
		if err != nil {
			panic("dsk: 创建默认分发器失败: " + err.Error())
		}
		defaultDispatcher.Store(d)
	})
	return defaultDispatcher.Load()
}

// IsDefault 报告 d 是否为默认分发器。默认分发器尚未创建时返回 false，且不会创建它。
func IsDefault(d *Dispatcher) bool {
	return d != nil && d == defaultDispatcher.Load()
}

// WatchFD 设置描述符 fd 关注的事件及回调，替换已有的监听项。
// events 为 EventNone 时等同于取消监听。
func (d *Dispatcher) WatchFD(fd int, events Events, fn FDFunc) {
	if events == EventNone || fn == nil {
		if _, ok := d.watches[fd]; ok {
			delete(d.watches, fd)
			d.changes = append(d.changes, fd)
		}
		return
	}
	if w, ok := d.watches[fd]; ok {
		w.fn = fn
		if w.events == events {
			return
		}
		w.events = events
	} else {
		d.watches[fd] = &watch{events: events, fn: fn}
	}
	d.changes = append(d.changes, fd)
}

// WatchedEvents 返回描述符 fd 当前关注的事件。
func (d *Dispatcher) WatchedEvents(fd int) Events {
	if w, ok := d.watches[fd]; ok {
		return w.events
	}
	return EventNone
}

// FDClosed 在关闭描述符之前调用，从监听集合、待提交列表和后端中清除 fd。
//
// 在分发过程中调用时，fd 在本轮剩余的就绪事件中不再被通知，
// 即使同一编号随即被新的资源复用并重新监听。
func (d *Dispatcher) FDClosed(fd int) {
	delete(d.watches, fd)
	if have, ok := d.registered[fd]; ok {
		if err := d.poller.control(fd, have, EventNone); err != nil {
			hlog.SystemLogger().Debugf("注销描述符 %d 失败: %v", fd, err)
		}
		delete(d.registered, fd)
	}
	for i := 0; i < len(d.changes); {
		if d.changes[i] == fd {
			d.changes = append(d.changes[:i], d.changes[i+1:]...)
			continue
		}
		i++
	}
	if d.inPass {
		d.closedInPass[fd] = struct{}{}
	}
}

// 将待提交的监听变更同步到后端。
func (d *Dispatcher) flushChanges() {
	for _, fd := range d.changes {
		want := EventNone
		if w, ok := d.watches[fd]; ok {
			want = w.events
		}
		have := d.registered[fd]
		if want == have {
			continue
		}
		if err := d.poller.control(fd, have, want); err != nil {
			hlog.SystemLogger().Warnf("更新描述符 %d 的监听失败: %v", fd, err)
			continue
		}
		if want == EventNone {
			delete(d.registered, fd)
		} else {
			d.registered[fd] = want
		}
	}
	d.changes = d.changes[:0]
}

// AddIdle 安排 fn 在下一轮分发中执行一次。
func (d *Dispatcher) AddIdle(fn func()) *Idle {
	i := &Idle{fn: fn}
	d.idles.Add(i)
	return i
}

// Post 可在任意 goroutine 中调用，安排 fn 在分发器的 goroutine 中执行。
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	d.posted = append(d.posted, fn)
	wake := !d.wakeArmed
	d.wakeArmed = true
	d.mu.Unlock()

	if wake {
		var b [1]byte
		for {
			_, err := unix.Write(d.wakeW, b[:])
			if err != unix.EINTR {
				break
			}
		}
	}
}

func (d *Dispatcher) onWake(fd int, _ Events) {
	var b [64]byte
	for {
		n, err := unix.Read(fd, b[:])
		if n <= 0 || err != nil {
			break
		}
	}
	d.mu.Lock()
	posted := d.posted
	d.posted = nil
	d.wakeArmed = false
	d.mu.Unlock()

	for _, fn := range posted {
		d.AddIdle(fn)
	}
}

// 计算本次轮询的等待时间，负数表示无限等待。
func (d *Dispatcher) pollTimeout() int {
	if d.idles.Length() > 0 {
		return 0
	}
	t := d.timers.peek()
	if t == nil {
		return -1
	}
	wait := time.Until(t.deadline)
	if wait <= 0 {
		return 0
	}
	// 向上取整到毫秒，避免醒得过早而空转。
	return int((wait + time.Millisecond - 1) / time.Millisecond)
}

// RunOnce 执行一轮分发：提交监听变更，等待就绪事件，
// 依次通知描述符回调、执行空闲回调和到期的定时器。
func (d *Dispatcher) RunOnce() {
	if d.closed {
		return
	}
	d.flushChanges()

	var err error
	d.ready, err = d.poller.wait(d.pollTimeout(), d.ready[:0])
	if err != nil && err != unix.EINTR {
		hlog.SystemLogger().Errorf("等待描述符就绪失败: %v", err)
	}

	// 本轮回调中新加入的定时器留到下一轮
	limit := d.timerSeq

	d.inPass = true
	for _, ev := range d.ready {
		if _, ok := d.closedInPass[ev.fd]; ok {
			continue
		}
		w, ok := d.watches[ev.fd]
		if !ok {
			continue
		}
		if e := ev.events & w.events; e != EventNone {
			w.fn(ev.fd, e)
		}
	}
	d.inPass = false
	for fd := range d.closedInPass {
		delete(d.closedInPass, fd)
	}

	// 执行期间新加入的空闲回调也在本轮执行，直到队列为空。
	for d.idles.Length() > 0 {
		i := d.idles.Remove().(*Idle)
		if fn := i.fn; fn != nil {
			i.fn = nil
			fn()
		}
	}

	d.runTimers(limit)
}

// Run 循环分发，直到 Quit 被调用或 ctx 结束。ctx 结束时返回 ctx.Err()。
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { d.Post(d.Quit) })
	defer stop()

	for !d.quit && !d.closed {
		d.RunOnce()
	}
	d.quit = false
	return ctx.Err()
}

// Quit 使正在执行的 Run 在本轮结束后返回。
func (d *Dispatcher) Quit() {
	d.quit = true
}

// Close 释放后端与唤醒管道。已注册的描述符不会被关闭。
func (d *Dispatcher) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.FDClosed(d.wakeR)
	unix.Close(d.wakeR)
	unix.Close(d.wakeW)
	return d.poller.close()
}
