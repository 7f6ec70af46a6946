package dispatch

import (
	"container/heap"
	"time"
)

// Timer 是分发器上的定时器。
type Timer struct {
	d        *Dispatcher
	deadline time.Time
	seq      uint64
	period   time.Duration
	index    int
	fn       func()
}

// Deadline 返回定时器的截止时间。
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Pending 报告定时器是否仍在等待触发。
func (t *Timer) Pending() bool {
	return t.index >= 0
}

// Remove 取消定时器。对已触发或正在触发的一次性定时器无效果。
func (t *Timer) Remove() {
	if t.index >= 0 {
		heap.Remove(&t.d.timers, t.index)
	}
	t.fn = nil
}

// 截止时间小者优先，相同时按序号。
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

func (h timerHeap) peek() *Timer {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

func (d *Dispatcher) schedule(t *Timer, deadline time.Time) {
	d.timerSeq++
	t.seq = d.timerSeq
	t.deadline = deadline
	if t.index >= 0 {
		heap.Fix(&d.timers, t.index)
	} else {
		heap.Push(&d.timers, t)
	}
}

// AddTimer 安排 fn 在 delay 之后执行一次。
func (d *Dispatcher) AddTimer(delay time.Duration, fn func()) *Timer {
	return d.AddTimerAt(time.Now().Add(delay), fn)
}

// AddTimerAt 安排 fn 在 deadline 执行一次。
func (d *Dispatcher) AddTimerAt(deadline time.Time, fn func()) *Timer {
	t := &Timer{d: d, fn: fn, index: -1}
	d.schedule(t, deadline)
	return t
}

// AddRepeatingTimer 安排 fn 每隔 period 执行一次，直到定时器被移除。
func (d *Dispatcher) AddRepeatingTimer(period time.Duration, fn func()) *Timer {
	if period <= 0 {
		period = time.Millisecond
	}
	t := &Timer{d: d, fn: fn, period: period, index: -1}
	d.schedule(t, time.Now().Add(period))
	return t
}

// AdjustTimer 将定时器的截止时间改为 delay 之后。已触发的一次性定时器不受影响。
func (d *Dispatcher) AdjustTimer(t *Timer, delay time.Duration) {
	if t.fn == nil {
		return
	}
	d.schedule(t, time.Now().Add(delay))
}

// NextDeadline 返回最早的定时器截止时间。
func (d *Dispatcher) NextDeadline() (time.Time, bool) {
	if t := d.timers.peek(); t != nil {
		return t.deadline, true
	}
	return time.Time{}, false
}

// 执行序号不超过 limit 的到期定时器。
func (d *Dispatcher) runTimers(limit uint64) {
	now := time.Now()
	for {
		t := d.timers.peek()
		if t == nil || t.deadline.After(now) || t.seq > limit {
			return
		}
		fn := t.fn
		if t.period > 0 {
			next := t.deadline.Add(t.period)
			if next.Before(now) {
				next = now.Add(t.period)
			}
			d.schedule(t, next)
		} else {
			heap.Pop(&d.timers)
			t.fn = nil
		}
		if fn != nil {
			fn()
		}
	}
}
