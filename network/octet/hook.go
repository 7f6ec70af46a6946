package octet

import (
	"time"

	"github.com/favbox/dsk/network/dispatch"
)

// TrapFunc 在钩子被通知时调用，返回 false 表示移除该陷阱。
type TrapFunc func() bool

// Trap 是注册在钩子上的一个观察者。
type Trap struct {
	hook    *Hook
	fn      TrapFunc
	removed bool
}

// Remove 移除陷阱。可在该陷阱自己的回调中安全调用。
func (t *Trap) Remove() {
	if t.removed {
		return
	}
	t.removed = true
	t.hook.untrap()
}

// Hook 持有零个或多个陷阱，事件发生时按注册顺序依次通知。
//
// 陷阱数在 0 与 1 之间变化时分别调用 onTrapped/onUntrapped，
// 描述符类的实现借此增删分发器上的监听。
// 空闲通知模式的钩子不依赖描述符：只要有陷阱，就在分发器的下一轮中通知。
type Hook struct {
	d     *dispatch.Dispatcher
	traps []*Trap
	count int

	notifying int
	cleared   bool

	onTrapped   func()
	onUntrapped func()

	idleNotify bool
	idle       *dispatch.Idle
	timer      *dispatch.Timer
}

// NewHook 创建绑定到分发器 d 的钩子。
func NewHook(d *dispatch.Dispatcher) *Hook {
	return &Hook{d: d}
}

// SetCallbacks 设置陷阱数在 0→1 与 1→0 时的回调。
func (h *Hook) SetCallbacks(trapped, untrapped func()) {
	h.onTrapped = trapped
	h.onUntrapped = untrapped
}

// Dispatcher 返回钩子所属的分发器。
func (h *Hook) Dispatcher() *dispatch.Dispatcher {
	return h.d
}

// IsTrapped 报告钩子上是否有陷阱。
func (h *Hook) IsTrapped() bool {
	return h.count > 0
}

// IsCleared 报告钩子是否已被 Clear。
func (h *Hook) IsCleared() bool {
	return h.cleared
}

// Trap 注册陷阱。钩子已被清除时返回的陷阱永不触发。
func (h *Hook) Trap(fn TrapFunc) *Trap {
	t := &Trap{hook: h, fn: fn}
	if h.cleared {
		t.removed = true
		return t
	}
	h.traps = append(h.traps, t)
	h.count++
	if h.count == 1 {
		if h.idleNotify {
			h.schedule(true)
		}
		if h.onTrapped != nil {
			h.onTrapped()
		}
	}
	return t
}

func (h *Hook) untrap() {
	h.count--
	if h.notifying == 0 {
		h.compact()
	}
	if h.count == 0 {
		h.cancelSchedule()
		if h.onUntrapped != nil {
			h.onUntrapped()
		}
	}
}

func (h *Hook) compact() {
	j := 0
	for _, t := range h.traps {
		if !t.removed {
			h.traps[j] = t
			j++
		}
	}
	for k := j; k < len(h.traps); k++ {
		h.traps[k] = nil
	}
	h.traps = h.traps[:j]
}

// Notify 按注册顺序调用每个陷阱一次。通知期间新注册的陷阱本次不触发。
func (h *Hook) Notify() {
	if h.cleared || h.count == 0 {
		return
	}
	h.notifying++
	n := len(h.traps)
	for i := 0; i < n && !h.cleared; i++ {
		t := h.traps[i]
		if t.removed {
			continue
		}
		if !t.fn() {
			t.Remove()
		}
	}
	h.notifying--
	if h.notifying == 0 && !h.cleared {
		h.compact()
	}
}

// SetIdleNotify 切换空闲通知模式。开启后只要钩子上有陷阱，每轮分发都会通知一次。
func (h *Hook) SetIdleNotify(on bool) {
	if h.idleNotify == on {
		return
	}
	h.idleNotify = on
	if on && h.count > 0 {
		h.schedule(true)
	} else if !on {
		h.cancelSchedule()
	}
}

// 首次通知经空闲回调尽快执行；此后经零延迟定时器重新安排，
// 保证每轮分发至多通知一次，不会在同一轮中反复空转。
func (h *Hook) schedule(first bool) {
	if h.idle != nil || h.timer != nil || h.cleared {
		return
	}
	fire := func() {
		h.idle, h.timer = nil, nil
		h.Notify()
		if h.idleNotify && h.count > 0 {
			h.schedule(false)
		}
	}
	if first {
		h.idle = h.d.AddIdle(fire)
	} else {
		h.timer = h.d.AddTimer(time.Duration(0), fire)
	}
}

func (h *Hook) cancelSchedule() {
	if h.idle != nil {
		h.idle.Remove()
		h.idle = nil
	}
	if h.timer != nil {
		h.timer.Remove()
		h.timer = nil
	}
}

// Clear 移除全部陷阱且此后不再通知，用于流关闭时。
func (h *Hook) Clear() {
	if h.cleared {
		return
	}
	h.cleared = true
	h.cancelSchedule()
	for _, t := range h.traps {
		t.removed = true
	}
	h.traps = nil
	wasTrapped := h.count > 0
	h.count = 0
	if wasTrapped && h.onUntrapped != nil {
		h.onUntrapped()
	}
}
