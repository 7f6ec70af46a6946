package dispatch

// Idle 是已安排的空闲回调。
type Idle struct {
	fn func()
}

// Remove 取消尚未执行的空闲回调。对已执行的回调无效果。
func (i *Idle) Remove() {
	i.fn = nil
}
