package dispatch

// 就绪通知后端。
type poller interface {
	// control 将描述符的关注事件从 old 改为 new。
	control(fd int, old, new Events) error

	// wait 至多等待 msec 毫秒（负数为无限），将就绪事件追加到 ready 并返回。
	wait(msec int, ready []readyEvent) ([]readyEvent, error)

	close() error
}
