// Package dispatch 实现单线程的事件分发器（反应器）。
//
// 分发器管理三类事件源：
//   - 描述符就绪：每个描述符至多一个监听项，变更先记入待提交列表，下次轮询前统一提交给后端（epoll 或 poll）；
//   - 定时器：按绝对截止时间排序，截止时间相同时按创建顺序；
//   - 空闲回调：先进先出，在下一轮分发中执行。
//
// 除 Post 外，分发器的所有方法都只能在运行它的 goroutine 中调用。
// 其他 goroutine 通过 Post 投递函数，分发器经由唤醒管道被唤醒并在循环内执行它们。
package dispatch
