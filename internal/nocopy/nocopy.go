// Package nocopy 定义禁止拷贝结构体。
package nocopy

// NoCopy 嵌入结构体后，go vet 的 copylocks 检查会报告对其的值拷贝。
type NoCopy struct{}

func (*NoCopy) Lock()   {}
func (*NoCopy) Unlock() {}
