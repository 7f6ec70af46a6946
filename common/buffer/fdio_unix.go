//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package buffer

import "golang.org/x/sys/unix"

// 无 readv/writev 封装的平台逐个片段读写，语义不变。
func writev(fd int, iovs [][]byte) (int, error) {
	return unix.Write(fd, iovs[0])
}

func readv(fd int, iovs [][]byte) (int, error) {
	return unix.Read(fd, iovs[0])
}
