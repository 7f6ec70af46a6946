//go:build linux

package buffer

import "golang.org/x/sys/unix"

func writev(fd int, iovs [][]byte) (int, error) {
	return unix.Writev(fd, iovs)
}

func readv(fd int, iovs [][]byte) (int, error) {
	return unix.Readv(fd, iovs)
}
