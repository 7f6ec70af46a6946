package buffer

import (
	"io"

	errs "github.com/favbox/dsk/common/errors"
	"golang.org/x/sys/unix"
)

// 单次聚合写入的最大片段数。
const maxIovecs = 64

// 将临时性系统错误统一为 errs.ErrAgain。
func normalizeErrno(err error) error {
	if err == unix.EAGAIN || err == unix.EINTR || err == unix.EWOULDBLOCK {
		return errs.ErrAgain
	}
	return err
}

// WritevTo 将头部至多 maxIovecs 个片段聚合写入非阻塞描述符 fd，成功时丢弃已写入的字节。
//
// 描述符暂不可写（EAGAIN/EINTR）时返回 errs.ErrAgain 且不消费任何字节。
func (b *Buffer) WritevTo(fd int) (int, error) {
	var arr [maxIovecs][]byte
	iovs := arr[:0]
	for f := b.first; f != nil && len(iovs) < maxIovecs; f = f.next {
		if f.length > 0 {
			iovs = append(iovs, f.data())
		}
	}
	if len(iovs) == 0 {
		return 0, nil
	}

	n, err := writev(fd, iovs)
	if err != nil {
		return 0, normalizeErrno(err)
	}
	b.consume(n, nil)
	return n, nil
}

// ReadvFrom 从非阻塞描述符 fd 直接读入尾片段的空闲空间及一个新片段。
//
// 对端关闭时返回 io.EOF，暂无数据时返回 errs.ErrAgain。
func (b *Buffer) ReadvFrom(fd int) (int, error) {
	var iovs [2][]byte
	cnt := 0

	tail := b.last
	tailAvail := 0
	if tail != nil {
		tailAvail = tail.avail()
	}
	if tailAvail > 0 {
		iovs[cnt] = tail.buf[tail.end():]
		cnt++
	}
	nf := allocFragment()
	iovs[cnt] = nf.buf
	cnt++

	n, err := readv(fd, iovs[:cnt])
	if err != nil {
		freeFragment(nf)
		return 0, normalizeErrno(err)
	}
	if n == 0 {
		freeFragment(nf)
		return 0, io.EOF
	}

	rem := n
	if tailAvail > 0 {
		t := rem
		if t > tailAvail {
			t = tailAvail
		}
		tail.length += t
		rem -= t
	}
	if rem > 0 {
		nf.length = rem
		b.push(nf)
	} else {
		freeFragment(nf)
	}
	b.size += n
	return n, nil
}
