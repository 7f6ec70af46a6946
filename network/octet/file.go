package octet

import (
	"io"

	"github.com/favbox/dsk/common/buffer"
	errs "github.com/favbox/dsk/common/errors"
	"github.com/favbox/dsk/network/dispatch"
	"golang.org/x/sys/unix"
)

// FileSource 是读取普通文件的可读流。普通文件总是可读，钩子使用空闲通知。
type FileSource struct {
	fd       int
	size     int64
	readable *Hook
}

var _ Source = (*FileSource)(nil)

// OpenFileSource 以只读方式打开 path。
func OpenFileSource(d *dispatch.Dispatcher, path string) (*FileSource, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errs.NewIO("open "+path, err)
	}
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, errs.NewIO("stat "+path, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		unix.Close(fd)
		return nil, errs.NewIO("open "+path, unix.EISDIR)
	}
	f := &FileSource{fd: fd, size: st.Size, readable: NewHook(d)}
	f.readable.SetIdleNotify(true)
	return f, nil
}

// Size 返回打开时的文件大小。
func (f *FileSource) Size() int64 {
	return f.size
}

func (f *FileSource) Read(p []byte) (int, error) {
	if f.fd < 0 {
		return 0, errs.ErrStreamShutdown
	}
	n, err := unix.Read(f.fd, p)
	switch {
	case err == unix.EINTR:
		return 0, errs.ErrAgain
	case err != nil:
		return 0, errs.NewIO("read", err)
	case n == 0 && len(p) > 0:
		return 0, io.EOF
	}
	return n, nil
}

func (f *FileSource) ReadBuffer(b *buffer.Buffer) (int, error) {
	if f.fd < 0 {
		return 0, errs.ErrStreamShutdown
	}
	n, err := b.ReadvFrom(f.fd)
	if err != nil && err != errs.ErrAgain && err != io.EOF {
		return 0, errs.NewIO("readv", err)
	}
	return n, err
}

// Shutdown 关闭文件。
func (f *FileSource) Shutdown() {
	if f.fd < 0 {
		return
	}
	unix.Close(f.fd)
	f.fd = -1
	f.readable.Clear()
}

func (f *FileSource) ReadableHook() *Hook {
	return f.readable
}
