package ext

import (
	errs "github.com/favbox/dsk/common/errors"
)

// HeaderError 返回一个带有标头片段的协议错误。
func HeaderError(typ string, err error, b []byte) error {
	return errs.New(err, errs.ErrorTypeProtocol, "读取 "+typ+" 标头出错，内容: "+BufferSnippet(b))
}
