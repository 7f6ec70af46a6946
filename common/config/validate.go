package config

import (
	exprValidator "github.com/bytedance/go-tagexpr/v2/validator"
	errs "github.com/favbox/dsk/common/errors"
)

// 单个 Unix 域套接字路径的最大长度。
const maxUnixPathLen = 107

var validate = exprValidator.New("vd")

// Validate 按 vd 标签校验选项结构体，失败时返回配置错误。
func Validate(options any) error {
	if err := validate.Validate(options); err != nil {
		return errs.NewConfigf("%v", err)
	}
	return nil
}

// ValidateClientStream 在 vd 标签之外检查目标地址的组合是否合法。
func ValidateClientStream(o *ClientStreamOptions) error {
	if err := Validate(o); err != nil {
		return err
	}
	set := 0
	for _, s := range []string{o.Hostname, o.Address, o.Path} {
		if s != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return errs.NewConfigf("必须指定 Hostname、Address 或 Path 之一")
	case set > 1:
		return errs.NewConfigf("Hostname、Address、Path 只能指定一个")
	case o.Path != "" && len(o.Path) > maxUnixPathLen:
		return errs.NewConfigf("Unix 套接字路径过长（%d 字节）", len(o.Path))
	case o.Path == "" && o.Port == 0:
		return errs.NewConfigf("未指定端口")
	}
	return nil
}
