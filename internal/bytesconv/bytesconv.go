package bytesconv

import (
	"errors"
	"unsafe"
)

const (
	lowerHex = "0123456789abcdef" // 小写的十六进制字符

	// 再左移 4 位仍不溢出 int64 的最大值。
	maxHexAccumulate = 1<<59 - 1
)

var (
	errEmptyInt               = errors.New("数字为空")
	errUnexpectedFirstChar    = errors.New("首字符不是十进制数字")
	errUnexpectedTrailingChar = errors.New("数字后有多余字符")
	errTooLongInt             = errors.New("十进制数溢出")
	errEmptyHexNum            = errors.New("十六进制数为空")
	errTooLargeHexNum         = errors.New("十六进制数溢出")
)

var (
	// ToLowerTable 将 ASCII 大写字母映射为小写，其余字节不变。
	ToLowerTable [256]byte

	// Hex2intTable 将十六进制字符映射为数值，非法字符映射为 16。
	Hex2intTable [256]byte
)

func init() {
	for i := 0; i < 256; i++ {
		c := byte(i)
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		ToLowerTable[i] = c

		switch {
		case '0' <= i && i <= '9':
			Hex2intTable[i] = byte(i - '0')
		case 'a' <= i && i <= 'f':
			Hex2intTable[i] = byte(i - 'a' + 10)
		case 'A' <= i && i <= 'F':
			Hex2intTable[i] = byte(i - 'A' + 10)
		default:
			Hex2intTable[i] = 16
		}
	}
}

// LowercaseBytes 原地将 b 转为小写。
func LowercaseBytes(b []byte) {
	for i, n := 0, len(b); i < n; i++ {
		p := &b[i]
		*p = ToLowerTable[*p]
	}
}

// B2s 将字节切片转为字符串，且不分配内存。
//
// 注意：转换后不得再修改 b。
func B2s(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// S2b 将字符串转为字节切片，且不分配内存。
//
// 注意：返回的切片只读。
func S2b(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// AppendUint 向 dst 追加正整数 n 并返回。
func AppendUint(dst []byte, n int) []byte {
	if n < 0 {
		panic("BUG：int 必须为正整数")
	}

	var b [20]byte
	buf := b[:]
	i := len(buf)
	var q int
	for n >= 10 {
		i--
		q = n / 10
		buf[i] = '0' + byte(n-q*10)
		n = q
	}
	i--
	buf[i] = '0' + byte(n)

	dst = append(dst, buf[i:]...)
	return dst
}

// AppendHexUint 向 dst 追加小写十六进制的正整数 n 并返回。
func AppendHexUint(dst []byte, n int) []byte {
	if n < 0 {
		panic("BUG: int 必须为正整数")
	}

	var b [16]byte
	i := len(b) - 1
	for {
		b[i] = lowerHex[n&0xf]
		n >>= 4
		if n == 0 {
			break
		}
		i--
	}
	return append(dst, b[i:]...)
}

// ParseUintBuf 解析 b 开头的十进制整数，返回值和消耗的字节数。
func ParseUintBuf(b []byte) (v, n int, err error) {
	n = len(b)
	if n == 0 {
		return -1, 0, errEmptyInt
	}
	for i := 0; i < n; i++ {
		c := b[i]
		k := c - '0'
		if k > 9 {
			if i == 0 {
				return -1, i, errUnexpectedFirstChar
			}
			return v, i, nil
		}
		vNew := 10*v + int(k)
		// 测试溢出
		if vNew < v {
			return -1, i, errTooLongInt
		}
		v = vNew
	}
	return
}

// ParseUint 解析 b 中的十进制整数，b 必须全部为数字。
func ParseUint(b []byte) (int, error) {
	v, n, err := ParseUintBuf(b)
	if err != nil {
		return -1, err
	}
	if n != len(b) {
		return -1, errUnexpectedTrailingChar
	}
	return v, nil
}

// AccumulateHex 将十六进制字符 c 累加到 n 上。
//
// c 不是十六进制字符时返回 ok=false；结果溢出时返回 errTooLargeHexNum。
func AccumulateHex(n int, c byte) (v int, ok bool, err error) {
	k := Hex2intTable[c]
	if k == 16 {
		return n, false, nil
	}
	if n > maxHexAccumulate {
		return n, true, errTooLargeHexNum
	}
	return n<<4 | int(k), true, nil
}

// ParseHexUint 解析 b 中的十六进制整数。
func ParseHexUint(b []byte) (int, error) {
	if len(b) == 0 {
		return -1, errEmptyHexNum
	}
	n := 0
	for _, c := range b {
		v, ok, err := AccumulateHex(n, c)
		if err != nil {
			return -1, err
		}
		if !ok {
			return -1, errUnexpectedTrailingChar
		}
		n = v
	}
	return n, nil
}

// EqualFold 判断 ASCII 字符串 a 与 b 在忽略大小写时是否相等。
func EqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if ToLowerTable[a[i]] != ToLowerTable[b[i]] {
			return false
		}
	}
	return true
}
