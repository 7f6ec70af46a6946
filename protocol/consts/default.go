package consts

const (
	// DefaultUserAgent 是客户端请求未指定 User-Agent 时使用的值。
	DefaultUserAgent = "dsk"

	// TimeFormat 是 Date 标头的时间格式，时间须为 UTC。
	TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

	// DefaultContentType 是未知文件类型的 Content-Type。
	DefaultContentType = "application/octet-stream"
)
