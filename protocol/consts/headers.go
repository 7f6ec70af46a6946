package consts

// HTTP 标头名称，规范大小写形式。解析后的标头名称统一为小写。
const (
	HeaderHost             = "Host"
	HeaderUserAgent        = "User-Agent"
	HeaderServer           = "Server"
	HeaderDate             = "Date"
	HeaderLocation         = "Location"
	HeaderCookie           = "Cookie"
	HeaderSetCookie        = "Set-Cookie"
	HeaderContentType      = "Content-Type"
	HeaderContentLength    = "Content-Length"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderConnection       = "Connection"
	HeaderKeepAlive        = "Keep-Alive"
	HeaderTrailer          = "Trailer"
	HeaderExpect           = "Expect"
	HeaderAccept           = "Accept"
)

// 常用标头值。
const (
	HeaderValueChunked   = "chunked"
	HeaderValueIdentity  = "identity"
	HeaderValueClose     = "close"
	HeaderValueKeepAlive = "keep-alive"

	MIMETextPlain       = "text/plain; charset=utf-8"
	MIMEApplicationJSON = "application/json; charset=utf-8"
)

// HTTP 请求方法。
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodConnect = "CONNECT"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
)
