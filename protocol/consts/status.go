package consts

import (
	"strconv"
)

// HTTP 状态码。
const (
	StatusContinue           = 100
	StatusSwitchingProtocols = 101
	StatusProcessing         = 102
	StatusEarlyHints         = 103

	StatusOK                   = 200
	StatusCreated              = 201
	StatusAccepted             = 202
	StatusNonAuthoritativeInfo = 203
	StatusNoContent            = 204
	StatusResetContent         = 205
	StatusPartialContent       = 206

	StatusMultipleChoices   = 300
	StatusMovedPermanently  = 301
	StatusFound             = 302
	StatusSeeOther          = 303
	StatusNotModified       = 304
	StatusTemporaryRedirect = 307
	StatusPermanentRedirect = 308

	StatusBadRequest                  = 400
	StatusUnauthorized                = 401
	StatusForbidden                   = 403
	StatusNotFound                    = 404
	StatusMethodNotAllowed            = 405
	StatusNotAcceptable               = 406
	StatusRequestTimeout              = 408
	StatusConflict                    = 409
	StatusGone                        = 410
	StatusLengthRequired              = 411
	StatusPreconditionFailed          = 412
	StatusRequestEntityTooLarge       = 413 // 请求正文超过 MaxPostDataSize
	StatusRequestURITooLong           = 414
	StatusUnsupportedMediaType        = 415
	StatusExpectationFailed           = 417
	StatusTeapot                      = 418
	StatusUnprocessableEntity         = 422
	StatusUpgradeRequired             = 426
	StatusTooManyRequests             = 429
	StatusRequestHeaderFieldsTooLarge = 431 // 请求标头超过 MaxHeaderSize

	StatusInternalServerError     = 500
	StatusNotImplemented          = 501
	StatusBadGateway              = 502
	StatusServiceUnavailable      = 503
	StatusGatewayTimeout          = 504
	StatusHTTPVersionNotSupported = 505
)

const unknownStatus = "Unknown Status Code"

var statusMessages = [600]string{
	StatusContinue:           "Continue",
	StatusSwitchingProtocols: "Switching Protocols",
	StatusProcessing:         "Processing",
	StatusEarlyHints:         "Early Hints",

	StatusOK:                   "OK",
	StatusCreated:              "Created",
	StatusAccepted:             "Accepted",
	StatusNonAuthoritativeInfo: "Non-Authoritative Information",
	StatusNoContent:            "No Content",
	StatusResetContent:         "Reset Content",
	StatusPartialContent:       "Partial Content",

	StatusMultipleChoices:   "Multiple Choices",
	StatusMovedPermanently:  "Moved Permanently",
	StatusFound:             "Found",
	StatusSeeOther:          "See Other",
	StatusNotModified:       "Not Modified",
	StatusTemporaryRedirect: "Temporary Redirect",
	StatusPermanentRedirect: "Permanent Redirect",

	StatusBadRequest:                  "Bad Request",
	StatusUnauthorized:                "Unauthorized",
	StatusForbidden:                   "Forbidden",
	StatusNotFound:                    "Not Found",
	StatusMethodNotAllowed:            "Method Not Allowed",
	StatusNotAcceptable:               "Not Acceptable",
	StatusRequestTimeout:              "Request Timeout",
	StatusConflict:                    "Conflict",
	StatusGone:                        "Gone",
	StatusLengthRequired:              "Length Required",
	StatusPreconditionFailed:          "Precondition Failed",
	StatusRequestEntityTooLarge:       "Request Entity Too Large",
	StatusRequestURITooLong:           "Request URI Too Long",
	StatusUnsupportedMediaType:        "Unsupported Media Type",
	StatusExpectationFailed:           "Expectation Failed",
	StatusTeapot:                      "I'm a teapot",
	StatusUnprocessableEntity:         "Unprocessable Entity",
	StatusUpgradeRequired:             "Upgrade Required",
	StatusTooManyRequests:             "Too Many Requests",
	StatusRequestHeaderFieldsTooLarge: "Request Header Fields Too Large",

	StatusInternalServerError:     "Internal Server Error",
	StatusNotImplemented:          "Not Implemented",
	StatusBadGateway:              "Bad Gateway",
	StatusServiceUnavailable:      "Service Unavailable",
	StatusGatewayTimeout:          "Gateway Timeout",
	StatusHTTPVersionNotSupported: "HTTP Version Not Supported",
}

// 已知状态码的 HTTP/1.1 状态行，init 之后只读。
var statusLines [len(statusMessages)][]byte

func init() {
	for code, msg := range statusMessages {
		if msg != "" {
			statusLines[code] = appendStatusLine(nil, code, msg)
		}
	}
}

func appendStatusLine(dst []byte, code int, msg string) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(code), 10)
	dst = append(dst, ' ')
	dst = append(dst, msg...)
	return append(dst, "\r\n"...)
}

// StatusMessage 返回状态码的标准短语，未知状态码返回 "Unknown Status Code"。
func StatusMessage(code int) string {
	if code < 0 || code >= len(statusMessages) || statusMessages[code] == "" {
		return unknownStatus
	}
	return statusMessages[code]
}

// StatusLine 返回 HTTP/1.1 状态行，如 "HTTP/1.1 200 OK\r\n"。
// 已知状态码的结果是共享的，调用方不得修改。
func StatusLine(code int) []byte {
	if code >= 0 && code < len(statusLines) && statusLines[code] != nil {
		return statusLines[code]
	}
	return appendStatusLine(nil, code, StatusMessage(code))
}

// StatusInformational 报告 code 是否为 1xx 临时状态。
func StatusInformational(code int) bool {
	return code >= 100 && code < 200
}

// StatusBodyAllowed 报告该状态码的响应能否带正文：1xx、204 与 304 不能。
func StatusBodyAllowed(code int) bool {
	return !StatusInformational(code) && code != StatusNoContent && code != StatusNotModified
}
