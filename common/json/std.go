//go:build stdjson || !(amd64 && (linux || darwin))

package json

import "encoding/json"

// Name 是当前使用的 JSON 实现。
const Name = "encoding/json"

var (
	// Marshal 编码 v。
	Marshal = json.Marshal
	// Unmarshal 解码 data 到 v。
	Unmarshal = json.Unmarshal
)
