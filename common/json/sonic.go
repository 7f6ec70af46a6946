//go:build (linux || darwin) && amd64 && !stdjson

package json

import "github.com/bytedance/sonic"

// Name 是当前使用的 JSON 实现。
const Name = "sonic"

var std = sonic.ConfigStd

var (
	// Marshal 使用 sonic 编码 v，行为与 encoding/json 一致（转义 HTML、键排序）。
	Marshal = std.Marshal
	// Unmarshal 使用 sonic 解码。
	Unmarshal = std.Unmarshal
)
