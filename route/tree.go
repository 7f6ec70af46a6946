package route

import (
	"regexp"
	"strconv"

	errs "github.com/favbox/dsk/common/errors"
)

// Match 是作用域谓词所匹配的请求属性。
type Match uint8

const (
	MatchPath      Match = iota // 不含查询串的请求路径
	MatchHost                   // Host 标头，含端口（如有）
	MatchUserAgent              // User-Agent 标头
	MatchBindPort               // 接受连接的 TCP 端口
	MatchBindPath               // 接受连接的 Unix 套接字路径
)

var matchNames = [...]string{"path", "host", "user-agent", "bind-port", "bind-path"}

func (m Match) String() string {
	if int(m) < len(matchNames) {
		return matchNames[m]
	}
	return "unknown"
}

// Info 是参与路由匹配的请求属性。
type Info struct {
	Path      string
	Host      string
	UserAgent string
	BindPort  int
	BindPath  string
}

func (i *Info) value(m Match) string {
	switch m {
	case MatchPath:
		return i.Path
	case MatchHost:
		return i.Host
	case MatchUserAgent:
		return i.UserAgent
	case MatchBindPort:
		if i.BindPort == 0 {
			return ""
		}
		return strconv.Itoa(i.BindPort)
	case MatchBindPath:
		return i.BindPath
	}
	return ""
}

type predicate struct {
	match Match
	re    *regexp.Regexp
}

type scope[H any] struct {
	parent   *scope[H]
	preds    []predicate
	children []*scope[H]
	handlers []H
}

// 按深度优先收集匹配的处理器：子作用域按声明顺序在前，本作用域的处理器在后。
func (s *scope[H]) collect(info *Info, out []H) []H {
	for _, p := range s.preds {
		if !p.re.MatchString(info.value(p.match)) {
			return out
		}
	}
	for _, c := range s.children {
		out = c.collect(info, out)
	}
	return append(out, s.handlers...)
}

// Tree 是由匹配谓词作用域组成的路由树。
//
// 配置时用 Save/Restore 嵌套作用域：Save 在当前作用域下新建子作用域并进入，
// AddMatch 为当前作用域增加谓词，AddHandler 为当前作用域追加处理器，
// Restore 回到上一层。一个作用域仅当它和所有祖先的谓词都匹配时才生效。
type Tree[H any] struct {
	root *scope[H]
	cur  *scope[H]
}

// New 创建只有根作用域的路由树，根作用域匹配一切请求。
func New[H any]() *Tree[H] {
	root := &scope[H]{}
	return &Tree[H]{root: root, cur: root}
}

// Save 新建子作用域并进入。
func (t *Tree[H]) Save() {
	child := &scope[H]{parent: t.cur}
	t.cur.children = append(t.cur.children, child)
	t.cur = child
}

// Restore 回到上一层作用域。
func (t *Tree[H]) Restore() error {
	if t.cur.parent == nil {
		return errs.NewConfigf("MatchRestore 没有对应的 MatchSave")
	}
	t.cur = t.cur.parent
	return nil
}

// Depth 返回当前作用域的嵌套深度，根为 0。
func (t *Tree[H]) Depth() int {
	n := 0
	for s := t.cur; s.parent != nil; s = s.parent {
		n++
	}
	return n
}

// AddMatch 为当前作用域增加谓词。pattern 是须完整匹配的正则表达式。
func (t *Tree[H]) AddMatch(m Match, pattern string) error {
	if int(m) >= len(matchNames) {
		return errs.NewConfigf("未知的匹配类型 %d", m)
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return errs.NewConfigf("%s 模式 %q 无效: %v", m, pattern, err)
	}
	t.cur.preds = append(t.cur.preds, predicate{match: m, re: re})
	return nil
}

// AddHandler 为当前作用域追加处理器。
func (t *Tree[H]) AddHandler(h H) {
	t.cur.handlers = append(t.cur.handlers, h)
}

// Resolve 按尝试顺序返回匹配 info 的全部处理器。
func (t *Tree[H]) Resolve(info *Info) []H {
	return t.root.collect(info, nil)
}
