package ignore

import (
	"fmt"
	"os"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 判断一个目标路径是否应该跳过下载
//
// 典型用途：一批 binding 已经打包进只读镜像归档，重跑时这些
// 路径不允许再写；把打包清单喂给 Matcher，引擎就会把它们计为
// ignored 而不是重新下载。语法与 gitignore 相同。
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 从可选的 pattern 文件和附加 pattern 构造 Matcher
// file 为空或不存在时只用 extra；两者都空得到一个全不匹配的 Matcher。
func NewMatcher(file string, extra ...string) (*Matcher, error) {
	if file != "" {
		if _, err := os.Stat(file); err == nil {
			ignorer, err := gitignore.CompileIgnoreFileAndLines(file, extra...)
			if err != nil {
				return nil, fmt.Errorf("ignore: compile %s: %w", file, err)
			}
			return &Matcher{ignorer: ignorer}, nil
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return &Matcher{ignorer: gitignore.CompileIgnoreLines(extra...)}, nil
}

// Matches 报告 path 是否在忽略集内。nil Matcher 安全，永远 false。
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
