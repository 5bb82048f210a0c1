// Package paths derives destination paths for harvested bindings.
//
// 这里的函数全部是纯函数：相同输入永远得到相同的路径字符串，
// 不碰文件系统，也不发网络请求。Orchestrator 可以在下载开始前
// 用它们做规划 (pre-flight planning)。
package paths

import (
	"net/url"
	"path"
	"strings"

	"bindharvest/pkg/types"
)

// DefaultMetsDir 是 METS 文件在 binding 目录下的默认子目录名
const DefaultMetsDir = "mets"

// BindingID 从 DC identifier 派生稳定的 binding ID
// 规则：取 URL 的最后一个路径段 (path-safe)
// 例: https://example.org/dc/1234 -> "1234"
func BindingID(dc types.DCIdentifier) types.BindingID {
	s := string(dc)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return types.BindingID(s)
}

// MetsFilename 返回约定的 METS 文件名: <bindingID>_METS.xml
func MetsFilename(dc types.DCIdentifier) string {
	return string(BindingID(dc)) + "_METS.xml"
}

// MetsPath 返回 METS 文件的目标路径: root/<bindingID>/subdir/filename
// subdir 为空时用 DefaultMetsDir，filename 为空时用 MetsFilename 的约定名。
// 例: ("https://example.org/dc/1234", "downloads", "", "")
//
//	-> "downloads/1234/mets/1234_METS.xml"
func MetsPath(dc types.DCIdentifier, root, subdir, filename string) string {
	if subdir == "" {
		subdir = DefaultMetsDir
	}
	if filename == "" {
		filename = MetsFilename(dc)
	}
	return path.Join(root, string(BindingID(dc)), subdir, filename)
}

// FilePath 返回一个文件记录的目标路径: root/<bindingID>/subdir/<basename>
// subdir 为空时从 location 自身推导 (例如 file://./alto/00004.xml 推出 "alto")。
// 例: location "file://./alto/00004.xml", root "downloads", binding "1234"
//
//	-> "downloads/1234/alto/00004.xml"
func FilePath(bindingID types.BindingID, location, root, subdir string) string {
	dir, base := SplitLocation(location)
	if subdir == "" {
		subdir = dir
	}
	return path.Join(root, string(bindingID), subdir, base)
}

// SplitLocation 把 METS 中的 location 引用拆成 (相对目录, 文件名)
//
// 支持两种形态：
//   - 包内相对路径: "file://./alto/00004.xml" -> ("alto", "00004.xml")
//   - 绝对 URL:     "https://host/a/b/p.jp2"  -> ("", "p.jp2")
//
// 绝对 URL 的目录结构是远端的实现细节，不映射到本地布局，
// 所以目录部分返回空，由调用方决定子目录。
func SplitLocation(location string) (dir, base string) {
	if rel, ok := strings.CutPrefix(location, "file://"); ok {
		rel = strings.TrimPrefix(rel, "./")
		rel = strings.TrimPrefix(rel, "/")
		return path.Dir(rel), path.Base(rel)
	}
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		return "", path.Base(u.Path)
	}
	rel := strings.TrimPrefix(location, "./")
	return path.Dir(rel), path.Base(rel)
}
