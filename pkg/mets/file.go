// Package mets reads and interprets METS manifest documents from NLF.
//
// 一个 METS 文档描述一个装订本 (binding) 的全部构成文件：
// 每个 <mets:file> 元素带类型信息、校验和以及来源位置。
// 本包只解释已经拿到手的文档，不负责抓取远端字节。
package mets

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"bindharvest/pkg/types"
)

var (
	// ErrAmbiguousLocation 表示一个 file 元素声明了 0 个或多个位置。
	// 多位置是硬错误：位置种类搞错 (URL 当成包内相对路径) 会悄悄污染
	// 整次采集，所以绝不允许"猜一个"。
	ErrAmbiguousLocation = errors.New("mets: file must have exactly one location")

	// ErrNoSource 表示该文件类型没有可用的下载端点
	ErrNoSource = errors.New("mets: no download source for file type")
)

// FileRecord 代表 METS 中列出的一个文件
//
// Location 是唯一的来源引用 (URL 或包内相对路径)。
// Checksum/Algorithm 是尽力而为的元数据：只有元素恰好声明了
// 一组校验和时才填充，缺失或含糊时留空而不是报错。
type FileRecord struct {
	Location  string
	Checksum  string
	Algorithm string
	Type      types.FileType
	BindingID types.BindingID
}

// Filename 返回 location 的文件名部分
func (f FileRecord) Filename() string {
	_, base := splitHref(f.Location)
	return base
}

// DownloadURL 推导该文件的内容下载地址
//
// 规则 (与 NLF 端点一致)：
//  1. location 本身是绝对 http(s) URL -> 原样使用
//  2. ALTO 文件 -> {dc}/page-<basename>
//     例: file://./alto/00002.xml + https://example.com/1234
//     -> https://example.com/1234/page-00002.xml
//  3. 其他类型没有公开端点 -> ErrNoSource
func (f FileRecord) DownloadURL(dc types.DCIdentifier) (string, error) {
	if strings.HasPrefix(f.Location, "http://") || strings.HasPrefix(f.Location, "https://") {
		return f.Location, nil
	}
	if f.Type == types.AltoFile {
		return fmt.Sprintf("%s/page-%s", dc, f.Filename()), nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrNoSource, f.Location, f.Type)
}

// -----------------------------------------------------------------------------
// 文件类型分类 (registry-based，不是 class 层级)
// -----------------------------------------------------------------------------

type classKey struct {
	use  string // fileGrp/file 的 USE 属性 (小写)
	mime string // MIMETYPE 属性 (小写)
}

// registry 把 METS 元数据组合映射到 FileType
// 只在包初始化阶段写入；运行期只读，所以跨 goroutine 读是安全的。
var registry = map[classKey]types.FileType{}

// RegisterFileType 注册一个 (USE, MIMETYPE) -> FileType 的映射
// 任一维度可以为空字符串表示通配。仅应在 init 阶段调用。
func RegisterFileType(use, mime string, t types.FileType) {
	registry[classKey{strings.ToLower(use), strings.ToLower(mime)}] = t
}

func init() {
	// NLF METS 中实际出现的组合
	RegisterFileType("alto", "text/xml", types.AltoFile)
	RegisterFileType("alto", "application/xml", types.AltoFile)
	RegisterFileType("alto", "", types.AltoFile)
	RegisterFileType("preservation", "image/jp2", types.ImageFile)
	RegisterFileType("reference", "image/jpeg", types.ImageFile)
	RegisterFileType("", "image/jp2", types.ImageFile)
	RegisterFileType("", "image/jpeg", types.ImageFile)
	RegisterFileType("", "image/tiff", types.ImageFile)
}

// Classify 根据 METS 元数据决定文件类型
// 查找顺序：精确组合 -> 仅 USE -> 仅 MIMETYPE -> UnknownFile
// 未知组合永远归类为 UnknownFile：远端新增类型不允许中断采集。
func Classify(use, mime string) types.FileType {
	use = strings.ToLower(use)
	mime = strings.ToLower(mime)
	if t, ok := registry[classKey{use, mime}]; ok {
		return t
	}
	if t, ok := registry[classKey{use, ""}]; ok {
		return t
	}
	if t, ok := registry[classKey{"", mime}]; ok {
		return t
	}
	return types.UnknownFile
}

// -----------------------------------------------------------------------------
// 从 XML 元素构造 FileRecord
// -----------------------------------------------------------------------------

// newFileRecord 把一个 <mets:file> 元素转成 FileRecord，纯转换，无副作用
// groupUse 是外层 <mets:fileGrp> 的 USE 属性 (file 自己的 USE 优先)
func newFileRecord(el fileElement, groupUse string, binding types.BindingID) (FileRecord, error) {
	// 1. 位置提取：必须恰好一个子元素声明位置
	if len(el.Locations) != 1 {
		return FileRecord{}, fmt.Errorf("%w: found %d", ErrAmbiguousLocation, len(el.Locations))
	}
	loc := el.Locations[0].Href

	// 2. 校验和：恰好一组 (CHECKSUM + CHECKSUMTYPE) 才记录
	// 算法名统一大写，下游比对时不用关心 "md5"/"MD5" 的差别
	var checksum, algorithm string
	if el.Checksum != "" {
		checksum = el.Checksum
		algorithm = strings.ToUpper(el.ChecksumType)
	}

	// 3. 类型分类
	use := el.Use
	if use == "" {
		use = groupUse
	}

	return FileRecord{
		Location:  loc,
		Checksum:  checksum,
		Algorithm: algorithm,
		Type:      Classify(use, el.MimeType),
		BindingID: binding,
	}, nil
}

// splitHref 和 paths.SplitLocation 的极简版，只取文件名
func splitHref(location string) (dir, base string) {
	rel := strings.TrimPrefix(location, "file://")
	rel = strings.TrimPrefix(rel, "./")
	if i := strings.Index(rel, "://"); i >= 0 {
		// 其他 scheme 的绝对 URL：只要路径部分的 basename
		rel = rel[i+3:]
	}
	return path.Dir(rel), path.Base(rel)
}
