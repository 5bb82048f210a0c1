// pkg/types/common.go
package types

import "strings"

// DCIdentifier 是 NLF 仓库中一个装订本 (Binding) 的外部标识符
// 形如: https://digi.kansalliskirjasto.fi/sanomalehti/binding/379973
// 这是一个"值对象"，应当是不可变的。
type DCIdentifier string

func (d DCIdentifier) String() string { return string(d) }
func (d DCIdentifier) IsZero() bool   { return d == "" }

// BindingID 是从 DCIdentifier 派生出的稳定短标识 (path-safe)
// 例如上面的例子派生为 "379973"
type BindingID string

func (b BindingID) String() string { return string(b) }

// SetID 标识 OAI-PMH 中的一个集合 (collection)，例如 "col-681"
type SetID string

func (s SetID) String() string { return string(s) }

// FileType 标识 METS 中列出的文件的类型
// 注意：这是一个开放的字符串类型而不是 iota 枚举，
// 新类型通过 mets.RegisterFileType 注册，而不是修改这里。
type FileType string

const (
	// ImageFile 扫描页面图片 (jp2 / jpeg / tiff)
	ImageFile FileType = "image"
	// AltoFile 页面的全文识别结果 (ALTO schema XML)
	AltoFile FileType = "alto"
	// UnknownFile 未能归类的文件。远端新增文件类型不允许中断采集，
	// 所以未知组合归到这里而不是报错。
	UnknownFile FileType = "unknown"
)

func (t FileType) String() string { return string(t) }

// ParseFileType 把 CLI/配置中的字符串转成 FileType (宽松匹配)
func ParseFileType(s string) FileType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alto", "text", "ocr":
		return AltoFile
	case "image", "img":
		return ImageFile
	default:
		return FileType(strings.ToLower(strings.TrimSpace(s)))
	}
}
