package mets

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"bindharvest/pkg/types"
)

// METS 命名空间。xlink 用的是 NLF 文档里实际出现的历史 URI，
// 不是 W3C 的规范 URI，改掉会解析不到 href。
const (
	metsNS  = "http://www.loc.gov/METS/"
	xlinkNS = "http://www.w3.org/TR/xlink"
)

// Opener 负责提供 METS 文档的可读流
// 传 Opener 而不是 io.Reader 的原因：懒加载 + 幂等重读都需要
// "在需要的时候再打开一次"的能力。
type Opener func() (io.ReadCloser, error)

// METS 是一个已定位 (但未必已解析) 的 manifest 文档
//
// 生命周期：构造时只记来源；第一次访问文件列表时整体解析并缓存；
// 之后的访问直接返回缓存，不再碰底层文档。解析是 all-or-nothing：
// 任何一个 file 元素非法都会让整个 manifest 不可用，绝不返回
// 部分可信的列表。
type METS struct {
	dc   types.DCIdentifier
	open Opener

	// 缓存状态：fetched 置位后 files/parseErr 不再变化
	fetched  bool
	files    []FileRecord
	parseErr error
}

// New 创建一个 METS 对象，不做任何 IO
func New(dc types.DCIdentifier, open Opener) *METS {
	return &METS{dc: dc, open: open}
}

// FromReader 包装一个已经打开的流 (只能完整遍历一次底层文档，
// 但缓存之后的重复访问不受影响)
func FromReader(dc types.DCIdentifier, r io.ReadCloser) *METS {
	used := false
	return New(dc, func() (io.ReadCloser, error) {
		if used {
			return nil, errors.New("mets: backing stream already consumed")
		}
		used = true
		return r, nil
	})
}

// DCIdentifier 返回所属 binding 的标识符
func (m *METS) DCIdentifier() types.DCIdentifier { return m.dc }

// Files 返回文档顺序的完整文件列表
// 第一次调用触发解析并缓存，之后的调用是幂等的 (包括失败也缓存，
// 同一个对象不会对同一份文档得出两种结论)。
func (m *METS) Files() ([]FileRecord, error) {
	if err := m.ensureFiles(); err != nil {
		return nil, err
	}
	return m.files, nil
}

// FilesOfType 在缓存列表上过滤，保持相对顺序，不重新解析
func (m *METS) FilesOfType(t types.FileType) ([]FileRecord, error) {
	all, err := m.Files()
	if err != nil {
		return nil, err
	}
	var out []FileRecord
	for _, f := range all {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *METS) ensureFiles() error {
	if m.fetched {
		return m.parseErr
	}

	r, err := m.open()
	if err != nil {
		// 打开失败不缓存：下一次调用还有机会 (例如文件刚被写好)
		return fmt.Errorf("mets: open document: %w", err)
	}
	defer r.Close()

	files, err := parseFileSec(r, BindingIDOf(m.dc))
	m.fetched = true
	m.files = files
	m.parseErr = err
	return err
}

// BindingIDOf 取 DC identifier 的最后一个路径段
// (和 paths.BindingID 同一条规则；在这里重复一份避免包循环)
func BindingIDOf(dc types.DCIdentifier) types.BindingID {
	s := string(dc)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return types.BindingID(s[i+1:])
		}
	}
	return types.BindingID(s)
}

// -----------------------------------------------------------------------------
// XML 解码
// -----------------------------------------------------------------------------

// fileElement 是 <mets:file> 的直接映射
// Locations 用 ",any" 收下全部子元素：位置计数按"子元素个数"算，
// 这样 0 个或出现第二个 <FLocat> (哪怕换了 LOCTYPE) 都会被发现。
type fileElement struct {
	MimeType     string       `xml:"MIMETYPE,attr"`
	Use          string       `xml:"USE,attr"`
	Checksum     string       `xml:"CHECKSUM,attr"`
	ChecksumType string       `xml:"CHECKSUMTYPE,attr"`
	Locations    []locElement `xml:",any"`
}

type locElement struct {
	XMLName xml.Name
	Href    string `xml:"http://www.w3.org/TR/xlink href,attr"`
}

// parseFileSec 流式遍历 mets:fileSec/mets:fileGrp/mets:file
// 任何结构问题 (畸形 XML、非法 file 元素) 都让整次解析失败。
func parseFileSec(r io.Reader, binding types.BindingID) ([]FileRecord, error) {
	d := xml.NewDecoder(r)

	records := []FileRecord{}
	var groupUse []string // fileGrp 可以嵌套，USE 用栈维护
	inFileSec := false

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("mets: malformed document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Space == metsNS && t.Name.Local == "fileSec":
				inFileSec = true

			case inFileSec && t.Name.Space == metsNS && t.Name.Local == "fileGrp":
				groupUse = append(groupUse, xmlAttr(t, "USE"))

			case inFileSec && t.Name.Space == metsNS && t.Name.Local == "file":
				var el fileElement
				if err := d.DecodeElement(&el, &t); err != nil {
					return nil, fmt.Errorf("mets: malformed file element: %w", err)
				}
				use := ""
				if len(groupUse) > 0 {
					use = groupUse[len(groupUse)-1]
				}
				rec, err := newFileRecord(el, use, binding)
				if err != nil {
					return nil, err
				}
				records = append(records, rec)
			}

		case xml.EndElement:
			if t.Name.Space == metsNS && t.Name.Local == "fileGrp" && len(groupUse) > 0 {
				groupUse = groupUse[:len(groupUse)-1]
			}
			if t.Name.Space == metsNS && t.Name.Local == "fileSec" {
				inFileSec = false
			}
		}
	}

	return records, nil
}

func xmlAttr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
