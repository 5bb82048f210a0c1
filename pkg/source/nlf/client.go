// Package nlf implements the source channel against the National Library
// of Finland digital collections (digi.kansalliskirjasto.fi).
package nlf

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"bindharvest/pkg/source"
	"bindharvest/pkg/types"

	"github.com/go-resty/resty/v2"
)

// DefaultAPIURL 是 NLF 的 OAI-PMH 端点
const DefaultAPIURL = "https://digi.kansalliskirjasto.fi/interfaces/OAI-PMH"

// Client 同时实现 source.Source 和 source.Enumerator
type Client struct {
	api  string // OAI-PMH 端点 (只用于枚举)
	http *resty.Client
}

// New 创建 NLF 客户端。apiURL 为空时用 DefaultAPIURL。
func New(apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		api: apiURL,
		http: resty.New().
			SetTimeout(5 * time.Minute).
			SetHeader("User-Agent", "bindharvest/1.0"),
	}
}

// HTTPClient 暴露底层 resty 客户端 (测试时挂 mock transport 用)
func (c *Client) HTTPClient() *resty.Client { return c.http }

// FetchMets 抓取 binding 的完整 METS: {dc}/mets.xml?full=true
func (c *Client) FetchMets(ctx context.Context, dc types.DCIdentifier) (io.ReadCloser, error) {
	return c.stream(ctx, fmt.Sprintf("%s/mets.xml?full=true", dc))
}

// FetchFile 按派生好的下载 URL 抓取文件内容
func (c *Client) FetchFile(ctx context.Context, url string) (io.ReadCloser, error) {
	return c.stream(ctx, url)
}

// stream 发起请求并返回未解析的 body 流
func (c *Client) stream(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true). // 流式透传，不整体读进内存
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("nlf: request %s: %w", url, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		resp.RawBody().Close()
		return nil, &source.StatusError{Code: resp.StatusCode(), URL: url}
	}
	return resp.RawBody(), nil
}

// -----------------------------------------------------------------------------
// OAI-PMH 枚举 (ListRecords + resumptionToken 翻页)
// -----------------------------------------------------------------------------

// oaiResponse 只映射我们关心的那一小块
// 字段名不带 namespace：encoding/xml 的非限定名匹配任意 namespace
type oaiResponse struct {
	Error struct {
		Code string `xml:"code,attr"`
		Text string `xml:",chardata"`
	} `xml:"error"`
	Records         []oaiRecord `xml:"ListRecords>record"`
	ResumptionToken string      `xml:"ListRecords>resumptionToken"`
}

type oaiRecord struct {
	Identifier string `xml:"header>identifier"`
}

// BindingIdentifiers 返回集合内全部 binding 的 DC identifier
// 分页对调用方透明：有 resumptionToken 就继续取下一页。
func (c *Client) BindingIdentifiers(ctx context.Context, set types.SetID) ([]types.DCIdentifier, error) {
	var ids []types.DCIdentifier

	params := map[string]string{
		"verb":           "ListRecords",
		"metadataPrefix": "oai_dc",
		"set":            string(set),
	}

	for {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(c.api)
		if err != nil {
			return nil, fmt.Errorf("nlf: list records: %w", err)
		}
		if resp.StatusCode() != 200 {
			return nil, &source.StatusError{Code: resp.StatusCode(), URL: c.api}
		}

		var page oaiResponse
		if err := xml.Unmarshal(resp.Body(), &page); err != nil {
			return nil, fmt.Errorf("nlf: malformed OAI-PMH response: %w", err)
		}
		if page.Error.Code != "" {
			return nil, fmt.Errorf("nlf: OAI-PMH error %s: %s", page.Error.Code, strings.TrimSpace(page.Error.Text))
		}

		for _, rec := range page.Records {
			ids = append(ids, dcFromHeader(rec.Identifier))
		}

		token := strings.TrimSpace(page.ResumptionToken)
		if token == "" {
			return ids, nil
		}
		// 翻页请求只带 verb + resumptionToken (协议规定其余参数互斥)
		params = map[string]string{
			"verb":            "ListRecords",
			"resumptionToken": token,
		}
	}
}

// dcFromHeader 把 OAI header identifier 归一化为 DC identifier
// NLF 直接给 URL；其他仓库常见 "oai:host:id" 形式，取最后一段。
func dcFromHeader(id string) types.DCIdentifier {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return types.DCIdentifier(id)
	}
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return types.DCIdentifier(id[i+1:])
	}
	return types.DCIdentifier(id)
}
