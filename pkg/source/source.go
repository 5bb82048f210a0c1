package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"bindharvest/pkg/types"
)

// Source 定义内容抓取通道 (content-fetch channel)
// 引擎只借用它，不拥有它；一个句柄不保证并发安全，
// 并行 worker 各自持有自己的实例。
type Source interface {
	// FetchMets 返回指定 binding 的 METS 文档字节流
	FetchMets(ctx context.Context, dc types.DCIdentifier) (io.ReadCloser, error)

	// FetchFile 按下载 URL 返回文件内容字节流
	// 流读取途中也可能出传输错误，调用方要处理
	FetchFile(ctx context.Context, url string) (io.ReadCloser, error)
}

// Enumerator 按集合枚举 binding 标识符 (可能跨多个协议分页)
type Enumerator interface {
	BindingIdentifiers(ctx context.Context, set types.SetID) ([]types.DCIdentifier, error)
}

// StatusError 表示远端返回了非 2xx 状态
// 引擎的失败统计需要区分 404/401，所以状态码要能取出来。
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: unexpected status %d for %s", e.Code, e.URL)
}

// StatusCode 从错误链里抽出 HTTP 状态码，没有则返回 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
