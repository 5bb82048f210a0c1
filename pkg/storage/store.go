package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound 目标路径不存在。对幂等检查来说这不是故障，
	// 而是正常的"还没下载过"信号。
	ErrNotFound = errors.New("storage: path not found")
)

// Store 定义采集目标端的存储通道 (destination storage channel)
// 实现可以是本地磁盘、S3/MinIO，或者再裹一层缓存装饰器。
//
// 所有操作都是按路径寻址的阻塞调用；取消/超时由调用方通过 ctx
// 和底层句柄控制。一个 Store 句柄不保证多 goroutine 并发安全，
// 并行处理多个 binding 时每个 worker 配自己的句柄。
type Store interface {
	// Create 打开 path 用于写入，必要时覆盖旧内容
	// 返回的 WriteCloser 必须 Close 之后内容才算落盘
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Open 打开 path 用于流式读取
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Stat 返回 path 处文件的字节数；不存在时返回 ErrNotFound
	Stat(ctx context.Context, path string) (int64, error)

	// MkdirAll 创建目录及全部中间目录，已存在不算错
	MkdirAll(ctx context.Context, path string) error

	// List 列出目录下的条目名 (不递归)
	List(ctx context.Context, path string) ([]string, error)

	// Rename 把 oldPath 原子地移动到 newPath
	// 引擎靠它实现 ".tmp 写完再转正"：最终路径上要么没有文件，
	// 要么是完整文件
	Rename(ctx context.Context, oldPath, newPath string) error

	// Remove 删除 path 处的文件
	Remove(ctx context.Context, path string) error
}

// Exists 是所有幂等检查共用的判定：非空文件存在即视为"之前已完成"
// 零字节文件不算数，半途而废的写入不该挡住重跑。
func Exists(ctx context.Context, s Store, path string) (bool, error) {
	size, err := s.Stat(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return size > 0, nil
}
