package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bindharvest/pkg/storage"
)

// Adapter 实现了 storage.Store 接口，目标是本地文件系统
// (或者挂载到本地的网络盘，例如集群上的共享存储)
type Adapter struct {
	rootPath string
}

// NewAdapter 创建磁盘适配器，root 会被自动创建
func NewAdapter(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// abs 把通道内的斜杠路径翻译成本地路径
func (s *Adapter) abs(p string) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(p))
}

func (s *Adapter) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	target := s.abs(path)
	// 上层应该先 MkdirAll，但这里兜底一次，Create 不该因为目录
	// 还没建而失败
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}
	return os.Create(target)
}

func (s *Adapter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(s.abs(path))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Stat(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(s.abs(path))
	if os.IsNotExist(err) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *Adapter) MkdirAll(ctx context.Context, path string) error {
	return os.MkdirAll(s.abs(path), 0755)
}

func (s *Adapter) List(ctx context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(s.abs(path))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *Adapter) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(s.abs(newPath)), 0755); err != nil {
		return err
	}
	// 同一文件系统内 rename 是原子的，这正是 ".tmp 转正"需要的性质
	return os.Rename(s.abs(oldPath), s.abs(newPath))
}

func (s *Adapter) Remove(ctx context.Context, path string) error {
	err := os.Remove(s.abs(path))
	if os.IsNotExist(err) {
		return storage.ErrNotFound
	}
	return err
}
