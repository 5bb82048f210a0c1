package disk

import (
	"context"
	"errors"
	"io"
	"testing"

	"bindharvest/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskAdapter_WriteReadStat(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// 1. 写入 (中间目录由 Create 兜底创建)
	w, err := store.Create(ctx, "1234/alto/00001.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<alto/>"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// 2. Stat 返回字节数
	size, err := store.Stat(ctx, "1234/alto/00001.xml")
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)

	// 3. 读回
	r, err := store.Open(ctx, "1234/alto/00001.xml")
	require.NoError(t, err)
	defer r.Close()
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("<alto/>"), content)
}

func TestDiskAdapter_NotFound(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Stat(ctx, "no/such/file")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = store.Open(ctx, "no/such/file")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = store.List(ctx, "no/such/dir")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestDiskAdapter_MkdirAllIdempotent(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// 重复创建同一目录不报错
	require.NoError(t, store.MkdirAll(ctx, "a/b/c"))
	require.NoError(t, store.MkdirAll(ctx, "a/b/c"))

	names, err := store.List(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names)
}

func TestDiskAdapter_Rename(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	w, err := store.Create(ctx, "1234/mets/x.tmp")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, store.Rename(ctx, "1234/mets/x.tmp", "1234/mets/x.xml"))

	// 旧路径消失，新路径可见
	_, err = store.Stat(ctx, "1234/mets/x.tmp")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	size, err := store.Stat(ctx, "1234/mets/x.xml")
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
}

func TestExists(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// 不存在 -> false, 无错
	ok, err := storage.Exists(ctx, store, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	// 零字节文件不算"已完成"
	w, err := store.Create(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	ok, err = storage.Exists(ctx, store, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	// 非空文件才算
	w, err = store.Create(ctx, "x")
	require.NoError(t, err)
	_, err = w.Write([]byte("1"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	ok, err = storage.Exists(ctx, store, "x")
	require.NoError(t, err)
	assert.True(t, ok)
}
