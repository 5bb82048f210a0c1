package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"bindharvest/pkg/storage"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedStore 是一个装饰器，为底层 storage.Store 的存在性检查加 Redis 缓存
//
// 动机：重跑一个几十万文件的采集批次时，绝大多数 Stat 都会命中
// "已完成，跳过"。把非空文件的 Stat 结果缓存起来，可以省掉对
// 远端存储的大量 round-trip。只缓存正向结果 (非空存在)：
// "不存在"马上就会变成"存在"，缓存它只会制造重复下载。
type CachedStore struct {
	backend storage.Store
	client  *redis.Client
	ttl     time.Duration
	log     zerolog.Logger
}

type Config struct {
	RedisURL string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 缓存过期时间，例如 24h
}

func NewCachedStore(backend storage.Store, cfg Config, log zerolog.Logger) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		log:     log,
	}, nil
}

func (s *CachedStore) cacheKey(path string) string {
	return "bh:stat:" + path
}

// Stat 优先查 Redis
func (s *CachedStore) Stat(ctx context.Context, path string) (int64, error) {
	key := s.cacheKey(path)

	size, err := s.client.Get(ctx, key).Int64()
	if err == nil {
		return size, nil
	}
	if err != redis.Nil {
		// 缓存故障降级：Redis 挂了就退化为直查后端，不让采集停下
		s.log.Warn().Err(err).Msg("redis stat cache unavailable, falling through")
	}

	size, err = s.backend.Stat(ctx, path)
	if err != nil {
		return 0, err
	}

	// 缓存回填：只存非空文件。异步写，不阻塞主流程。
	if size > 0 {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, size, s.ttl)
		}()
	}
	return size, nil
}

// Create 透传，并提前失效旧缓存 (马上要被覆盖了)
func (s *CachedStore) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	s.client.Del(ctx, s.cacheKey(path))
	return s.backend.Create(ctx, path)
}

func (s *CachedStore) Rename(ctx context.Context, oldPath, newPath string) error {
	s.client.Del(ctx, s.cacheKey(oldPath), s.cacheKey(newPath))
	return s.backend.Rename(ctx, oldPath, newPath)
}

func (s *CachedStore) Remove(ctx context.Context, path string) error {
	s.client.Del(ctx, s.cacheKey(path))
	return s.backend.Remove(ctx, path)
}

// 纯读操作透传 —— 文件内容不进 Redis，采集对象动辄几 MB，
// 只缓存存在性元数据才划算
func (s *CachedStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.backend.Open(ctx, path)
}

func (s *CachedStore) MkdirAll(ctx context.Context, path string) error {
	return s.backend.MkdirAll(ctx, path)
}

func (s *CachedStore) List(ctx context.Context, path string) ([]string, error) {
	return s.backend.List(ctx, path)
}
