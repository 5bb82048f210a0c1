package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"bindharvest/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Adapter 实现了 storage.Store 接口，目标是 S3 兼容的对象存储
// (AWS S3 或自建 MinIO)。通道内的斜杠路径直接作为 object key。
type Adapter struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string // 留空用 AWS 默认；MinIO 填 http://host:9000
	Region          string
	Bucket          string
	Prefix          string // 可选，所有 key 的公共前缀
	AccessKeyID     string
	SecretAccessKey string
}

// NewAdapter 初始化 S3 客户端
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须用 Path Style: http://host:9000/bucket/key
		o.UsePathStyle = true
	})

	return &Adapter{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *Adapter) key(path string) string {
	p := strings.TrimPrefix(path, "/")
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

// pendingUpload 在 Close 时才真正发起 PutObject
// 采集的对象都是页面级别的文件 (ALTO 几十 KB，图片几 MB)，
// 整体缓冲后一次上传比 multipart 简单得多。
type pendingUpload struct {
	buf    bytes.Buffer
	flush  func(data []byte) error
	closed bool
}

func (u *pendingUpload) Write(p []byte) (int, error) {
	return u.buf.Write(p)
}

func (u *pendingUpload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.flush(u.buf.Bytes())
}

func (s *Adapter) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	key := s.key(path)
	return &pendingUpload{
		flush: func(data []byte) error {
			_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
				Body:   bytes.NewReader(data),
			})
			if err != nil {
				return fmt.Errorf("s3 put failed: %w", err)
			}
			return nil
		},
	}, nil
}

func (s *Adapter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return resp.Body, nil
}

func (s *Adapter) Stat(ctx context.Context, path string) (int64, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("s3 head failed: %w", err)
	}
	return aws.ToInt64(resp.ContentLength), nil
}

// MkdirAll 在对象存储上是 no-op：S3 没有目录，key 的前缀就是布局
func (s *Adapter) MkdirAll(ctx context.Context, path string) error {
	return nil
}

func (s *Adapter) List(ctx context.Context, path string) ([]string, error) {
	prefix := s.key(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimPrefix(aws.ToString(cp.Prefix), prefix)
			names = append(names, strings.TrimSuffix(name, "/"))
		}
	}
	return names, nil
}

// Rename 用服务端复制 + 删除模拟。复制成功之前旧对象一直在，
// 所以中途失败最多留下一个多余的 tmp 对象，不会出现半个最终对象。
func (s *Adapter) Rename(ctx context.Context, oldPath, newPath string) error {
	oldKey := s.key(oldPath)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + oldKey),
		Key:        aws.String(s.key(newPath)),
	})
	if err != nil {
		if isNotFound(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("s3 copy failed: %w", err)
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(oldKey),
	})
	if err != nil {
		return fmt.Errorf("s3 delete after copy failed: %w", err)
	}
	return nil
}

func (s *Adapter) Remove(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// isNotFound 归一化各家 S3 实现的 404 表达
// 只认错误链里的类型和 API error code，不做字符串匹配：
// 报错消息里恰好带 "404" 的瞬态错误不能被当成对象不存在。
func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return true
	}
	// 兼容性：HeadObject 等操作只给不带 body 的 404，
	// SDK 把它包装成 code 为 "NotFound" 的 generic API error
	var ae smithy.APIError
	if errors.As(err, &ae) {
		code := ae.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
