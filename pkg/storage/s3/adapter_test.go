package s3

import (
	"errors"
	"fmt"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "typed NoSuchKey",
			err:  &s3types.NoSuchKey{},
			want: true,
		},
		{
			name: "typed NotFound",
			err:  &s3types.NotFound{},
			want: true,
		},
		{
			name: "wrapped typed error",
			err:  fmt.Errorf("s3 head failed: %w", &s3types.NotFound{}),
			want: true,
		},
		{
			name: "generic API error with NotFound code",
			err:  &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"},
			want: true,
		},
		{
			name: "generic API error with NoSuchKey code",
			err:  &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."},
			want: true,
		},
		{
			// 瞬态错误的消息里带 "404" 不代表对象不存在
			name: "transient error mentioning 404 in message",
			err:  errors.New("dial tcp: connect to http://minio:9000/bucket/404.xml: connection refused"),
			want: false,
		},
		{
			name: "API error with unrelated code and 404 in message",
			err:  &smithy.GenericAPIError{Code: "InternalError", Message: "upstream returned 404"},
			want: false,
		},
		{
			name: "plain transport error",
			err:  errors.New("read timeout"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}
