package origin

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/muandane/slugcache/internal/resolver"
)

// maxDestinationSize bounds how much of an object is read as a destination.
const maxDestinationSize = 8 * 1024

type objectFetcher func(ctx context.Context, bucket, key string) (io.ReadCloser, error)

// S3 resolves slugs from objects named {prefix}{slug} whose body is the
// destination URL.
type S3 struct {
	bucket string
	prefix string
	fetch  objectFetcher
}

func NewS3(client *minio.Client, bucket, prefix string) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client cannot be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("origin bucket cannot be empty")
	}
	return &S3{
		bucket: bucket,
		prefix: prefix,
		fetch: func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
			obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
			if err != nil {
				return nil, err
			}
			// GetObject is lazy; Stat surfaces NoSuchKey before the body is read.
			if _, err := obj.Stat(); err != nil {
				obj.Close()
				return nil, err
			}
			return obj, nil
		},
	}, nil
}

func (s *S3) Lookup(ctx context.Context, slug string) (string, error) {
	key := s.prefix + slug

	body, err := s.fetch(ctx, s.bucket, key)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", fmt.Errorf("object %s/%s: %w", s.bucket, key, resolver.ErrNotFound)
		}
		return "", fmt.Errorf("get object %s/%s: %w", s.bucket, key, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxDestinationSize))
	if err != nil {
		return "", fmt.Errorf("read object %s/%s: %w", s.bucket, key, err)
	}
	return strings.TrimSpace(string(data)), nil
}
