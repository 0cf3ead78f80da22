package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend serves a repository from an s3://bucket/prefix root.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Backend creates an S3 backend for the provided s3://bucket/prefix
// root. If endpoint is non-empty, the client is configured for
// S3-compatible storage (e.g. MinIO) with path-style addressing.
func NewS3Backend(ctx context.Context, root, endpoint string) (*S3Backend, error) {
	bucket, prefix, err := parseS3URI(root)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, clientOpts...)
	return &S3Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

func (b *S3Backend) RepoRoot() string {
	if b.prefix == "" {
		return fmt.Sprintf("s3://%s", b.bucket)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, b.prefix)
}

func (b *S3Backend) key(p string) string {
	p = strings.TrimPrefix(path.Clean(p), "/")
	if b.prefix == "" {
		return p
	}
	return strings.TrimSuffix(b.prefix, "/") + "/" + p
}

func parseS3URI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("invalid s3 uri %q", uri)
	}
	trim := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(trim, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in uri %q", uri)
	}
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return bucket, prefix, nil
}

func (b *S3Backend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", b.bucket, b.key(path), err)
	}
	return out.Body, nil
}

func (b *S3Backend) WriteFile(ctx context.Context, path string, r io.Reader) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", b.bucket, b.key(path), err)
	}
	return nil
}

func (b *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := b.key(prefix)
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}
	var out []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			rel := strings.TrimPrefix(*obj.Key, strings.TrimSuffix(b.prefix, "/"))
			out = append(out, strings.TrimPrefix(rel, "/"))
		}
	}
	return out, nil
}
