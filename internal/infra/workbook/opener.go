package workbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound marks a workbook that has not been published yet.
var ErrNotFound = errors.New("workbook not found")

// Opener returns the raw bytes of a workbook.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Describe() string
}

// FileOpener reads workbooks from the local filesystem, relative to Root when set.
type FileOpener struct {
	Root string
}

func (o FileOpener) Open(_ context.Context, path string) (io.ReadCloser, error) {
	if o.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(o.Root, path)
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return f, err
}

func (o FileOpener) Describe() string { return "file" }

// ObjectStoreConfig holds S3-compatible connection settings.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// ObjectOpener reads workbooks from an S3-compatible bucket.
type ObjectOpener struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewObjectOpener constructs the bucket reader.
func NewObjectOpener(cfg ObjectStoreConfig, logger *slog.Logger) (*ObjectOpener, error) {
	useSSL := cfg.UseSSL || strings.HasPrefix(strings.ToLower(cfg.Endpoint), "https")
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(sanitizeEndpoint(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &ObjectOpener{client: client, bucket: cfg.Bucket, logger: logger.With("component", "workbook.objectstore")}, nil
}

// Open downloads the object fully; workbooks are small and excelize needs the whole archive.
func (o *ObjectOpener) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	if _, statErr := obj.Stat(); statErr != nil {
		if minio.ToErrorResponse(statErr).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, o.bucket, key)
		}
		return nil, statErr
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("workbook downloaded", "key", key, "bytes", len(data))
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *ObjectOpener) Describe() string { return "s3://" + o.bucket }

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if strings.Contains(raw, "/") {
		parts := strings.Split(raw, "/")
		raw = parts[0]
	}
	return raw
}
