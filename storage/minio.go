package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	MinIO "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.dedis.ch/onet/v3/log"
)

// MinioOptions locate a bucket on an S3 compatible server
type MinioOptions struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioStore keeps objects in one bucket
type MinioStore struct {
	client *MinIO.Client
	bucket string
}

// NewMinioStore connects to the server and creates the bucket if it is missing
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	client, err := MinIO.New(opts.Endpoint, &MinIO.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("new minio client failed: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, MinIO.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, err
		}
		log.Lvl1("created bucket", opts.Bucket)
	}
	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, k, r, size, MinIO.PutObjectOptions{ContentType: contentType(k)})
	return err
}

func (m *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ok, err := m.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	k, _ := cleanKey(key)
	return m.client.GetObject(ctx, m.bucket, k, MinIO.GetObjectOptions{})
}

func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = m.client.StatObject(ctx, m.bucket, k, MinIO.StatObjectOptions{})
	if err != nil {
		if MinIO.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List stops the listing goroutine of the client when it returns early
func (m *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return collectKeys(m.client.ListObjects(ctx, m.bucket, MinIO.ListObjectsOptions{Prefix: prefix, Recursive: true}))
}

// collectKeys drains a listing until it closes or reports an error
func collectKeys(objects <-chan MinIO.ObjectInfo) ([]string, error) {
	var keys []string
	for object := range objects {
		if object.Err != nil {
			return nil, object.Err
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
