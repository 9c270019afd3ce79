// Package blob stores edition pictures on S3-compatible object storage.
package blob

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"corpora/api/internal/util"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrUnsupportedType = errors.New("only png and jpeg pictures are accepted")
	ErrTooLarge        = errors.New("picture exceeds the size limit")
	ErrEmpty           = errors.New("picture is empty")
)

var allowedPictureTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// ObjectStore is the subset of object storage the picture service needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
}

type Picture struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// Pictures validates and stores edition pictures under editions/.
type Pictures struct {
	objects   ObjectStore
	publicURL string
	maxBytes  int64
}

func NewPictures(objects ObjectStore, publicURL string, maxBytes int64) *Pictures {
	return &Pictures{objects: objects, publicURL: strings.TrimRight(publicURL, "/"), maxBytes: maxBytes}
}

// Upload sniffs the content type from the first bytes rather than trusting the
// client, rejects anything but PNG/JPEG or larger than the limit, and stores the
// file as editions/<uuid>-<slugged file name>.
func (p *Pictures) Upload(ctx context.Context, fileName string, r io.Reader, size int64) (Picture, error) {
	if size == 0 {
		return Picture{}, ErrEmpty
	}
	if p.maxBytes > 0 && size > p.maxBytes {
		return Picture{}, ErrTooLarge
	}

	buffered := bufio.NewReaderSize(r, 512)
	head, err := buffered.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Picture{}, fmt.Errorf("read picture: %w", err)
	}
	if len(head) == 0 {
		return Picture{}, ErrEmpty
	}
	contentType := http.DetectContentType(head)
	ext, ok := allowedPictureTypes[contentType]
	if !ok {
		return Picture{}, ErrUnsupportedType
	}

	name := util.ObjectName(fileName)
	if path.Ext(name) == "" {
		name += ext
	}
	key := "editions/" + name

	var body io.Reader = buffered
	if p.maxBytes > 0 {
		body = io.LimitReader(buffered, p.maxBytes)
	}
	if err := p.objects.Put(ctx, key, body, size, contentType); err != nil {
		return Picture{}, fmt.Errorf("store picture: %w", err)
	}
	return Picture{Key: key, URL: p.URL(key), ContentType: contentType, Size: size}, nil
}

func (p *Pictures) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return p.objects.Remove(ctx, key)
}

func (p *Pictures) URL(key string) string {
	return p.publicURL + "/" + key
}

// MinioStore implements ObjectStore on a single bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (m *MinioStore) Remove(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// Healthy reports whether the bucket is reachable.
func (m *MinioStore) Healthy(ctx context.Context) bool {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err == nil
}
