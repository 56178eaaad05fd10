package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Sink delivers an artifact and reports where it ended up.
type Sink interface {
	Put(ctx context.Context, a Artifact) (location string, err error)
}

// FileSink writes artifacts into a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing into dir, creating it if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Put writes the artifact atomically. The temporary file is removed on any
// failure, so a partial export never replaces an existing one.
func (s *FileSink) Put(ctx context.Context, a Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, "."+a.Name+".*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(a.Body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing export: %w", err)
	}

	dest := filepath.Join(s.dir, a.Name)
	if err := os.Rename(tmpName, dest); err != nil {
		return "", fmt.Errorf("moving export into place: %w", err)
	}
	committed = true
	return dest, nil
}

// ObjectStore is the subset of the minio client used by ObjectSink.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration,
		reqParams url.Values) (*url.URL, error)
}

// ObjectSinkConfig holds configuration for S3-compatible storage.
type ObjectSinkConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// Prefix is prepended to every object key.
	// Default: "exports"
	Prefix string

	// URLExpiry is how long presigned download URLs stay valid.
	// Default: 24 hours
	URLExpiry time.Duration

	// Client overrides the minio client (optional).
	Client ObjectStore
}

// ObjectSink uploads artifacts to S3-compatible storage.
type ObjectSink struct {
	client ObjectStore
	bucket string
	prefix string
	expiry time.Duration
	now    func() time.Time
}

// NewObjectSink creates an object storage sink.
func NewObjectSink(cfg ObjectSinkConfig) (*ObjectSink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("object sink: bucket is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "exports"
	}
	if cfg.URLExpiry == 0 {
		cfg.URLExpiry = 24 * time.Hour
	}

	client := cfg.Client
	if client == nil {
		mc, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		client = mc
	}

	return &ObjectSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		expiry: cfg.URLExpiry,
		now:    time.Now,
	}, nil
}

// Put uploads the artifact under a unique key and returns a presigned URL.
func (s *ObjectSink) Put(ctx context.Context, a Artifact) (string, error) {
	key := path.Join(s.prefix, s.now().UTC().Format("2006/01/02"), uuid.NewString(), a.Name)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(a.Body), int64(len(a.Body)),
		minio.PutObjectOptions{
			ContentType:        a.ContentType,
			ContentDisposition: "attachment; filename=" + a.Name,
		})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	reqParams := url.Values{}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("presigned get object: %w", err)
	}
	return u.String(), nil
}
