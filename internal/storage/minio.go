// Package storage provides the object-store capability the media normalizer
// depends on: raw bytes in, publicly fetchable URL out.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures the minio-backed store.
type Options struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	// PublicBaseURL overrides the endpoint-derived URL, for CDN fronting.
	PublicBaseURL string
}

// Store uploads media to a public bucket and hands back direct URLs. It
// implements syndicate.ObjectStore.
type Store struct {
	client *minio.Client
	opts   Options
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	store := &Store{client: client, opts: opts}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return store, nil
}

// Upload stores the bytes under a unique key and returns the public URL.
func (s *Store) Upload(ctx context.Context, data []byte, mimeType string, kind syndicate.MediaKind) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to upload empty media")
	}

	key := objectKey(mimeType, kind)
	_, err := s.client.PutObject(ctx, s.opts.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	return s.publicURL(key), nil
}

func objectKey(mimeType string, kind syndicate.MediaKind) string {
	ext := extensionFor(mimeType)
	return fmt.Sprintf("%s/%s%s", kind, uuid.New().String(), ext)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func (s *Store) publicURL(key string) string {
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + key
	}
	scheme := "http"
	if s.opts.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.opts.Endpoint, s.opts.Bucket, key)
}
