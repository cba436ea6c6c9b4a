// Package media stores course artwork in a Google Cloud Storage bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/irsalhamdi/edemy/random"
	"google.golang.org/api/option"
)

const (
	uploadTimeout = 2 * time.Minute
	deleteTimeout = 30 * time.Second
)

// Store persists uploaded files and serves them from a public URL.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

type GCS struct {
	client    *storage.Client
	bucket    string
	cdnDomain string
}

// NewGCS connects to bucket. Default credentials are used when credentialsFile
// is empty.
func NewGCS(ctx context.Context, bucket, cdnDomain, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("media bucket not configured")
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	cl, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &GCS{client: cl, bucket: bucket, cdnDomain: cdnDomain}, nil
}

func (g *GCS) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = ContentType(key)
	w.CacheControl = "public, max-age=86400"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("writing object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing object %q: %w", key, err)
	}

	return PublicURL(g.cdnDomain, g.bucket, key), nil
}

// Delete removes key. A missing object is not an error.
func (g *GCS) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting object %q in bucket %q: %w", key, g.bucket, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func PublicURL(cdnDomain, bucket, key string) string {
	if cdnDomain != "" {
		return "https://" + strings.TrimSuffix(cdnDomain, "/") + "/" + key
	}
	return "https://storage.googleapis.com/" + bucket + "/" + key
}

// ThumbnailKey names the object holding the thumbnail of a course.
func ThumbnailKey(courseID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("thumbnails/%s-%s%s", courseID, random.String(8), ext)
}

var ErrUnsupportedImage = errors.New("thumbnail must be a png, jpeg, webp or gif image")

// ContentType guesses the content type of key from its extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// CheckImage rejects files that cannot be served as a thumbnail.
func CheckImage(filename string) error {
	if ContentType(filename) == "application/octet-stream" {
		return ErrUnsupportedImage
	}
	return nil
}
