package archive

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

const uploadTimeout = 2 * time.Minute

// GCS archives documents into a Cloud Storage bucket. It assumes Application
// Default Credentials are configured (gcloud auth application-default login).
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a storage client for bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Close closes the storage client.
func (g *GCS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Put implements Archiver.
func (g *GCS) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Put: write %s: %w", name, err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Put: finalize upload %s: %w", name, err)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucket, name), nil
}

// Fetch implements Archiver. The URI may name any bucket.
func (g *GCS) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}

	return data, nil
}

var _ Archiver = (*GCS)(nil)
