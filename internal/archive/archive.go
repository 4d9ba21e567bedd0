package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Archiver stores exported documents.
type Archiver interface {
	// Put writes data under name and returns its gs:// URI.
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)

	// Fetch returns the bytes stored at a gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// ObjectName builds the object path for an exported document, e.g.
// "exports/2025/01/15/stmt_1-20250115T100000Z.xml".
func ObjectName(prefix, statementID string, at time.Time) string {
	at = at.UTC()
	if statementID == "" {
		statementID = "forwarded"
	}
	file := fmt.Sprintf("%s-%s.xml", statementID, at.Format("20060102T150405Z"))
	return path.Join(strings.Trim(prefix, "/"), at.Format("2006/01/02"), file)
}

// ParseURI splits gs://bucket/object into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}

	return parts[0], parts[1], nil
}

// Filename extracts the base name from a GCS URI.
// e.g., "gs://bucket/exports/stmt_1.xml" → "stmt_1.xml"
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}

	return path.Base(parts[1])
}
