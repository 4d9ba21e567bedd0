package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))

	assert.Equal(t, "exports/2025/01/15/stmt_1-20250115T043000Z.xml", ObjectName("/exports/", "stmt_1", at))
	assert.Equal(t, "2025/01/15/forwarded-20250115T043000Z.xml", ObjectName("", "", at))
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://my-bucket/path/to/file.xml")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/file.xml", object)

	for _, bad := range []string{"s3://b/o", "gs://bucket-only", "gs:///object", "gs://b/"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "file.xml", Filename("gs://bucket/folder/file.xml"))
	assert.Equal(t, "bucket", Filename("gs://bucket"))
}
