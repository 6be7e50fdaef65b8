package gateway

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// MaxDeleteBatch is the largest number of keys accepted by a single DeleteObjects call.
const MaxDeleteBatch = 1000

// ProgressFunc receives the number of bytes moved since the previous call.
// A negative delta means the transfer was rewound and is being replayed.
type ProgressFunc func(delta int64)

// Gateway is the object-storage surface the operation engine depends on.
// Every call is synchronous and independently retryable by the caller.
type Gateway interface {
	ListBuckets(ctx context.Context) ([]Bucket, error)
	ListObjects(ctx context.Context, input *ListObjectsInput) (*ObjectPage, error)
	GetObject(ctx context.Context, bucket, key string, sink io.Writer, onBytes ProgressFunc) (int64, error)
	PutObject(ctx context.Context, bucket, key string, source io.Reader, size int64, onBytes ProgressFunc) error
	// DeleteObjects removes up to MaxDeleteBatch keys. S3 and MinIO report a
	// missing key as deleted; only the memory driver returns a per-key not_found.
	DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteResult, error)
	HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

type Bucket struct {
	Name         string    `json:"name"`
	CreationDate time.Time `json:"creationDate"`
}

type ListObjectsInput struct {
	Bucket            string
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int32
}

// ObjectPage is one page of a listing. NextToken is empty once the listing is exhausted.
type ObjectPage struct {
	Objects        []ObjectEntry `json:"objects"`
	CommonPrefixes []string      `json:"commonPrefixes"`
	NextToken      string        `json:"nextToken"`
}

type ObjectEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"lastModified"`
	StorageClass string    `json:"storageClass"`
}

// Name returns the last path segment of the key.
func (o ObjectEntry) Name() string {
	return path.Base(strings.TrimSuffix(o.Key, "/"))
}

// IsFolder reports whether the key is a folder marker.
func (o ObjectEntry) IsFolder() bool {
	return strings.HasSuffix(o.Key, "/")
}

type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"contentType"`
	ETag         string            `json:"etag"`
	LastModified time.Time         `json:"lastModified"`
	StorageClass string            `json:"storageClass"`
	Metadata     map[string]string `json:"metadata"`
}

// DeleteResult is the outcome for one key of a DeleteObjects call. Err is nil on success.
type DeleteResult struct {
	Key string
	Err error
}

// PrefixName returns the display name of a common prefix ("a/b/" -> "b").
func PrefixName(prefix string) string {
	return path.Base(strings.TrimSuffix(prefix, "/"))
}

func cleanETag(etag string) string {
	return strings.ReplaceAll(etag, "\"", "")
}
