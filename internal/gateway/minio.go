package gateway

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/openmined/s3ops/internal/utils"
)

// MinioGateway serves the same contract through minio-go. Continuation tokens
// are the last key of the previous page.
type MinioGateway struct {
	client *minio.Client
}

var _ Gateway = (*MinioGateway)(nil)

func NewMinioGateway(cfg *Config) (*MinioGateway, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid endpoint: %w", err)
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: u.Scheme == "https",
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: create minio client: %w", err)
	}
	return &MinioGateway{client: client}, nil
}

func (g *MinioGateway) ListBuckets(ctx context.Context) ([]Bucket, error) {
	infos, err := g.client.ListBuckets(ctx)
	if err != nil {
		return nil, wrapMinioError("ListBuckets", "", "", err)
	}
	buckets := make([]Bucket, 0, len(infos))
	for _, b := range infos {
		buckets = append(buckets, Bucket{Name: b.Name, CreationDate: b.CreationDate})
	}
	return buckets, nil
}

func (g *MinioGateway) ListObjects(ctx context.Context, input *ListObjectsInput) (*ObjectPage, error) {
	maxKeys := int(input.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	// stop the listing goroutine once the page is full
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := g.client.ListObjects(ctx, input.Bucket, minio.ListObjectsOptions{
		Prefix:     input.Prefix,
		Recursive:  input.Delimiter == "",
		StartAfter: input.ContinuationToken,
		MaxKeys:    maxKeys,
	})

	page := &ObjectPage{}
	count := 0
	last := ""
	for obj := range objects {
		if obj.Err != nil {
			return nil, wrapMinioError("ListObjects", input.Bucket, input.Prefix, obj.Err)
		}
		if count == maxKeys {
			page.NextToken = last
			break
		}
		count++
		last = obj.Key
		if input.Delimiter != "" && strings.HasSuffix(obj.Key, input.Delimiter) && obj.Size == 0 && obj.ETag == "" {
			page.CommonPrefixes = append(page.CommonPrefixes, obj.Key)
			continue
		}
		page.Objects = append(page.Objects, ObjectEntry{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         cleanETag(obj.ETag),
			LastModified: obj.LastModified,
			StorageClass: obj.StorageClass,
		})
	}
	return page, nil
}

func (g *MinioGateway) GetObject(ctx context.Context, bucket, key string, sink io.Writer, onBytes ProgressFunc) (int64, error) {
	obj, err := g.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, wrapMinioError("GetObject", bucket, key, err)
	}
	defer obj.Close()

	n, err := io.Copy(newProgressWriter(sink, onBytes), obj)
	if err != nil {
		return n, wrapMinioError("GetObject", bucket, key, err)
	}
	return n, nil
}

func (g *MinioGateway) PutObject(ctx context.Context, bucket, key string, source io.Reader, size int64, onBytes ProgressFunc) error {
	_, err := g.client.PutObject(ctx, bucket, key, newProgressReader(source, onBytes), size, minio.PutObjectOptions{
		ContentType: utils.DetectContentType(key),
	})
	return wrapMinioError("PutObject", bucket, key, err)
}

func (g *MinioGateway) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteResult, error) {
	if len(keys) > MaxDeleteBatch {
		return nil, NewError(KindPrecondition, "DeleteObjects", bucket, "",
			fmt.Errorf("batch of %d keys exceeds %d", len(keys), MaxDeleteBatch))
	}

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	failed := make(map[string]error)
	for rerr := range g.client.RemoveObjects(ctx, bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.ObjectName == "" {
			// request level failure
			return nil, wrapMinioError("DeleteObjects", bucket, "", rerr.Err)
		}
		failed[rerr.ObjectName] = wrapMinioError("DeleteObjects", bucket, rerr.ObjectName, rerr.Err)
	}

	results := make([]DeleteResult, len(keys))
	for i, key := range keys {
		results[i] = DeleteResult{Key: key, Err: failed[key]}
	}
	return results, nil
}

func (g *MinioGateway) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	info, err := g.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, wrapMinioError("HeadObject", bucket, key, err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		ETag:         cleanETag(info.ETag),
		LastModified: info.LastModified,
		StorageClass: info.StorageClass,
		Metadata:     info.UserMetadata,
	}, nil
}

func classifyMinioError(err error) ErrorKind {
	resp := minio.ToErrorResponse(err)
	if resp.Code != "" || resp.StatusCode != 0 {
		if kind := kindFromCode(resp.Code, resp.StatusCode); kind != KindUnknown {
			return kind
		}
	}
	if kind, ok := classifyNetwork(err); ok {
		return kind
	}
	return KindUnknown
}

func wrapMinioError(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(classifyMinioError(err), op, bucket, key, err)
}
