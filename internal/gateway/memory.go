package gateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/openmined/s3ops/internal/utils"
)

// Call records one gateway invocation on the memory driver.
type Call struct {
	Op     string
	Bucket string
	Key    string
	Token  string
	Keys   []string
}

// Hook runs before every call; a non-nil error fails the call with that error.
// DeleteObjects additionally runs the hook once per key with Op "DeleteKey".
type Hook func(ctx context.Context, call Call) error

type memObject struct {
	data         []byte
	etag         string
	contentType  string
	lastModified time.Time
}

// MemoryGateway keeps buckets in process memory.
type MemoryGateway struct {
	mu      sync.Mutex
	buckets map[string]map[string]*memObject
	created map[string]time.Time
	calls   []Call
	hook    Hook
}

var _ Gateway = (*MemoryGateway)(nil)

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		buckets: make(map[string]map[string]*memObject),
		created: make(map[string]time.Time),
	}
}

func (m *MemoryGateway) CreateBucket(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = make(map[string]*memObject)
		m.created[name] = time.Now()
	}
}

// Seed stores an object directly, creating the bucket if needed.
func (m *MemoryGateway) Seed(bucket, key string, data []byte) {
	m.CreateBucket(bucket)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket][key] = newMemObject(key, data)
}

// Keys returns the sorted keys of a bucket.
func (m *MemoryGateway) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedKeys(bucket)
}

func (m *MemoryGateway) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

func (m *MemoryGateway) SetHook(hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Calls returns the recorded calls for op, or all calls when op is empty.
func (m *MemoryGateway) Calls(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, 0, len(m.calls))
	for _, c := range m.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *MemoryGateway) record(ctx context.Context, call Call) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	hook := m.hook
	m.mu.Unlock()

	if hook == nil {
		return nil
	}
	return hook(ctx, call)
}

func (m *MemoryGateway) ListBuckets(ctx context.Context) ([]Bucket, error) {
	if err := m.record(ctx, Call{Op: "ListBuckets"}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make([]Bucket, 0, len(m.buckets))
	for name := range m.buckets {
		buckets = append(buckets, Bucket{Name: name, CreationDate: m.created[name]})
	}
	slices.SortFunc(buckets, func(a, b Bucket) int { return strings.Compare(a.Name, b.Name) })
	return buckets, nil
}

func (m *MemoryGateway) ListObjects(ctx context.Context, input *ListObjectsInput) (*ObjectPage, error) {
	if err := m.record(ctx, Call{Op: "ListObjects", Bucket: input.Bucket, Key: input.Prefix, Token: input.ContinuationToken}); err != nil {
		return nil, err
	}

	maxKeys := int(input.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.buckets[input.Bucket]
	if !ok {
		return nil, NewError(KindNotFound, "ListObjects", input.Bucket, "", fmt.Errorf("NoSuchBucket"))
	}

	page := &ObjectPage{}
	count := 0
	last := ""
	seenPrefix := make(map[string]bool)
	for _, key := range m.sortedKeys(input.Bucket) {
		if !strings.HasPrefix(key, input.Prefix) || key <= input.ContinuationToken {
			continue
		}
		common := ""
		if input.Delimiter != "" {
			rest := key[len(input.Prefix):]
			if i := strings.Index(rest, input.Delimiter); i >= 0 {
				common = input.Prefix + rest[:i+len(input.Delimiter)]
			}
		}
		if common != "" && seenPrefix[common] {
			continue
		}
		if count == maxKeys {
			page.NextToken = last
			break
		}
		count++
		if common != "" {
			seenPrefix[common] = true
			page.CommonPrefixes = append(page.CommonPrefixes, common)
			// skip the rest of this prefix on the next page
			last = common + "\xff"
			continue
		}
		last = key
		obj := objects[key]
		page.Objects = append(page.Objects, ObjectEntry{
			Key:          key,
			Size:         int64(len(obj.data)),
			ETag:         obj.etag,
			LastModified: obj.lastModified,
			StorageClass: "STANDARD",
		})
	}
	return page, nil
}

func (m *MemoryGateway) GetObject(ctx context.Context, bucket, key string, sink io.Writer, onBytes ProgressFunc) (int64, error) {
	if err := m.record(ctx, Call{Op: "GetObject", Bucket: bucket, Key: key}); err != nil {
		return 0, err
	}

	data, err := m.lookup("GetObject", bucket, key)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(newProgressWriter(sink, onBytes), bytes.NewReader(data))
	if err != nil {
		return n, NewError(KindUnknown, "GetObject", bucket, key, err)
	}
	return n, nil
}

func (m *MemoryGateway) PutObject(ctx context.Context, bucket, key string, source io.Reader, size int64, onBytes ProgressFunc) error {
	if err := m.record(ctx, Call{Op: "PutObject", Bucket: bucket, Key: key}); err != nil {
		return err
	}

	data, err := io.ReadAll(newProgressReader(source, onBytes))
	if err != nil {
		return NewError(KindUnknown, "PutObject", bucket, key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return NewError(KindPrecondition, "PutObject", bucket, key,
			fmt.Errorf("read %d bytes, expected %d", len(data), size))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.buckets[bucket]
	if !ok {
		return NewError(KindNotFound, "PutObject", bucket, key, fmt.Errorf("NoSuchBucket"))
	}
	objects[key] = newMemObject(key, data)
	return nil
}

func (m *MemoryGateway) DeleteObjects(ctx context.Context, bucket string, keys []string) ([]DeleteResult, error) {
	if err := m.record(ctx, Call{Op: "DeleteObjects", Bucket: bucket, Keys: slices.Clone(keys)}); err != nil {
		return nil, err
	}
	if len(keys) > MaxDeleteBatch {
		return nil, NewError(KindPrecondition, "DeleteObjects", bucket, "",
			fmt.Errorf("batch of %d keys exceeds %d", len(keys), MaxDeleteBatch))
	}

	m.mu.Lock()
	_, ok := m.buckets[bucket]
	hook := m.hook
	m.mu.Unlock()
	if !ok {
		return nil, NewError(KindNotFound, "DeleteObjects", bucket, "", fmt.Errorf("NoSuchBucket"))
	}

	results := make([]DeleteResult, len(keys))
	for i, key := range keys {
		results[i].Key = key
		if hook != nil {
			if err := hook(ctx, Call{Op: "DeleteKey", Bucket: bucket, Key: key}); err != nil {
				results[i].Err = err
				continue
			}
		}

		m.mu.Lock()
		if _, exists := m.buckets[bucket][key]; exists {
			delete(m.buckets[bucket], key)
		} else {
			results[i].Err = NewError(KindNotFound, "DeleteObjects", bucket, key, fmt.Errorf("NoSuchKey"))
		}
		m.mu.Unlock()
	}
	return results, nil
}

func (m *MemoryGateway) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if err := m.record(ctx, Call{Op: "HeadObject", Bucket: bucket, Key: key}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		return nil, NewError(KindNotFound, "HeadObject", bucket, key, fmt.Errorf("NoSuchBucket"))
	}
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, NewError(KindNotFound, "HeadObject", bucket, key, fmt.Errorf("NoSuchKey"))
	}
	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		ETag:         obj.etag,
		LastModified: obj.lastModified,
		StorageClass: "STANDARD",
		Metadata:     map[string]string{},
	}, nil
}

func (m *MemoryGateway) lookup(op, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.buckets[bucket]
	if !ok {
		return nil, NewError(KindNotFound, op, bucket, key, fmt.Errorf("NoSuchBucket"))
	}
	obj, ok := objects[key]
	if !ok {
		return nil, NewError(KindNotFound, op, bucket, key, fmt.Errorf("NoSuchKey"))
	}
	return obj.data, nil
}

// sortedKeys expects m.mu to be held.
func (m *MemoryGateway) sortedKeys(bucket string) []string {
	keys := make([]string, 0, len(m.buckets[bucket]))
	for key := range m.buckets[bucket] {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func newMemObject(key string, data []byte) *memObject {
	sum := md5.Sum(data)
	return &memObject{
		data:         bytes.Clone(data),
		etag:         hex.EncodeToString(sum[:]),
		contentType:  utils.DetectContentType(key),
		lastModified: time.Now().UTC(),
	}
}
