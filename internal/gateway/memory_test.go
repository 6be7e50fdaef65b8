package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedKeys(m *MemoryGateway, bucket string, n int) {
	for i := 0; i < n; i++ {
		m.Seed(bucket, fmt.Sprintf("obj-%05d", i), []byte("x"))
	}
}

func TestMemoryGateway_ListObjects_Paginates(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryGateway()
	seedKeys(m, "b", 25)

	var keys []string
	token := ""
	pages := 0
	for {
		page, err := m.ListObjects(ctx, &ListObjectsInput{Bucket: "b", ContinuationToken: token, MaxKeys: 10})
		require.NoError(t, err)
		pages++
		for _, o := range page.Objects {
			keys = append(keys, o.Key)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, keys, 25)
	assert.Equal(t, "obj-00000", keys[0])
	assert.Equal(t, "obj-00024", keys[24])
	assert.Len(t, m.Calls("ListObjects"), 3)
}

func TestMemoryGateway_ListObjects_Delimiter(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryGateway()
	m.Seed("b", "docs/", nil)
	m.Seed("b", "docs/a.txt", []byte("a"))
	m.Seed("b", "docs/img/1.png", []byte("1"))
	m.Seed("b", "docs/img/2.png", []byte("2"))
	m.Seed("b", "readme.md", []byte("r"))

	page, err := m.ListObjects(ctx, &ListObjectsInput{Bucket: "b", Prefix: "docs/", Delimiter: "/"})
	require.NoError(t, err)

	require.Len(t, page.Objects, 2)
	assert.Equal(t, "docs/", page.Objects[0].Key)
	assert.True(t, page.Objects[0].IsFolder())
	assert.Equal(t, "a.txt", page.Objects[1].Name())
	assert.Equal(t, []string{"docs/img/"}, page.CommonPrefixes)
	assert.Equal(t, "img", PrefixName(page.CommonPrefixes[0]))
	assert.Empty(t, page.NextToken)
}

func TestMemoryGateway_ListObjects_MissingBucket(t *testing.T) {
	m := NewMemoryGateway()
	_, err := m.ListObjects(context.Background(), &ListObjectsInput{Bucket: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGateway_PutGetHead(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryGateway()
	m.CreateBucket("b")

	var put int64
	err := m.PutObject(ctx, "b", "k", bytes.NewReader([]byte("hello")), 5, func(d int64) { put += d })
	require.NoError(t, err)
	assert.EqualValues(t, 5, put)

	var buf bytes.Buffer
	var got int64
	n, err := m.GetObject(ctx, "b", "k", &buf, func(d int64) { got += d })
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.EqualValues(t, 5, got)
	assert.Equal(t, "hello", buf.String())

	info, err := m.HeadObject(ctx, "b", "k")
	require.NoError(t, err)
	assert.EqualValues(t, 5, info.Size)
	assert.NotEmpty(t, info.ETag)

	_, err = m.HeadObject(ctx, "b", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGateway_PutObject_SizeMismatch(t *testing.T) {
	m := NewMemoryGateway()
	m.CreateBucket("b")
	err := m.PutObject(context.Background(), "b", "k", bytes.NewReader([]byte("abc")), 10, nil)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestMemoryGateway_DeleteObjects(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryGateway()
	m.Seed("b", "a", []byte("1"))
	m.Seed("b", "b", []byte("2"))

	results, err := m.DeleteObjects(ctx, "b", []string{"a", "gone"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrNotFound)
	assert.Equal(t, []string{"b"}, m.Keys("b"))

	_, err = m.DeleteObjects(ctx, "b", make([]string, MaxDeleteBatch+1))
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestMemoryGateway_Hook(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryGateway()
	m.Seed("b", "a", []byte("1"))
	m.Seed("b", "locked", []byte("2"))

	denied := NewError(KindPermission, "DeleteObjects", "b", "locked", errors.New("AccessDenied"))
	m.SetHook(func(_ context.Context, call Call) error {
		if call.Op == "DeleteKey" && call.Key == "locked" {
			return denied
		}
		if call.Op == "ListBuckets" {
			return NewError(KindAuth, "ListBuckets", "", "", errors.New("InvalidAccessKeyId"))
		}
		return nil
	})

	results, err := m.DeleteObjects(ctx, "b", []string{"a", "locked"})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrPermission)
	assert.Equal(t, []string{"locked"}, m.Keys("b"))

	_, err = m.ListBuckets(ctx)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestNew_SelectsDriver(t *testing.T) {
	gw, err := New(&Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryGateway{}, gw)

	gw, err = New(&Config{Driver: DriverS3, Endpoint: "http://localhost:4566", AccessKey: "test", SecretKey: "test"})
	require.NoError(t, err)
	assert.IsType(t, &S3Gateway{}, gw)

	gw, err = New(&Config{Driver: DriverMinio, Endpoint: "http://localhost:9000", AccessKey: "minioadmin", SecretKey: "minioadmin"})
	require.NoError(t, err)
	assert.IsType(t, &MinioGateway{}, gw)

	_, err = New(&Config{Driver: "ftp"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
