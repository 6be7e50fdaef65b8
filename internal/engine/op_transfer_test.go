package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/operation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, contents map[string]string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(contents))
	for _, name := range []string{"one.txt", "two.txt", "three.txt"} {
		data, ok := contents[name]
		if !ok {
			continue
		}
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
		paths = append(paths, path)
	}
	return dir, paths
}

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "a.txt", UploadKey("", "/tmp/a.txt"))
	assert.Equal(t, "docs/a.txt", UploadKey("docs", "/tmp/a.txt"))
	assert.Equal(t, "docs/a.txt", UploadKey("docs/", "a.txt"))
}

func TestUpload_Files(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.CreateBucket("b")
	_, files := writeFiles(t, map[string]string{"one.txt": "1", "two.txt": "22", "three.txt": "333"})
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartUpload("b", "docs", files))
	assert.Equal(t, operation.StateCompleted, snap.State)
	assert.EqualValues(t, 3, snap.CompletedUnits)
	assert.EqualValues(t, 6, snap.TotalBytes)
	assert.EqualValues(t, 6, snap.TransferredBytes)
	assert.ElementsMatch(t, []string{"docs/one.txt", "docs/two.txt", "docs/three.txt"}, snap.TransferResult().Items)

	data, ok := gw.Object("b", "docs/three.txt")
	require.True(t, ok)
	assert.Equal(t, "333", string(data))
}

func TestUpload_NoFiles(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartUpload("b", "", nil))
	assert.Equal(t, operation.StateCompleted, snap.State)
	assert.Empty(t, snap.TransferResult().Items)
	assert.Empty(t, gw.Calls(""))
}

func TestUpload_ItemFailureIsRecorded(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.CreateBucket("b")
	_, files := writeFiles(t, map[string]string{"one.txt": "1", "two.txt": "2", "three.txt": "3"})
	gw.SetHook(func(ctx context.Context, c gateway.Call) error {
		if c.Op == "PutObject" && strings.HasSuffix(c.Key, "two.txt") {
			return gateway.NewError(gateway.KindPermission, "PutObject", c.Bucket, c.Key, errors.New("AccessDenied"))
		}
		return nil
	})
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartUpload("b", "", files))
	assert.Equal(t, operation.StateCompleted, snap.State)
	assert.EqualValues(t, 3, snap.CompletedUnits)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, files[1], snap.Errors[0].Item)
	assert.Equal(t, gateway.KindPermission, snap.Errors[0].Kind)
	assert.ElementsMatch(t, []string{"one.txt", "three.txt"}, snap.TransferResult().Items)
	assert.Equal(t, []string{"one.txt", "three.txt"}, gw.Keys("b"))
	assert.Len(t, gw.Calls("PutObject"), 3)
}

func TestUpload_SingleFailureFailsOperation(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.CreateBucket("b")
	_, files := writeFiles(t, map[string]string{"one.txt": "1"})
	gw.SetHook(func(ctx context.Context, c gateway.Call) error {
		if c.Op == "PutObject" {
			return gateway.NewError(gateway.KindQuota, "PutObject", c.Bucket, c.Key, errors.New("QuotaExceeded"))
		}
		return nil
	})
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartUpload("b", "", files))
	assert.Equal(t, operation.StateFailed, snap.State)
	require.NotNil(t, snap.Fatal)
	assert.Equal(t, gateway.KindQuota, snap.Fatal.Kind)
	assert.Equal(t, files[0], snap.Fatal.Item)
	assert.Len(t, snap.Errors, 1)
}

func TestUpload_MissingLocalFile(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.CreateBucket("b")
	dir, files := writeFiles(t, map[string]string{"one.txt": "1"})
	missing := filepath.Join(dir, "missing.txt")
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartUpload("b", "", append(files, missing)))
	assert.Equal(t, operation.StateCompleted, snap.State)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, missing, snap.Errors[0].Item)
	assert.Equal(t, gateway.KindNotFound, snap.Errors[0].Kind)

	single := waitFor(t, e, e.StartUpload("b", "", []string{missing}))
	assert.Equal(t, operation.StateFailed, single.State)
}

func TestUpload_MissingBucketFails(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	_, files := writeFiles(t, map[string]string{"one.txt": "1", "two.txt": "2"})
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartUpload("missing", "", files))
	assert.Equal(t, operation.StateFailed, snap.State)
	require.NotNil(t, snap.Fatal)
	assert.Equal(t, gateway.KindNotFound, snap.Fatal.Kind)
	assert.Empty(t, gw.Calls("PutObject"))
}

func TestUpload_AuthErrorAbortsBatch(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.CreateBucket("b")
	_, files := writeFiles(t, map[string]string{"one.txt": "1", "two.txt": "2", "three.txt": "3"})
	gw.SetHook(func(ctx context.Context, c gateway.Call) error {
		if c.Op == "PutObject" {
			return gateway.NewError(gateway.KindAuth, "PutObject", c.Bucket, c.Key, errors.New("ExpiredToken"))
		}
		return nil
	})
	e := newTestEngine(t, gw, WithWorkers(1))

	snap := waitFor(t, e, e.StartUpload("b", "", files))
	assert.Equal(t, operation.StateFailed, snap.State)
	require.NotNil(t, snap.Fatal)
	assert.Equal(t, gateway.KindAuth, snap.Fatal.Kind)
	assert.Len(t, gw.Calls("PutObject"), 1, "remaining items are skipped")
}

func TestUpload_TransportErrorRetried(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.CreateBucket("b")
	_, files := writeFiles(t, map[string]string{"one.txt": "hello"})
	var calls atomic.Int32
	gw.SetHook(func(ctx context.Context, c gateway.Call) error {
		if c.Op == "PutObject" && calls.Add(1) == 1 {
			return gateway.NewError(gateway.KindTransport, "PutObject", c.Bucket, c.Key, errors.New("connection reset by peer"))
		}
		return nil
	})
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartUpload("b", "", files))
	assert.Equal(t, operation.StateCompleted, snap.State)
	assert.EqualValues(t, 5, snap.TransferredBytes)
	assert.Len(t, gw.Calls("PutObject"), 2)
}

func TestDownload_KeepsKeyPaths(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.Seed("b", "docs/a.txt", []byte("alpha"))
	gw.Seed("b", "docs/sub/b.txt", []byte("beta"))
	gw.Seed("b", "docs/", nil)
	dest := t.TempDir()
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartDownload("b", []string{"docs/a.txt", "docs/sub/b.txt", "docs/", "docs/a.txt"}, dest))
	assert.Equal(t, operation.StateCompleted, snap.State)
	assert.EqualValues(t, 2, snap.TotalUnits)
	assert.EqualValues(t, 9, snap.TransferredBytes)
	assert.ElementsMatch(t, []string{
		filepath.Join(dest, "docs", "a.txt"),
		filepath.Join(dest, "docs", "sub", "b.txt"),
	}, snap.TransferResult().Items)

	data, err := os.ReadFile(filepath.Join(dest, "docs", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))

	leftovers, err := filepath.Glob(filepath.Join(dest, "docs", ".*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "no temporary files remain")
}

func TestDownload_MissingKeyInBatch(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.Seed("b", "a.txt", []byte("a"))
	dest := t.TempDir()
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartDownload("b", []string{"a.txt", "gone.txt"}, dest))
	assert.Equal(t, operation.StateCompleted, snap.State)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "gone.txt", snap.Errors[0].Item)
	assert.Equal(t, gateway.KindNotFound, snap.Errors[0].Kind)
	assert.NoFileExists(t, filepath.Join(dest, "gone.txt"))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownload_SingleMissingKeyFails(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.CreateBucket("b")
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartDownload("b", []string{"gone.txt"}, t.TempDir()))
	assert.Equal(t, operation.StateFailed, snap.State)
	require.NotNil(t, snap.Fatal)
	assert.Equal(t, gateway.KindNotFound, snap.Fatal.Kind)
	assert.Equal(t, "gone.txt", snap.Fatal.Item)
}

func TestDownload_DestinationNotWritable(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.Seed("b", "a.txt", []byte("a"))
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartDownload("b", []string{"a.txt"}, file))
	assert.Equal(t, operation.StateFailed, snap.State)
	require.NotNil(t, snap.Fatal)
	assert.Equal(t, gateway.KindPrecondition, snap.Fatal.Kind)
	assert.Empty(t, gw.Calls("GetObject"))
}

func TestDownload_RejectsEscapingKeys(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.Seed("b", "../evil.txt", []byte("x"))
	gw.Seed("b", "ok.txt", []byte("y"))
	dest := filepath.Join(t.TempDir(), "dest")
	e := newTestEngine(t, gw)

	snap := waitFor(t, e, e.StartDownload("b", []string{"../evil.txt", "ok.txt"}, dest))
	assert.Equal(t, operation.StateCompleted, snap.State)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, gateway.KindPrecondition, snap.Errors[0].Kind)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
	assert.FileExists(t, filepath.Join(dest, "ok.txt"))
}

func TestLocalTarget(t *testing.T) {
	dest := filepath.Join(string(filepath.Separator), "data")

	got, err := localTarget(dest, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "a", "b.txt"), got)

	got, err = localTarget(dest, "/abs.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "abs.txt"), got)

	for _, key := range []string{"../x", "a/../../x", ".", ".."} {
		_, err := localTarget(dest, key)
		assert.ErrorIs(t, err, gateway.ErrPrecondition, key)
	}
}

func TestLocalError(t *testing.T) {
	_, err := os.Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, localError("open", "missing", err), gateway.ErrNotFound)
	assert.ErrorIs(t, localError("open", "x", os.ErrPermission), gateway.ErrPermission)
	assert.Equal(t, gateway.KindUnknown, gateway.KindOf(localError("open", "x", errors.New("boom"))))
}
