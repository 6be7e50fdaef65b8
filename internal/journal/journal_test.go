package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/operation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finished(t *testing.T, kind operation.Kind, fail bool) operation.Snapshot {
	t.Helper()
	h := operation.New(kind, "b", "test operation")
	h.Start()
	h.SetTotal(2, true)
	h.AddCompleted(1)
	h.RecordError(operation.NewErrorEntry("k1", gateway.NewError(gateway.KindNotFound, "DeleteObjects", "b", "k1", errors.New("NoSuchKey"))))
	if fail {
		h.Fail(operation.NewErrorEntry("b", gateway.NewError(gateway.KindAuth, "DeleteObjects", "b", "", errors.New("InvalidAccessKeyId"))))
	} else {
		h.Complete()
	}
	return h.Snapshot()
}

func TestJournal_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer j.Close()

	snap := finished(t, operation.KindDelete, true)
	require.NoError(t, j.Record(ctx, snap))

	entry, ok, err := j.Get(ctx, snap.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, operation.KindDelete, entry.Kind)
	assert.Equal(t, operation.StateFailed, entry.State)
	assert.EqualValues(t, 2, entry.TotalUnits)
	assert.EqualValues(t, 1, entry.CompletedUnits)
	require.Len(t, entry.Errors, 2)
	assert.Equal(t, gateway.KindNotFound, entry.Errors[0].Kind)
	require.NotNil(t, entry.Fatal)
	assert.Equal(t, gateway.KindAuth, entry.Fatal.Kind)
	assert.Equal(t, "InvalidAccessKeyId", entry.Fatal.Message)
	assert.WithinDuration(t, snap.FinishedAt, entry.FinishedAt, time.Millisecond)

	_, ok, err = j.Get(ctx, "op-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJournal_IgnoresActiveSnapshots(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer j.Close()

	h := operation.New(operation.KindList, "b", "")
	require.NoError(t, j.Record(ctx, h.Snapshot()))

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournal_ListNewestFirstAndPrune(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer j.Close()

	var ids []string
	for range 3 {
		snap := finished(t, operation.KindUpload, false)
		ids = append(ids, snap.ID)
		j.Hook()(snap)
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids[2], entries[0].ID)
	assert.Equal(t, ids[1], entries[1].ID)
	assert.Nil(t, entries[0].Fatal)
	assert.Len(t, entries[0].Errors, 1)

	removed, err := j.Prune(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	entries, err = j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ids[2], entries[0].ID)
}

func TestJournal_FileIsLocked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(ctx, path)
	require.NoError(t, err)

	_, err = Open(ctx, path)
	assert.ErrorIs(t, err, ErrJournalLocked)

	snap := finished(t, operation.KindDelete, false)
	require.NoError(t, j.Record(ctx, snap))
	require.NoError(t, j.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
