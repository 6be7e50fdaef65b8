package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/operation"
)

// StartDelete deletes keys in batches of at most gateway.MaxDeleteBatch.
// A missing bucket or an auth error fails the operation. Any other batch that
// keeps failing after retries records an error for each of its keys and the
// remaining batches still run.
func (e *Engine) StartDelete(bucket string, keys []string) string {
	keys = uniqueKeys(keys, false)
	h := operation.New(operation.KindDelete, bucket, fmt.Sprintf("Deleting %d object(s) from %s", len(keys), bucket))
	h.SetTotal(int64(len(keys)), true)
	return e.start(h, "delete", func(ctx context.Context, r *run) {
		if len(keys) == 0 {
			return
		}
		if err := e.checkBucket(ctx, bucket); err != nil {
			e.abort(r, operation.NewErrorEntry(bucket, err))
			return
		}
		e.spawnBatches(r, keys)
	})
}

// StartEmptyBucket enumerates every object in bucket and deletes them in batches.
// The total is unknown until enumeration finishes.
func (e *Engine) StartEmptyBucket(bucket string) string {
	h := operation.New(operation.KindEmptyBucket, bucket, fmt.Sprintf("Emptying bucket %s", bucket))
	h.SetTotal(0, false)
	return e.start(h, "enumerate", func(ctx context.Context, r *run) {
		e.emptyBucket(ctx, r)
	})
}

func (e *Engine) emptyBucket(ctx context.Context, r *run) {
	h := r.h
	bucket := h.Bucket()
	keys := []string{}
	token := ""
	pages := 0

	for {
		if h.CancelRequested() {
			e.interrupt(r)
			return
		}

		var page *gateway.ObjectPage
		err := e.withRetry(ctx, "ListObjects", func() error {
			var err error
			page, err = e.gw.ListObjects(ctx, &gateway.ListObjectsInput{
				Bucket:            bucket,
				ContinuationToken: token,
				MaxKeys:           e.cfg.listPageSize,
			})
			return err
		})
		if err != nil {
			e.abort(r, operation.NewErrorEntry(bucket, err))
			return
		}

		pages++
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		h.AddTotal(int64(len(page.Objects)))
		h.SetCurrentItem(fmt.Sprintf("listing page %d", pages))

		token = page.NextToken
		if token == "" {
			break
		}
	}

	h.SetTotal(int64(len(keys)), true)
	slog.Info("engine", "op", h.ID(), "bucket", bucket, "enumerated", len(keys), "pages", pages)

	if h.CancelRequested() {
		e.interrupt(r)
		return
	}
	e.spawnBatches(r, keys)
}

func (e *Engine) spawnBatches(r *run, keys []string) {
	for start := 0; start < len(keys); start += gateway.MaxDeleteBatch {
		end := min(start+gateway.MaxDeleteBatch, len(keys))
		batch := keys[start:end]
		e.spawn(r, fmt.Sprintf("batch %d-%d", start, end), func(ctx context.Context) {
			e.deleteBatch(ctx, r, batch)
		})
	}
}

func (e *Engine) deleteBatch(ctx context.Context, r *run, batch []string) {
	h := r.h
	bucket := h.Bucket()
	h.SetCurrentItem(batch[0])

	var results []gateway.DeleteResult
	err := e.withRetry(ctx, "DeleteObjects", func() error {
		var err error
		results, err = e.gw.DeleteObjects(ctx, bucket, batch)
		return err
	})

	if err != nil {
		// A batch-level not_found means the bucket itself is gone.
		if kind := gateway.KindOf(err); kind == gateway.KindAuth || kind == gateway.KindNotFound {
			h.FinishUnits(int64(len(batch)), nil)
			e.abort(r, operation.NewErrorEntry(bucket, err))
			return
		}
		entries := make([]operation.ErrorEntry, len(batch))
		for i, key := range batch {
			entries[i] = operation.NewErrorEntry(key, err)
		}
		h.FinishUnits(int64(len(batch)), nil, entries...)
		slog.Warn("engine", "op", h.ID(), "batch", len(batch), "kind", gateway.KindOf(err), "error", err)
		return
	}

	var entries []operation.ErrorEntry
	deleted := make([]string, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			entries = append(entries, operation.NewErrorEntry(res.Key, res.Err))
			continue
		}
		deleted = append(deleted, res.Key)
	}
	h.FinishUnits(int64(len(batch)), deleted, entries...)
	slog.Debug("engine", "op", h.ID(), "deleted", len(deleted), "failed", len(entries))
}

// uniqueKeys drops empty and repeated keys, keeping the first occurrence.
func uniqueKeys(keys []string, skipFolders bool) []string {
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" || (skipFolders && strings.HasSuffix(key, "/")) {
			continue
		}
		if seen.Add(key) {
			out = append(out, key)
		}
	}
	return out
}
