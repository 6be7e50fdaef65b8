package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/operation"
	"github.com/openmined/s3ops/internal/utils"
)

// UploadItem pairs a local file with its destination key.
type UploadItem struct {
	Path string
	Key  string
}

// UploadKey is the key a file gets when uploaded under prefix.
func UploadKey(prefix, path string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + filepath.Base(path)
}

// StartUpload uploads files to prefix + base name of each file.
func (e *Engine) StartUpload(bucket, destPrefix string, files []string) string {
	items := make([]UploadItem, 0, len(files))
	for _, f := range files {
		items = append(items, UploadItem{Path: f, Key: UploadKey(destPrefix, f)})
	}
	return e.StartUploadItems(bucket, items)
}

// StartUploadItems uploads every item to its key. Item failures are recorded and
// the batch continues; a single-item upload fails on its error.
func (e *Engine) StartUploadItems(bucket string, items []UploadItem) string {
	items = slices.Clone(items)
	h := operation.New(operation.KindUpload, bucket, fmt.Sprintf("Uploading %d file(s) to %s", len(items), bucket))
	h.SetTotal(int64(len(items)), true)
	return e.start(h, "upload", func(ctx context.Context, r *run) {
		e.prepareUpload(ctx, r, items)
	})
}

func (e *Engine) prepareUpload(ctx context.Context, r *run, items []UploadItem) {
	if len(items) == 0 {
		return
	}
	if err := e.checkBucket(ctx, r.h.Bucket()); err != nil {
		e.abort(r, operation.NewErrorEntry(r.h.Bucket(), err))
		return
	}

	for _, item := range items {
		if info, err := os.Stat(item.Path); err == nil && info.Mode().IsRegular() {
			r.h.AddTotalBytes(info.Size())
		}
	}

	single := len(items) == 1
	for _, item := range items {
		e.spawn(r, item.Key, func(ctx context.Context) {
			e.uploadItem(ctx, r, item, single)
		})
	}
}

func (e *Engine) uploadItem(ctx context.Context, r *run, item UploadItem, single bool) {
	h := r.h
	h.SetCurrentItem(item.Path)

	var sent int64
	err := e.withRetry(ctx, "PutObject", func() error {
		h.AddBytes(-sent)
		sent = 0

		f, err := os.Open(item.Path)
		if err != nil {
			return localError("open", item.Path, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return localError("stat", item.Path, err)
		}
		if info.IsDir() {
			return gateway.NewError(gateway.KindPrecondition, "open", "", item.Path, errors.New("is a directory"))
		}

		return e.gw.PutObject(ctx, h.Bucket(), item.Key, f, info.Size(), func(d int64) {
			sent += d
			h.AddBytes(d)
		})
	})

	if e.itemDone(r, item.Path, item.Key, err, single) {
		slog.Debug("engine", "op", h.ID(), "uploaded", item.Key, "bytes", sent)
	}
}

// StartDownload downloads keys into destDir, keeping their path below it.
// Folder markers are skipped and duplicate keys are fetched once.
func (e *Engine) StartDownload(bucket string, keys []string, destDir string) string {
	keys = uniqueKeys(keys, true)
	h := operation.New(operation.KindDownload, bucket, fmt.Sprintf("Downloading %d object(s) from %s", len(keys), bucket))
	h.SetTotal(int64(len(keys)), true)
	return e.start(h, "download", func(ctx context.Context, r *run) {
		e.prepareDownload(ctx, r, keys, destDir)
	})
}

func (e *Engine) prepareDownload(ctx context.Context, r *run, keys []string, destDir string) {
	if len(keys) == 0 {
		return
	}
	if err := prepareDestination(destDir); err != nil {
		e.abort(r, operation.NewErrorEntry(destDir, err))
		return
	}
	if err := e.checkBucket(ctx, r.h.Bucket()); err != nil {
		e.abort(r, operation.NewErrorEntry(r.h.Bucket(), err))
		return
	}

	single := len(keys) == 1
	for _, key := range keys {
		e.spawn(r, key, func(ctx context.Context) {
			e.downloadItem(ctx, r, key, destDir, single)
		})
	}
}

func (e *Engine) downloadItem(ctx context.Context, r *run, key, destDir string, single bool) {
	h := r.h
	h.SetCurrentItem(key)

	target, err := localTarget(destDir, key)
	if err == nil {
		err = e.fetch(ctx, r, key, target)
	}
	if e.itemDone(r, key, target, err, single) {
		slog.Debug("engine", "op", h.ID(), "downloaded", key, "path", target)
	}
}

// fetch downloads key into a temporary file next to target and renames it on success.
func (e *Engine) fetch(ctx context.Context, r *run, key, target string) error {
	h := r.h
	dir := filepath.Dir(target)
	if err := utils.EnsureDir(dir); err != nil {
		return localError("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.part")
	if err != nil {
		return localError("create", target, err)
	}

	var got int64
	err = e.withRetry(ctx, "GetObject", func() error {
		h.AddBytes(-got)
		got = 0
		if err := tmp.Truncate(0); err != nil {
			return localError("truncate", tmp.Name(), err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return localError("seek", tmp.Name(), err)
		}
		_, err := e.gw.GetObject(ctx, h.Bucket(), key, tmp, func(d int64) {
			got += d
			h.AddBytes(d)
		})
		return err
	})

	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = localError("close", tmp.Name(), closeErr)
	}
	if err == nil {
		if renameErr := os.Rename(tmp.Name(), target); renameErr != nil {
			err = localError("rename", target, renameErr)
		}
	}
	if err != nil {
		os.Remove(tmp.Name())
	}
	return err
}

// itemDone accounts one finished unit and reports whether it succeeded. On
// success result is recorded as the unit's item. Auth errors, and any error of
// a single-item operation, abort the operation.
func (e *Engine) itemDone(r *run, item, result string, err error, single bool) bool {
	if err == nil {
		r.h.FinishUnits(1, []string{result})
		return true
	}

	entry := operation.NewErrorEntry(item, err)
	if single || entry.Kind == gateway.KindAuth {
		r.h.FinishUnits(1, nil)
		e.abort(r, entry)
		return false
	}
	r.h.FinishUnits(1, nil, entry)
	slog.Warn("engine", "op", r.h.ID(), "item", item, "kind", entry.Kind, "error", err)
	return false
}

// checkBucket verifies the bucket is reachable before any unit starts.
func (e *Engine) checkBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		return gateway.NewError(gateway.KindPrecondition, "check", bucket, "", errors.New("bucket name is empty"))
	}
	return e.withRetry(ctx, "ListObjects", func() error {
		_, err := e.gw.ListObjects(ctx, &gateway.ListObjectsInput{Bucket: bucket, MaxKeys: 1})
		return err
	})
}

// prepareDestination makes sure dir exists and accepts new files.
func prepareDestination(dir string) error {
	if dir == "" {
		return gateway.NewError(gateway.KindPrecondition, "destination", "", dir, errors.New("destination directory is empty"))
	}
	if err := utils.EnsureDir(dir); err != nil {
		return gateway.NewError(gateway.KindPrecondition, "destination", "", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".s3ops-probe-*")
	if err != nil {
		return gateway.NewError(gateway.KindPrecondition, "destination", "", dir, err)
	}
	probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return localError("destination", dir, err)
	}
	return nil
}

// localTarget maps key below destDir, rejecting keys that would escape it.
func localTarget(destDir, key string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(key, "/"))
	target := filepath.Join(destDir, rel)
	back, err := filepath.Rel(destDir, target)
	if err != nil || back == "." || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", gateway.NewError(gateway.KindPrecondition, "download", "", key, errors.New("key escapes the destination directory"))
	}
	return target, nil
}

// localError classifies a local filesystem failure.
func localError(op, path string, err error) error {
	kind := gateway.KindUnknown
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = gateway.KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = gateway.KindPermission
	case errors.Is(err, syscall.ENOSPC):
		kind = gateway.KindQuota
	}
	return gateway.NewError(kind, op, "", path, err)
}
