// Package localfs turns command line upload sources into upload items.
package localfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/s3ops/internal/engine"
)

var ErrNoMatch = errors.New("no files match")

// ExpandSources resolves files, directories and doublestar globs below prefix.
//
//   - a file is uploaded as prefix/<name>
//   - a directory keeps its layout below prefix/<dir name>/
//   - a glob keeps the layout below the static part of the pattern
//
// Paths matching any of the exclude patterns are skipped; a local path is
// uploaded once even when several sources name it.
func ExpandSources(prefix string, sources []string, excludes ...string) ([]engine.UploadItem, error) {
	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	var items []engine.UploadItem
	seen := mapset.NewThreadUnsafeSet[string]()
	add := func(localPath, key string) {
		if excluded(localPath, excludes) {
			return
		}
		if seen.Add(localPath) {
			items = append(items, engine.UploadItem{Path: localPath, Key: key})
		}
	}

	for _, src := range sources {
		var err error
		switch {
		case isGlob(src):
			err = expandGlob(prefix, src, add)
		default:
			err = expandPath(prefix, src, add)
		}
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func expandPath(prefix, src string, add func(localPath, key string)) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source %s: %w", src, err)
	}
	if !info.IsDir() {
		add(src, engine.UploadKey(prefix, src))
		return nil
	}

	root := filepath.Clean(src)
	dirKey := joinKey(prefix, filepath.Base(root))
	count := 0
	err = doublestar.GlobWalk(os.DirFS(root), "**", func(rel string, d fs.DirEntry) error {
		if !d.Type().IsRegular() {
			return nil
		}
		count++
		add(filepath.Join(root, filepath.FromSlash(rel)), joinKey(dirKey, rel))
		return nil
	}, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("walk %s: %w", src, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNoMatch, src)
	}
	return nil
}

func expandGlob(prefix, src string, add func(localPath, key string)) error {
	base, pattern := doublestar.SplitPattern(filepath.ToSlash(src))
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid pattern %q", src)
	}

	count := 0
	err := doublestar.GlobWalk(os.DirFS(filepath.FromSlash(base)), pattern, func(rel string, d fs.DirEntry) error {
		if !d.Type().IsRegular() {
			return nil
		}
		count++
		add(filepath.Join(filepath.FromSlash(base), filepath.FromSlash(rel)), joinKey(prefix, rel))
		return nil
	}, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("glob %s: %w", src, err)
	}
	if count == 0 {
		return fmt.Errorf("%w %s", ErrNoMatch, src)
	}
	return nil
}

func excluded(localPath string, excludes []string) bool {
	slashed := filepath.ToSlash(localPath)
	name := path.Base(slashed)
	for _, pattern := range excludes {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func isGlob(src string) bool {
	return strings.ContainsAny(src, "*?[{")
}

func joinKey(prefix, rel string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}
