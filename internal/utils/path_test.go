package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name      string
		input     string
		want      string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "home", input: "~", want: home},
		{name: "below home", input: "~/.s3ops/config.json", want: filepath.Join(home, ".s3ops", "config.json")},
		{name: "absolute path", input: "/tmp/a/../test", want: filepath.Clean("/tmp/test")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	rel, err := ResolvePath("./test")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(rel))
}

func TestEnsureParent(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "file.db")

	require.NoError(t, EnsureParent(target))
	assert.DirExists(t, filepath.Join(root, "a", "b"))

	// existing paths are left alone
	require.NoError(t, EnsureDir(filepath.Join(root, "a")))
	require.NoError(t, os.WriteFile(target, nil, 0o644))
	assert.NoError(t, EnsureDir(target))
}
