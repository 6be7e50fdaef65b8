package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/localfs"
	"github.com/openmined/s3ops/internal/operation"
	"github.com/openmined/s3ops/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	gw      *gateway.MemoryGateway
	dir     string
	journal string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{gw: gateway.NewMemoryGateway(), dir: t.TempDir()}

	orig := newGateway
	newGateway = func(*gateway.Config) (gateway.Gateway, error) { return env.gw, nil }
	t.Cleanup(func() { newGateway = orig })
	return env
}

// run executes the CLI in-process against the shared memory gateway.
func (env *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	base := []string{
		"--driver", "memory",
		"--config", filepath.Join(env.dir, "config.json"),
		"--journal", env.journal,
		"--no-tui",
	}

	var out bytes.Buffer
	err := execute(context.Background(), append(base, args...), &out, &out)
	return out.String(), err
}

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	cmd := &cobra.Command{Use: "s3ops"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, version.Detailed(), strings.TrimSpace(out.String()))
}

func TestVersionCommand_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"version", "--json"}, &out, &out))

	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.AppName, info.App)
}

func TestBucketsCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.gw.CreateBucket("beta")
	env.gw.CreateBucket("alpha")

	out, err := env.run(t, "buckets")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Less(t, strings.Index(out, "alpha"), strings.Index(out, "beta"))
}

func TestListCommand(t *testing.T) {
	env := newCLIEnv(t)
	for _, key := range []string{"a.txt", "dir/b.txt", "dir/sub/c.txt"} {
		env.gw.Seed("b", key, []byte(key))
	}

	out, err := env.run(t, "ls", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "PRE")
	assert.Contains(t, out, "dir/")
	assert.Contains(t, out, "a.txt")
	assert.NotContains(t, out, "b.txt")

	out, err = env.run(t, "ls", "b", "dir/", "--json")
	require.NoError(t, err)
	var res operation.ListResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Objects, 1)
	assert.Equal(t, "dir/b.txt", res.Objects[0].Key)
	assert.Equal(t, []string{"dir/sub/"}, res.Prefixes)
}

func TestListCommand_Continuation(t *testing.T) {
	env := newCLIEnv(t)
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		env.gw.Seed("b", key, []byte(key))
	}
	t.Setenv("S3OPS_LIST_PAGE_SIZE", "2")
	t.Setenv("S3OPS_MAX_LIST_ENTRIES", "2")

	out, err := env.run(t, "ls", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "--continue")
	assert.NotContains(t, out, " c\n")

	out, err = env.run(t, "ls", "b", "--all")
	require.NoError(t, err)
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		assert.Contains(t, out, " "+key+"\n")
	}
	assert.NotContains(t, out, "--continue")
}

func TestListCommand_MissingBucket(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "ls", "missing")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "failed")
}

func TestInfoCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.gw.Seed("b", "docs/readme.md", []byte("hello"))

	out, err := env.run(t, "info", "b", "docs/readme.md")
	require.NoError(t, err)
	assert.Contains(t, out, "docs/readme.md")
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "5 B")

	_, err = env.run(t, "info", "b", "nope")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestUploadCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.gw.CreateBucket("b")

	src := filepath.Join(t.TempDir(), "photos")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "2024"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "2024", "beach.jpg"), []byte("jpg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.tmp"), []byte("tmp"), 0o644))

	out, err := env.run(t, "upload", "b", "backup", src, "--exclude", "*.tmp")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Equal(t, []string{"backup/photos/2024/beach.jpg"}, env.gw.Keys("b"))
}

func TestUploadCommand_NoMatch(t *testing.T) {
	env := newCLIEnv(t)
	env.gw.CreateBucket("b")

	_, err := env.run(t, "upload", "b", "backup", filepath.Join(t.TempDir(), "*.nothing"))
	assert.ErrorIs(t, err, localfs.ErrNoMatch)
	assert.Empty(t, env.gw.Calls("PutObject"))
}

func TestDownloadCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.gw.Seed("b", "reports/q1.csv", []byte("a,b\n"))
	dest := t.TempDir()

	_, err := env.run(t, "download", "b", dest, "reports/q1.csv")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "reports", "q1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func TestRemoveCommand(t *testing.T) {
	env := newCLIEnv(t)
	for _, key := range []string{"k1", "k2", "k3"} {
		env.gw.Seed("b", key, []byte(key))
	}

	_, err := env.run(t, "rm", "b", "k1", "k2")
	require.NoError(t, err)
	assert.Equal(t, []string{"k3"}, env.gw.Keys("b"))
}

func TestRemoveCommand_ItemErrorsExitTwo(t *testing.T) {
	env := newCLIEnv(t)
	env.gw.Seed("b", "k1", []byte("k1"))

	out, err := env.run(t, "rm", "b", "k1", "gone")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, out, "gone")
	assert.Empty(t, env.gw.Keys("b"))
}

func TestEmptyCommand_RequiresConfirmation(t *testing.T) {
	env := newCLIEnv(t)
	env.gw.Seed("b", "k1", []byte("k1"))

	_, err := env.run(t, "empty", "b")
	require.Error(t, err)
	_, err = env.run(t, "empty", "b", "--confirm", "other")
	require.Error(t, err)
	assert.Equal(t, []string{"k1"}, env.gw.Keys("b"))
	assert.Empty(t, env.gw.Calls("ListObjects"))

	_, err = env.run(t, "empty", "b", "--confirm", "b")
	require.NoError(t, err)
	assert.Empty(t, env.gw.Keys("b"))
}

func TestHistoryCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.journal = filepath.Join(env.dir, "journal.db")
	env.gw.Seed("b", "k1", []byte("k1"))

	_, err := env.run(t, "rm", "b", "k1")
	require.NoError(t, err)

	out, err := env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "delete")
	assert.Contains(t, out, "completed")

	out, err = env.run(t, "history", "--json")
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0]["bucket"])
}

func TestHistoryCommand_WithoutJournal(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "history")
	assert.ErrorIs(t, err, errNoJournal)
}

func TestConfigCommand_MasksSecrets(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "config.json"),
		[]byte(`{"region": "eu-west-1", "workers": 7, "secret_key": "from-file-secret"}`), 0o644))

	out, err := env.run(t, "config", "--access-key", "AKIAEXAMPLE", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, `"region": "eu-west-1"`)
	assert.Contains(t, out, `"workers": 2`)
	assert.Contains(t, out, "AKIA*****")
	assert.Contains(t, out, "from*****")
	assert.NotContains(t, out, "from-file-secret")
}

func TestConfig_EnvironmentOverridesFile(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "config.json"), []byte(`{"workers": 7}`), 0o644))
	t.Setenv("S3OPS_WORKERS", "3")

	out, err := env.run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, `"workers": 3`)
}

func TestConfig_Invalid(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "config", "--workers=-1")
	require.Error(t, err)

	_, err = env.run(t, "config", "--driver", "ftp")
	assert.ErrorIs(t, err, gateway.ErrUnknownDriver)
}
