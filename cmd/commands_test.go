package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/store"
)

// setupWorkspace points the config at a fresh root holding a seeded SQLite
// database and returns the root.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("QDAH_PATHS_ROOT", root)
	t.Setenv("QDAH_LOG_LEVEL", "error")

	st, err := store.NewSQLite(filepath.Join(root, "harvester.db"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, rec := range []*model.File{
		{SourceName: "qdr", SourceURL: "https://data.qdr.syr.edu/dataset.xhtml?persistentId=doi:10.5064/F6A",
			DownloadURL: "https://q/1", FileName: "interview.qdpx", FileType: ".qdpx", FileHash: "h1",
			LocalPath: "downloads/qdr-syracuse/x/interview.qdpx", FileSizeBytes: 2048, Title: "Nurses",
			IsQDAFile: true, DownloadedAt: &now, CreatedAt: now},
		{SourceName: "osf", DownloadURL: "https://o/2", FileName: "model.sav", FileType: ".sav",
			Notes: model.NoteIrrelevantType, Title: "Soil", CreatedAt: now},
	} {
		ok, err := st.InsertIfAbsent(ctx, store.Match{SourceName: rec.SourceName, DownloadURL: rec.DownloadURL, FileName: rec.FileName}, rec)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, st.Close())
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestDumpCommand_CSV(t *testing.T) {
	root := setupWorkspace(t)

	out, err := execute(t, "dump", "--format", "csv")
	require.NoError(t, err)

	path := filepath.Join(root, "output", "metadata.csv")
	assert.Contains(t, out, "Exported 2 records to "+path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, store.Columns(), rows[0])
}

func TestDumpCommand_BadFormat(t *testing.T) {
	setupWorkspace(t)
	_, err := execute(t, "dump", "--format", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestBrowseCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "browse", "--source", "qdr", "-n", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "interview.qdpx")
	assert.NotContains(t, out, "model.sav")
	assert.Contains(t, out, "Showing 1 of 1 records")
}

func TestDetailCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "detail", "1", "99")
	require.NoError(t, err)
	assert.Contains(t, out, "Record 1")
	assert.Contains(t, out, "interview.qdpx")
	assert.Contains(t, out, "Record 99 not found")

	_, err = execute(t, "detail", "abc")
	assert.Error(t, err)
}

func TestOverviewCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "overview")
	require.NoError(t, err)
	assert.Contains(t, out, "Records:        2")
	assert.Contains(t, out, "By source")
	assert.Contains(t, out, "osf")
}

func TestSourcesCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "qdr-syracuse")
	assert.Contains(t, out, "figshare")
	assert.Contains(t, out, "Library of Congress")
}

func TestFindCommand_UnknownSource(t *testing.T) {
	setupWorkspace(t)

	_, err := execute(t, "find", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestWipeCommand(t *testing.T) {
	root := setupWorkspace(t)
	stale := filepath.Join(root, "downloads", "qdr-syracuse", "x", "interview.qdpx")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	out, err := execute(t, "wipe", "-y")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 records")

	entries, err := os.ReadDir(filepath.Join(root, "downloads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.DirExists(t, filepath.Join(root, "output"))

	st, err := store.NewSQLite(filepath.Join(root, "harvester.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	n, err := st.Count(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &out, "go? "))
	assert.True(t, confirm(strings.NewReader(" YES \n"), &out, "go? "))
	assert.False(t, confirm(strings.NewReader("n\n"), &out, "go? "))
	assert.False(t, confirm(strings.NewReader(""), &out, "go? "))
	assert.Contains(t, out.String(), "go? ")
}

func TestQueriesPath(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "queries.txt")
	require.NoError(t, os.WriteFile(existing, []byte("interviews\n"), 0o644))

	got, err := queriesPath("explicit.txt", existing)
	require.NoError(t, err)
	assert.Equal(t, "explicit.txt", got)

	got, err = queriesPath("", existing)
	require.NoError(t, err)
	assert.Equal(t, existing, got)

	got, err = queriesPath("", filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = queriesPath("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))

	require.NoError(t, resetDir(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, resetDir(""))
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvester.log")
	require.NoError(t, os.WriteFile(path, []byte("log"), 0o644))

	require.NoError(t, removeIfExists(path))
	assert.NoFileExists(t, path)
	assert.NoError(t, removeIfExists(path))
	assert.NoError(t, removeIfExists(""))
}
