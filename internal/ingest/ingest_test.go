package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/ingest"
	"github.com/libriscan/libriscan/internal/repository"
	"github.com/libriscan/libriscan/internal/repository/repotest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestImportDirectory(t *testing.T) {
	db := repotest.Open(t)
	fx := repotest.Seed(t, db, "acme", constants.ServiceTest)
	pages := repository.NewPageRepository(db, repotest.Logger())

	root := t.TempDir()
	scans := filepath.Join(root, "doc-1")
	writeFile(t, filepath.Join(scans, "0002.png"), "second")
	writeFile(t, filepath.Join(scans, "0001.png"), "first")
	writeFile(t, filepath.Join(scans, "copy-of-0001.png"), "first")
	writeFile(t, filepath.Join(scans, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(scans, ".thumbs", "0001.png"), "hidden")

	imp := ingest.NewImporter(pages, root, repotest.Logger())
	ctx := context.Background()
	results, stats, err := imp.ImportDirectory(ctx, fx.Document, scans, true)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(2), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Duplicates)
	require.Len(t, results, 3)

	// the fixture already owns page 1
	assert.Equal(t, "doc-1/0001.png", results[0].ImagePath)
	assert.Equal(t, 2, results[0].PageNumber)
	assert.Equal(t, 3, results[1].PageNumber)
	assert.True(t, results[2].Duplicate)
	assert.Equal(t, results[0].PageID, results[2].PageID)

	again, stats, err := imp.ImportDirectory(ctx, fx.Document, scans, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stats.Succeeded)
	assert.Equal(t, uint32(3), stats.Duplicates)
	assert.Len(t, again, 3)

	all, err := pages.ListByDocument(ctx, fx.Document.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestImportPath(t *testing.T) {
	db := repotest.Open(t)
	fx := repotest.Seed(t, db, "acme", constants.ServiceTest)
	imp := ingest.NewImporter(repository.NewPageRepository(db, repotest.Logger()), t.TempDir(), repotest.Logger())
	ctx := context.Background()

	outside := filepath.Join(t.TempDir(), "scan.tiff")
	writeFile(t, outside, "img")
	r, err := imp.ImportPath(ctx, fx.Document, outside)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(r.ImagePath))
	assert.Equal(t, 2, r.PageNumber)
	assert.Len(t, r.HashHex, 64)

	_, err = imp.ImportPath(ctx, fx.Document, filepath.Join(t.TempDir(), "scan.pdf"))
	assert.Error(t, err)

	_, err = imp.ImportPath(ctx, fx.Document, filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestStartWatcher(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "0001.jpg"), "existing")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, _, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
		Debounce:    50 * time.Millisecond,
	}, repotest.Logger())
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-paths:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("no path emitted")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(dir, "0001.jpg"), next())

	writeFile(t, filepath.Join(dir, "readme.md"), "skip")
	writeFile(t, filepath.Join(dir, "0002.jpg"), "new")
	assert.Equal(t, filepath.Join(dir, "0002.jpg"), next())

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-paths
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := ingest.StartWatcher(context.Background(), ingest.WatchConfig{}, nil)
	assert.Error(t, err)
}
