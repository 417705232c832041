package archiveindex

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestArchive(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for entryPath, content := range files {
		w, err := zw.Create(entryPath)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestBuildIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"WEB-INF/web.xml":       "<web-app/>",
		"index.html":            "<html/>",
		"WEB-INF/lib/a.jar":     "jarbytes",
	}
	a := writeTestArchive(t, dir, "a.war", files)
	b := writeTestArchive(t, dir, "b.war", files)

	idxA, err := Build(a)
	require.NoError(t, err)
	idxB, err := Build(b)
	require.NoError(t, err)

	require.Equal(t, idxA, idxB)
	require.Len(t, idxA, 3)
}

func TestBuildUnreadableArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.war")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := Build(path)
	require.Error(t, err)
}

func TestEntriesReturnsPayloads(t *testing.T) {
	dir := t.TempDir()
	path := writeTestArchive(t, dir, "app.war", map[string]string{
		"index.html": "hello",
	})

	entries, err := Entries(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "index.html", entries[0].Path)
	require.Equal(t, "hello", string(entries[0].Data))
}
