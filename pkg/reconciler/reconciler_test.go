package reconciler

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/archiveindex"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/status"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

type spyRedeployer struct {
	calls []string
}

func (s *spyRedeployer) Redeploy(_ context.Context, archivePath string) error {
	s.calls = append(s.calls, archivePath)
	return nil
}

func newReconciler(t *testing.T) (*Reconciler, *spyRedeployer) {
	t.Helper()
	archivePath := filepath.Join(t.TempDir(), "app.war")
	spy := &spyRedeployer{}
	return New(archivePath, "myapp", spy, status.New()), spy
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestApplyWritesAndRemovesEntries(t *testing.T) {
	r, spy := newReconciler(t)

	seed := buildZip(t, map[string]string{"old.txt": "stale"})
	require.NoError(t, archiveindex.WriteArchiveAtomic(seed, r.ArchivePath))

	result, err := r.Apply(context.Background(), "dep-1", []types.Entry{
		{Path: "WEB-INF/web.xml", Data: []byte("<web/>")},
	}, []string{"old.txt"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.FilesChanged)
	assert.Equal(t, 1, result.FilesDeleted)
	assert.Equal(t, []string{"myapp"}, result.Applications)

	data, err := archiveindex.ReadEntry(r.ArchivePath, "WEB-INF/web.xml")
	require.NoError(t, err)
	assert.Equal(t, "<web/>", string(data))

	_, err = archiveindex.ReadEntry(r.ArchivePath, "old.txt")
	assert.Error(t, err)

	require.Len(t, spy.calls, 1)
	assert.Equal(t, r.ArchivePath, spy.calls[0])
}

func TestApplyDerivesApplicationFromArchiveName(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "checkout.war")
	r := New(archivePath, "", nil, status.New())

	result, err := r.Apply(context.Background(), "dep-1", []types.Entry{
		{Path: "index.html", Data: []byte("<html/>")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"checkout"}, result.Applications)
}

func TestApplyRejectsPathEscape(t *testing.T) {
	r, _ := newReconciler(t)
	_, err := r.Apply(context.Background(), "dep-1", []types.Entry{{Path: "../../etc/passwd", Data: []byte("x")}}, nil)
	require.Error(t, err)
}

func TestApplyReturnsInProgressWhileLocked(t *testing.T) {
	r, _ := newReconciler(t)
	require.True(t, r.mu.TryLock()) // simulate an in-flight deployment

	_, err := r.Apply(context.Background(), "dep-2", nil, nil)
	require.Error(t, err)

	r.mu.Unlock()
}

func TestFullReplaceWipesAndReinstalls(t *testing.T) {
	r, spy := newReconciler(t)
	seed := buildZip(t, map[string]string{"leftover.txt": "x"})
	require.NoError(t, archiveindex.WriteArchiveAtomic(seed, r.ArchivePath))

	body := buildZip(t, map[string]string{"index.html": "<html/>"})

	result, err := r.FullReplace(context.Background(), "dep-3", body)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.FilesChanged)
	assert.Equal(t, []string{"myapp"}, result.Applications)

	_, err = archiveindex.ReadEntry(r.ArchivePath, "leftover.txt")
	assert.Error(t, err)

	data, err := archiveindex.ReadEntry(r.ArchivePath, "index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(data))

	require.Len(t, spy.calls, 1)
}

func TestApplyLeavesArchiveUntouchedOnWriteFailure(t *testing.T) {
	r, _ := newReconciler(t)
	seed := buildZip(t, map[string]string{"index.html": "<html/>"})
	require.NoError(t, archiveindex.WriteArchiveAtomic(seed, r.ArchivePath))

	// An entry path that escapes the scratch directory fails before
	// repackaging ever runs, so the previously installed archive survives
	// untouched for concurrent readers.
	_, err := r.Apply(context.Background(), "dep-4", []types.Entry{
		{Path: "../escape.txt", Data: []byte("x")},
	}, nil)
	require.Error(t, err)

	data, err := archiveindex.ReadEntry(r.ArchivePath, "index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(data))
}
