package polito

import (
	"context"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func serverFilename(f *File) string {
	name, err := f.Filename()
	if err != nil {
		return f.Name()
	}
	return name
}

func rootFile(t *testing.T, srv *httptest.Server) *File {
	s := newPortalSession(t, srv)
	assignment := materialTree(t, s)

	children, err := assignment.Children(context.Background(), false)
	require.NoError(t, err)
	file, ok := children["notes.pdf"].(*File)
	require.True(t, ok)
	return file
}

func TestFileAttributesBeforeSave(t *testing.T) {
	srv := httptest.NewServer(newFakeDidattica())
	defer srv.Close()
	file := rootFile(t, srv)

	_, err := file.Filename()
	require.ErrorIs(t, err, ErrUnresolved)
	_, err = file.Size()
	require.ErrorIs(t, err, ErrUnresolved)
	_, err = file.ModTime()
	require.ErrorIs(t, err, ErrUnresolved)
	_, err = file.ETag()
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestFileSave(t *testing.T) {
	srv := httptest.NewServer(newFakeDidattica())
	defer srv.Close()
	file := rootFile(t, srv)

	dir := t.TempDir()
	var written int64
	result, err := file.Save(context.Background(), dir, serverFilename, SaveOptions{
		Progress: func(n int64) { written += n },
	})
	require.NoError(t, err)
	require.Equal(t, SaveDownloaded, result)
	require.Equal(t, int64(len("hello pdf")), written)

	content, err := os.ReadFile(filepath.Join(dir, "Notes v1.pdf"))
	require.NoError(t, err)
	require.Equal(t, "hello pdf", string(content))

	// the local copy carries the server's modification time
	stat, err := os.Stat(filepath.Join(dir, "Notes v1.pdf"))
	require.NoError(t, err)
	require.True(t, stat.ModTime().Equal(fileLastModified))

	// no temporary sibling left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	filename, err := file.Filename()
	require.NoError(t, err)
	require.Equal(t, "Notes v1.pdf", filename)
	size, err := file.Size()
	require.NoError(t, err)
	require.Equal(t, int64(len("hello pdf")), size)
	etag, err := file.ETag()
	require.NoError(t, err)
	require.Equal(t, `"abc123"`, etag)
}

func TestFileSaveUnchanged(t *testing.T) {
	srv := httptest.NewServer(newFakeDidattica())
	defer srv.Close()
	file := rootFile(t, srv)

	dir := t.TempDir()
	result, err := file.Save(context.Background(), dir, serverFilename, SaveOptions{})
	require.NoError(t, err)
	require.Equal(t, SaveDownloaded, result)

	result, err = file.Save(context.Background(), dir, serverFilename, SaveOptions{})
	require.NoError(t, err)
	require.Equal(t, SaveUnchanged, result)

	result, err = file.Save(context.Background(), dir, serverFilename, SaveOptions{Overwrite: true})
	require.NoError(t, err)
	require.Equal(t, SaveDownloaded, result)
}

func TestFileSaveStaleLocalCopy(t *testing.T) {
	srv := httptest.NewServer(newFakeDidattica())
	defer srv.Close()
	file := rootFile(t, srv)

	dir := t.TempDir()
	// same name but different size, must be replaced
	err := os.WriteFile(filepath.Join(dir, "Notes v1.pdf"), []byte("old"), 0644)
	require.NoError(t, err)

	result, err := file.Save(context.Background(), dir, serverFilename, SaveOptions{})
	require.NoError(t, err)
	require.Equal(t, SaveDownloaded, result)

	content, err := os.ReadFile(filepath.Join(dir, "Notes v1.pdf"))
	require.NoError(t, err)
	require.Equal(t, "hello pdf", string(content))
}

func TestFileSaveSkipped(t *testing.T) {
	srv := httptest.NewServer(newFakeDidattica())
	defer srv.Close()
	file := rootFile(t, srv)

	dir := t.TempDir()
	result, err := file.Save(context.Background(), dir, func(*File) string { return "" }, SaveOptions{})
	require.NoError(t, err)
	require.Equal(t, SaveSkipped, result)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFileSaveNotFound(t *testing.T) {
	srv := httptest.NewServer(newFakeDidattica())
	defer srv.Close()
	s := newPortalSession(t, srv)

	download, err := url.Parse(srv.URL + "/pls/portal30/sviluppo.materiale.download?nod=403")
	require.NoError(t, err)

	parent := newMaterial(s, 2024, "Analisi Matematica I", "T", "4567")
	file := newFile(s, parent, "gone.pdf", download, nil)

	_, err = file.Save(context.Background(), t.TempDir(), serverFilename, SaveOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}
