package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestFetchOneDownloadsAndCaches(t *testing.T) {
	body := []byte("hello source tarball")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{SourcesDir: dir, Retry: 1, Parallel: 1})

	res, err := f.FetchOne(context.Background(), srv.URL+"/alpha-1.0.tar.gz#"+sha256Hex(body))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "alpha-1.0.tar.gz"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, body, data)
}

func TestFetchOneRejectsChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{SourcesDir: dir, Retry: 1, Parallel: 1})

	_, err := f.FetchOne(context.Background(), srv.URL+"/pkg.tar.gz#deadbeef")
	require.Error(t, err)
}

func TestFetchOneReusesCachedFileWhenSumMatches(t *testing.T) {
	body := []byte("cached content")
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{SourcesDir: dir, Retry: 1, Parallel: 1})
	sum := sha256Hex(body)

	_, err := f.FetchOne(context.Background(), srv.URL+"/x.tar.gz#"+sum)
	require.NoError(t, err)
	_, err = f.FetchOne(context.Background(), srv.URL+"/x.tar.gz#"+sum)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
