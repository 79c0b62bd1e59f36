package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("s3://bucket/key"))
	assert.True(t, IsRemote("http://example.com/f"))
	assert.True(t, IsRemote("https://example.com/f"))
	assert.False(t, IsRemote("./local/path"))
	assert.False(t, IsRemote("/abs/path"))
	assert.False(t, IsRemote("plain.txt"))
}

func TestCachePathIsStableAndRecognizable(t *testing.T) {
	f := New(t.TempDir())

	a := f.CachePath("https://example.com/data.csv")
	b := f.CachePath("https://example.com/data.csv")
	c := f.CachePath("https://example.com/other.csv")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, filepath.Base(a), "data.csv")
}

func TestFetchHTTPDownloadsAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("remote content"))
	}))
	defer srv.Close()

	f := New(t.TempDir())
	url := srv.URL + "/data.txt"

	local, err := f.Fetch(context.Background(), url, "")
	require.NoError(t, err)

	content, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(content))
	assert.Equal(t, 1, hits)

	// Second fetch is served from the cache.
	again, err := f.Fetch(context.Background(), url, "")
	require.NoError(t, err)
	assert.Equal(t, local, again)
	assert.Equal(t, 1, hits)
}

func TestFetchVerifiesChecksum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := New(t.TempDir())
	url := srv.URL + "/pinned.bin"

	sum := sha256.Sum256([]byte("payload"))
	want := hex.EncodeToString(sum[:])

	local, err := f.Fetch(context.Background(), url, want)
	require.NoError(t, err)
	assert.FileExists(t, local)

	wrong := hex.EncodeToString(make([]byte, 32))
	_, err = f.Fetch(context.Background(), url+"?v=2", wrong)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestFetchChecksumMismatchInCacheRedownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	f := New(t.TempDir())
	url := srv.URL + "/f.txt"

	// Seed the cache with stale content.
	require.NoError(t, os.MkdirAll(f.CacheDir, 0755))
	require.NoError(t, os.WriteFile(f.CachePath(url), []byte("stale"), 0644))

	sum := sha256.Sum256([]byte("fresh"))
	local, err := f.Fetch(context.Background(), url, hex.EncodeToString(sum[:]))
	require.NoError(t, err)

	content, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(content))
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(t.TempDir())
	_, err := f.Fetch(context.Background(), srv.URL+"/missing", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestFetchRejectsUnknownScheme(t *testing.T) {
	f := New(t.TempDir())
	_, err := f.Fetch(context.Background(), "ftp://host/file", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

func TestFetchConcurrentThroughSharedFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "body of %s", r.URL.Path)
	}))
	defer srv.Close()

	f := New(t.TempDir())

	// Mixed workload: several workers pulling distinct URLs plus two
	// pulling the same one, as a pipeline with shared inputs would.
	urls := []string{
		srv.URL + "/a.txt",
		srv.URL + "/b.txt",
		srv.URL + "/c.txt",
		srv.URL + "/shared.txt",
		srv.URL + "/shared.txt",
	}

	var wg sync.WaitGroup
	paths := make([]string, len(urls))
	errs := make([]error, len(urls))
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			paths[i], errs[i] = f.Fetch(context.Background(), url, "")
		}(i, url)
	}
	wg.Wait()

	for i, url := range urls {
		require.NoError(t, errs[i])
		content, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, "body of "+strings.TrimPrefix(url, srv.URL), string(content))
	}

	// No partial downloads may survive in the cache.
	entries, err := os.ReadDir(f.CacheDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".part-")
	}
}

func TestSessionInitIsSafeUnderConcurrency(t *testing.T) {
	f := New(t.TempDir())

	var wg sync.WaitGroup
	sessions := make([]*session.Session, 8)
	errs := make([]error, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = f.session()
		}(i)
	}
	wg.Wait()

	for i := range sessions {
		assert.Same(t, sessions[0], sessions[i])
		assert.Equal(t, errs[0], errs[i])
	}
}
