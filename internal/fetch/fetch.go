// Package fetch materializes remote task inputs (s3:// and http(s):// URLs)
// into a local content-addressed cache so the staleness evaluator can treat
// them like ordinary files.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/hpipe/hpipe/internal/logger"
)

// DefaultCacheDir is the cache location relative to the working directory
const DefaultCacheDir = ".hpipe/cache"

// IsRemote reports whether a declared input is a URL rather than a path
func IsRemote(input string) bool {
	return strings.HasPrefix(input, "s3://") ||
		strings.HasPrefix(input, "http://") ||
		strings.HasPrefix(input, "https://")
}

// Fetcher downloads remote inputs into a local cache. Entries are keyed by
// the sha256 of the URL, so the same URL is downloaded once per cache. One
// Fetcher is shared by every task in a run and workers fetch concurrently,
// so the AWS session init is synchronized and downloads land in the cache
// through an atomic rename.
type Fetcher struct {
	// CacheDir is where downloaded inputs are stored
	CacheDir string

	// HTTPClient is used for http and https URLs
	HTTPClient *http.Client

	s3once sync.Once
	s3sess *session.Session
	s3err  error
}

// New creates a fetcher over the given cache directory, defaulting to
// DefaultCacheDir.
func New(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	return &Fetcher{
		CacheDir:   cacheDir,
		HTTPClient: http.DefaultClient,
	}
}

// CachePath returns where the given URL lands in the cache. The original
// filename is kept as a suffix to keep cache entries recognizable.
func (f *Fetcher) CachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(sum[:16])
	if base := filepath.Base(rawURL); base != "" && base != "." && base != "/" {
		name += "-" + base
	}
	return filepath.Join(f.CacheDir, name)
}

// Fetch downloads the URL into the cache and returns the local path. A
// cached entry whose content matches wantSHA256 is reused without touching
// the network; pass an empty hash to reuse any cached entry.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, wantSHA256 string) (string, error) {
	local := f.CachePath(rawURL)

	if f.cachedEntryUsable(local, wantSHA256) {
		logger.Op.WithFields(map[string]interface{}{
			"url":  rawURL,
			"path": local,
		}).Debug("Using cached remote input")
		return local, nil
	}

	if !IsRemote(rawURL) {
		return "", fmt.Errorf("unsupported URL scheme: %s", rawURL)
	}

	if err := os.MkdirAll(f.CacheDir, 0755); err != nil {
		return "", err
	}

	logger.Op.WithFields(map[string]interface{}{
		"url":  rawURL,
		"path": local,
	}).Info("Downloading remote input")

	// Two tasks may declare the same URL. Each download goes to a private
	// temp file and is renamed into place, so a concurrent fetch never
	// observes a partially written cache entry.
	tmp, err := os.CreateTemp(f.CacheDir, filepath.Base(local)+".part-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if strings.HasPrefix(rawURL, "s3://") {
		err = f.downloadS3(ctx, rawURL, tmp)
	} else {
		err = f.downloadHTTP(ctx, rawURL, tmp)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}

	if wantSHA256 != "" {
		got, err := fileSHA256(tmp.Name())
		if err != nil {
			return "", err
		}
		if got != wantSHA256 {
			return "", fmt.Errorf("checksum mismatch for %s: want %s, got %s", rawURL, wantSHA256, got)
		}
	}

	if err := os.Rename(tmp.Name(), local); err != nil {
		return "", err
	}
	return local, nil
}

// cachedEntryUsable reports whether an existing cache entry can be reused
func (f *Fetcher) cachedEntryUsable(local, wantSHA256 string) bool {
	if _, err := os.Stat(local); err != nil {
		return false
	}
	if wantSHA256 == "" {
		return true
	}
	got, err := fileSHA256(local)
	return err == nil && got == wantSHA256
}

// downloadHTTP streams the response body to out
func (f *Fetcher) downloadHTTP(ctx context.Context, rawURL string, out *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}

	_, err = io.Copy(out, resp.Body)
	return err
}

// session returns the shared AWS session, created on first use. Multiple
// workers can reach the first s3 download at the same time.
func (f *Fetcher) session() (*session.Session, error) {
	f.s3once.Do(func() {
		f.s3sess, f.s3err = session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
		})
	})
	return f.s3sess, f.s3err
}

// downloadS3 fetches an s3://bucket/key object via the concurrent downloader
func (f *Fetcher) downloadS3(ctx context.Context, rawURL string, out *os.File) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("malformed s3 URL: %s", rawURL)
	}

	sess, err := f.session()
	if err != nil {
		return err
	}

	downloader := s3manager.NewDownloader(sess)
	_, err = downloader.DownloadWithContext(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

// fileSHA256 returns the hex sha256 of a file's content
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
