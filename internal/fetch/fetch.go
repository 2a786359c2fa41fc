// Package fetch implements a per-source disk cache keyed by URL basename,
// sha256 verification, git clone/fetch for VCS sources, retrying HTTP
// downloads, and a bounded worker pool for fetching several metafiles'
// sources concurrently.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/fcanata00/newpkg/internal/metafile"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Config controls retry/concurrency behaviour.
type Config struct {
	SourcesDir string
	Retry      int // max retries per source after the first download attempt
	Parallel   int // max sources fetched concurrently
	HTTPClient *http.Client
}

// Fetcher resolves a Metafile's Sources into local paths, reusing a cached
// copy when the basename already exists on disk.
type Fetcher struct {
	cfg Config
}

// New returns a Fetcher. A zero-value HTTPClient defaults to http.DefaultClient.
func New(cfg Config) *Fetcher {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 3
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	return &Fetcher{cfg: cfg}
}

// Result is one resolved source: its local path and, for git sources, the
// checked-out ref.
type Result struct {
	Source string // original URL/ref from the metafile
	Path   string
	IsGit  bool
}

// FetchAll resolves every source in m concurrently, bounded by cfg.Parallel.
func (f *Fetcher) FetchAll(ctx context.Context, m *metafile.Metafile) ([]Result, error) {
	results := make([]Result, len(m.Sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Parallel)
	for i, src := range m.Sources {
		i, src := i, src
		g.Go(func() error {
			r, err := f.FetchOne(ctx, src)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// FetchOne resolves a single source string. Git sources are written as
// "git+<url>[#ref]"; anything else is treated as an HTTP(S) tarball URL,
// optionally suffixed "#<sha256>" for integrity verification.
func (f *Fetcher) FetchOne(ctx context.Context, src string) (Result, error) {
	if strings.HasPrefix(src, "git+") {
		return f.fetchGit(ctx, strings.TrimPrefix(src, "git+"))
	}
	return f.fetchHTTP(ctx, src)
}

func splitSum(src string) (url, sum string) {
	if idx := strings.LastIndex(src, "#"); idx >= 0 {
		return src[:idx], src[idx+1:]
	}
	return src, ""
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src string) (Result, error) {
	url, sum := splitSum(src)
	if err := os.MkdirAll(f.cfg.SourcesDir, 0o755); err != nil {
		return Result{}, pkgerrors.Wrap("fetch.http", pkgerrors.KindIO, f.cfg.SourcesDir, err)
	}
	dest := filepath.Join(f.cfg.SourcesDir, filepath.Base(url))

	if st, err := os.Stat(dest); err == nil && st.Size() > 0 {
		if sum == "" {
			return Result{Source: src, Path: dest}, nil
		}
		if ok, err := verifySHA256(dest, sum); err == nil && ok {
			return Result{Source: src, Path: dest}, nil
		}
		os.Remove(dest)
	}

	tmp := dest + ".part"
	op := func() error {
		return downloadOnce(ctx, f.cfg.HTTPClient, url, tmp)
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(f.cfg.Retry))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		os.Remove(tmp)
		return Result{}, pkgerrors.Wrap("fetch.http", pkgerrors.KindFetch, url, err)
	}

	if sum != "" {
		ok, err := verifySHA256(tmp, sum)
		if err != nil {
			os.Remove(tmp)
			return Result{}, pkgerrors.Wrap("fetch.http", pkgerrors.KindIO, tmp, err)
		}
		if !ok {
			os.Remove(tmp)
			return Result{}, pkgerrors.Wrap("fetch.http", pkgerrors.KindFetch, url, fmt.Errorf("sha256 mismatch"))
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return Result{}, pkgerrors.Wrap("fetch.http", pkgerrors.KindIO, dest, err)
	}
	return Result{Source: src, Path: dest}, nil
}

func downloadOnce(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err // transient, retryable
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return backoff.Permanent(fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	out, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func verifySHA256(path, want string) (bool, error) {
	fh, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer fh.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return false, err
	}
	got := hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(got, want), nil
}

func (f *Fetcher) fetchGit(ctx context.Context, spec string) (Result, error) {
	url, ref := spec, ""
	if idx := strings.LastIndex(spec, "#"); idx >= 0 {
		url, ref = spec[:idx], spec[idx+1:]
	}
	if err := os.MkdirAll(f.cfg.SourcesDir, 0o755); err != nil {
		return Result{}, pkgerrors.Wrap("fetch.git", pkgerrors.KindIO, f.cfg.SourcesDir, err)
	}
	dest := filepath.Join(f.cfg.SourcesDir, gitDirName(url))

	if _, err := os.Stat(filepath.Join(dest, ".git")); os.IsNotExist(err) {
		if err := runGit(ctx, "", "clone", url, dest); err != nil {
			return Result{}, pkgerrors.Wrap("fetch.git", pkgerrors.KindFetch, url, err)
		}
	} else {
		if err := runGit(ctx, dest, "fetch", "--all", "--tags"); err != nil {
			return Result{}, pkgerrors.Wrap("fetch.git", pkgerrors.KindFetch, url, err)
		}
	}
	if ref != "" {
		if err := runGit(ctx, dest, "checkout", ref); err != nil {
			return Result{}, pkgerrors.Wrap("fetch.git", pkgerrors.KindFetch, ref, err)
		}
	}
	return Result{Source: spec, Path: dest, IsGit: true}, nil
}

func gitDirName(url string) string {
	base := filepath.Base(strings.TrimSuffix(url, "/"))
	return strings.TrimSuffix(base, ".git")
}

func runGit(ctx context.Context, dir string, args ...string) error {
	full := args
	if dir != "" {
		full = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Stdout, cmd.Stderr = io.Discard, io.Discard
	return cmd.Run()
}
