// Package fetch downloads proof archives over HTTP and unpacks them into a
// scratch directory. Connections are pinned to the address the resolver
// validated, so the hostname is never resolved a second time.
package fetch

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"por-go/internal/netsafe"
	"por-go/internal/por"
)

// Fetcher downloads a zip archive from a validated URL, hashes it, and
// extracts it under the configured temp directory.
type Fetcher struct {
	resolver *netsafe.Resolver
	tempDir  string
	timeout  time.Duration
	maxBytes int64
	ids      por.IDGenerator
	log      por.Logger
}

// NewFetcher creates a Fetcher. maxBytes caps the accepted archive size;
// downloads exceeding it are aborted.
func NewFetcher(resolver *netsafe.Resolver, tempDir string, timeout time.Duration, maxBytes int64, ids por.IDGenerator, log por.Logger) *Fetcher {
	if log == nil {
		log = por.NopLogger{}
	}
	if ids == nil {
		ids = por.UUIDGenerator{}
	}
	return &Fetcher{
		resolver: resolver,
		tempDir:  tempDir,
		timeout:  timeout,
		maxBytes: maxBytes,
		ids:      ids,
		log:      log,
	}
}

var _ por.Fetcher = (*Fetcher)(nil)

// Fetch downloads the archive at rawURL to a scratch file, computes its
// sha-256, and extracts it. Redirects are refused so the pinned address
// cannot be escaped.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*por.FetchResult, error) {
	addr, err := f.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	id := f.ids.New()
	archivePath := filepath.Join(f.tempDir, fmt.Sprintf("download-%s.zip", id))
	extractPath := filepath.Join(f.tempDir, fmt.Sprintf("extracted-%s", id))

	hash, err := f.download(ctx, rawURL, addr, archivePath)
	if err != nil {
		os.Remove(archivePath)
		return nil, err
	}

	if err := unzip(archivePath, extractPath); err != nil {
		os.Remove(archivePath)
		os.RemoveAll(extractPath)
		return nil, err
	}

	f.log.Debug("archive fetched", "url", rawURL, "hash", hash, "path", archivePath)
	return &por.FetchResult{
		ArchivePath: archivePath,
		ExtractPath: extractPath,
		FileHash:    hash,
	}, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string, addr netip.Addr, dest string) (string, error) {
	client := f.pinnedClient(rawURL, addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", por.ErrInvalidInput, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", por.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", por.ErrFetch, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating download file: %w", err)
	}
	defer out.Close()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, hasher), io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", por.ErrFetch, err)
	}
	if n > f.maxBytes {
		return "", fmt.Errorf("%w: archive exceeds %d bytes", por.ErrFetch, f.maxBytes)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing download file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// pinnedClient returns a client that dials only the resolved address and
// refuses redirects.
func (f *Fetcher) pinnedClient(rawURL string, addr netip.Addr) *http.Client {
	u, _ := url.Parse(rawURL)
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	pinned := net.JoinHostPort(addr.String(), port)

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, pinned)
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   f.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return fmt.Errorf("%w: redirect to %s refused", por.ErrFetch, req.URL)
		},
	}
}

// unzip extracts the archive at src into dest, rejecting entries that would
// escape the destination directory.
func unzip(src, dest string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: opening archive: %v", por.ErrExtract, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating extract dir: %w", err)
	}

	for _, file := range reader.File {
		if err := extractFile(file, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(file *zip.File, dest string) error {
	path := filepath.Join(dest, file.Name)
	if !strings.HasPrefix(path, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: entry %q escapes archive root", por.ErrExtract, file.Name)
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(path, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating entry dir: %w", err)
	}

	in, err := file.Open()
	if err != nil {
		return fmt.Errorf("%w: opening entry %q: %v", por.ErrExtract, file.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode())
	if err != nil {
		return fmt.Errorf("%w: creating entry %q: %v", por.ErrExtract, file.Name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: writing entry %q: %v", por.ErrExtract, file.Name, err)
	}
	return nil
}
