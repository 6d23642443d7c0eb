package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"por-go/internal/netsafe"
	"por-go/internal/por"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("writing zip entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func newTestFetcher(t *testing.T, maxBytes int64) *Fetcher {
	t.Helper()
	resolver := netsafe.NewResolver(true)
	return NewFetcher(resolver, t.TempDir(), 5*time.Second, maxBytes, por.UUIDGenerator{}, por.NopLogger{})
}

func TestFetcher_Fetch(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"final_proof.json": `{"timestamp": 1}`,
		"sub/aux.bin":      "aux data",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1<<20)
	res, err := f.Fetch(context.Background(), srv.URL+"/proof.zip")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	sum := sha256.Sum256(archive)
	if want := hex.EncodeToString(sum[:]); res.FileHash != want {
		t.Errorf("FileHash = %s, want %s", res.FileHash, want)
	}

	data, err := os.ReadFile(filepath.Join(res.ExtractPath, "final_proof.json"))
	if err != nil {
		t.Fatalf("reading extracted manifest: %v", err)
	}
	if string(data) != `{"timestamp": 1}` {
		t.Errorf("extracted manifest = %q", data)
	}

	if _, err := os.Stat(filepath.Join(res.ExtractPath, "sub", "aux.bin")); err != nil {
		t.Errorf("nested entry not extracted: %v", err)
	}

	saved, err := os.ReadFile(res.ArchivePath)
	if err != nil {
		t.Fatalf("reading saved archive: %v", err)
	}
	if !bytes.Equal(saved, archive) {
		t.Error("saved archive differs from served bytes")
	}
}

func TestFetcher_RejectsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://elsewhere.example/proof.zip", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1<<20)
	_, err := f.Fetch(context.Background(), srv.URL+"/proof.zip")
	if !errors.Is(err, por.ErrFetch) {
		t.Errorf("Fetch() error = %v, want ErrFetch", err)
	}
}

func TestFetcher_RejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1<<20)
	_, err := f.Fetch(context.Background(), srv.URL+"/proof.zip")
	if !errors.Is(err, por.ErrFetch) {
		t.Errorf("Fetch() error = %v, want ErrFetch", err)
	}
}

func TestFetcher_RejectsOversizedBody(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(big)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1024)
	_, err := f.Fetch(context.Background(), srv.URL+"/proof.zip")
	if !errors.Is(err, por.ErrFetch) {
		t.Errorf("Fetch() error = %v, want ErrFetch", err)
	}
}

func TestFetcher_RejectsNonZipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a zip archive"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1<<20)
	_, err := f.Fetch(context.Background(), srv.URL+"/proof.zip")
	if !errors.Is(err, por.ErrExtract) {
		t.Errorf("Fetch() error = %v, want ErrExtract", err)
	}
}

func TestFetcher_RejectsZipSlip(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"../evil.txt": "escape attempt",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1<<20)
	_, err := f.Fetch(context.Background(), srv.URL+"/proof.zip")
	if !errors.Is(err, por.ErrExtract) {
		t.Errorf("Fetch() error = %v, want ErrExtract", err)
	}
}

func TestFetcher_ForbiddenHostNeverDialed(t *testing.T) {
	resolver := netsafe.NewResolver(false)
	f := NewFetcher(resolver, t.TempDir(), time.Second, 1<<20, por.UUIDGenerator{}, por.NopLogger{})

	_, err := f.Fetch(context.Background(), "http://127.0.0.1:9/proof.zip")
	if !errors.Is(err, por.ErrForbiddenAddress) {
		t.Errorf("Fetch() error = %v, want ErrForbiddenAddress", err)
	}
}

func TestFetcher_CleansUpOnExtractFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a zip"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	resolver := netsafe.NewResolver(true)
	f := NewFetcher(resolver, dir, time.Second, 1<<20, por.UUIDGenerator{}, por.NopLogger{})

	if _, err := f.Fetch(context.Background(), srv.URL+"/proof.zip"); err == nil {
		t.Fatal("Fetch() expected error")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch not cleaned after failure, %d entries remain", len(entries))
	}
}
