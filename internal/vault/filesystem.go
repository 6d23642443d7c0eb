package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"por-go/internal/por"
)

// FileSystemVault is a filesystem-based implementation of the ArchiveVault
// interface. It stores archives as files named by their SHA-256 checksum:
//
//	<root>/
//	  content/
//	    <checksum>
type FileSystemVault struct {
	name       string
	root       string
	contentDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	contentDir := filepath.Join(root, "content")

	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &FileSystemVault{
		name:       name,
		root:       root,
		contentDir: contentDir,
	}, nil
}

// Put stores an archive identified by its checksum.
// The operation is idempotent: storing the same checksum multiple times is safe.
func (v *FileSystemVault) Put(checksum string, r io.Reader) error {
	destPath := filepath.Join(v.contentDir, checksum)

	// If the archive already exists, skip (idempotent)
	if _, err := os.Stat(destPath); err == nil {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		return nil
	}

	return v.writeFile(destPath, r)
}

// Get retrieves an archive by checksum and writes it to w.
func (v *FileSystemVault) Get(checksum string, w io.Writer) error {
	srcPath := filepath.Join(v.contentDir, checksum)

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive not found: %s", checksum)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.contentDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements por.ArchiveVault interface
var _ por.ArchiveVault = (*FileSystemVault)(nil)
