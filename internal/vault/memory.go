package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"por-go/internal/por"
)

// MemoryVault is an in-memory implementation of the ArchiveVault interface.
// It stores all archives in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name    string
	content map[string][]byte // checksum -> archive bytes
	mu      sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		content: make(map[string][]byte),
	}
}

// Put stores an archive identified by its checksum.
func (m *MemoryVault) Put(checksum string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same checksum multiple times is safe
	m.content[checksum] = data
	return nil
}

// Get retrieves an archive by checksum and writes it to w.
func (m *MemoryVault) Get(checksum string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[checksum]
	if !ok {
		return fmt.Errorf("archive not found: %s", checksum)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements por.ArchiveVault interface
var _ por.ArchiveVault = (*MemoryVault)(nil)
