package vault

import (
	"bytes"
	"strings"
	"testing"
)

func TestMemoryVault_PutAndGet(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	tests := []struct {
		name     string
		checksum string
		content  string
	}{
		{
			name:     "store and retrieve archive",
			checksum: "abc123",
			content:  "hello world",
		},
		{
			name:     "store empty archive",
			checksum: "empty",
			content:  "",
		},
		{
			name:     "store large archive",
			checksum: "large",
			content:  strings.Repeat("x", 10000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := vault.Put(tt.checksum, strings.NewReader(tt.content)); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			var buf bytes.Buffer
			if err := vault.Get(tt.checksum, &buf); err != nil {
				t.Fatalf("Get() unexpected error: %v", err)
			}

			if got := buf.String(); got != tt.content {
				t.Errorf("Get() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestMemoryVault_PutIdempotent(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	content := "test content"
	checksum := "test-checksum"

	// Store same content twice
	for i := 0; i < 2; i++ {
		if err := vault.Put(checksum, strings.NewReader(content)); err != nil {
			t.Fatalf("Put() iteration %d error: %v", i+1, err)
		}
	}

	// Should still retrieve the content
	var buf bytes.Buffer
	if err := vault.Get(checksum, &buf); err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if got := buf.String(); got != content {
		t.Errorf("Get() = %q, want %q", got, content)
	}
}

func TestMemoryVault_GetNotFound(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	var buf bytes.Buffer
	err := vault.Get("nonexistent", &buf)
	if err == nil {
		t.Error("Get() expected error for nonexistent checksum, got nil")
	}
}

func TestMemoryVault_ValidateSetup(t *testing.T) {
	vault := NewMemoryVault("test-vault")

	if err := vault.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() unexpected error: %v", err)
	}
}
