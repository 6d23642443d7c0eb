package encryption

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"por-go/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "porv.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "porv.key"),
	})
}

func TestAgeEncryptor_SetupAndIsConfigured(t *testing.T) {
	enc := newTestAgeEncryptor(t)

	if enc.IsConfigured() {
		t.Error("IsConfigured() = true before Setup")
	}

	if err := enc.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !enc.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}
}

func TestAgeEncryptor_EncryptDecryptRoundTrip(t *testing.T) {
	enc := newTestAgeEncryptor(t)

	if err := enc.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	plaintext := "proof archive contents"

	var ciphertext bytes.Buffer
	if err := enc.Encrypt(strings.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if strings.Contains(ciphertext.String(), plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	dec, err := enc.Unlock("test-passphrase")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	var decrypted bytes.Buffer
	if err := dec.Decrypt(&ciphertext, &decrypted); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}

	if got := decrypted.String(); got != plaintext {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestAgeEncryptor_UnlockWrongPassphrase(t *testing.T) {
	enc := newTestAgeEncryptor(t)

	if err := enc.Setup("correct-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if _, err := enc.Unlock("wrong-passphrase"); err == nil {
		t.Error("Unlock() expected error for wrong passphrase, got nil")
	}
}

func TestAgeEncryptor_EncryptWithoutKeys(t *testing.T) {
	enc := newTestAgeEncryptor(t)

	var out bytes.Buffer
	if err := enc.Encrypt(strings.NewReader("data"), &out); err == nil {
		t.Error("Encrypt() expected error without keys, got nil")
	}
}
