package por

import (
	"context"
	"io"
)

// FetchResult describes a downloaded and extracted archive in scratch space.
// The caller owns cleanup of both paths.
type FetchResult struct {
	ArchivePath string
	ExtractPath string
	FileHash    string
}

// Fetcher downloads a remote archive to scratch space, computes its content
// hash, and extracts it. Implementations must pin the connection to the
// address validated by the resolver so the fetch cannot be redirected to a
// different host between check and use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Oracle is the external verification binary, treated as a black-box
// pass/fail function over an extraction directory.
type Oracle interface {
	// Verify runs the oracle against the extraction directory. A clean
	// non-zero exit is a negative verdict, not an error; errors are
	// reserved for failures to run the oracle at all.
	Verify(ctx context.Context, extractPath string) (bool, error)

	// Version returns the currently installed prover version, in the form
	// vMAJOR.MINOR.PATCH, or "unknown" when the binary cannot be probed.
	Version() string

	// Update runs the configured prover update command (when set) and
	// re-probes the version.
	Update(ctx context.Context) error
}

// ManifestParser reads the proof manifest out of an extraction directory.
type ManifestParser interface {
	Parse(extractPath string) (*ProofManifest, error)
}

// ResponseCache is a capacity- and time-bounded cache of read results.
// Key derivation mirrors the Store's lookup precedence and is internal to
// the implementation; mutation call sites only hand over the full record.
type ResponseCache interface {
	GetRecord(q RecordQuery) (*VerificationRecord, bool)
	PutRecord(q RecordQuery, rec *VerificationRecord)
	GetList(page, pageSize int) (*RecordPage, bool)
	PutList(page, pageSize int, p *RecordPage)

	// Invalidate evicts every key derivable from the record: its id, its
	// proof timestamp, and its file hash. A store mutation is not complete
	// until all three are purged.
	Invalidate(rec *VerificationRecord)

	// InvalidateLists evicts all cached list pages.
	InvalidateLists()
}

// ArchiveVault retains verified proof archives, addressed by their content
// hash. Storing the same checksum twice is a no-op.
type ArchiveVault interface {
	Put(checksum string, r io.Reader) error
	Get(checksum string, w io.Writer) error
	ValidateSetup() error
}

// Encryptor encrypts archive bytes before they reach the vault.
type Encryptor interface {
	Encrypt(r io.Reader, w io.Writer) error
}

// DecryptionContext holds an unlocked identity for decrypting retained
// archives.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Notifier publishes verification lifecycle events to interested consumers.
type Notifier interface {
	PublishVerificationCompleted(ctx context.Context, rec *VerificationRecord) error
	Close()
}
