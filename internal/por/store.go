package por

import "context"

// UpsertParams carries one conditional write keyed by
// (FileHash, ProofTimestamp).
//
// When a row already exists for the key, only Valid, VerificationTimestamp,
// and (if previously unset) ProofFileURL are updated; Assets and
// ProverVersion are set at creation and never modified afterwards.
type UpsertParams struct {
	ProofTimestamp        int64
	Valid                 *bool
	FileHash              string
	VerificationTimestamp *int64
	Assets                map[string]Asset
	ProofFileURL          string
	ProverVersion         string
}

// Store is the persistent record of verification attempts.
type Store interface {
	// Upsert atomically inserts or updates the row for
	// (FileHash, ProofTimestamp) and returns its id. The insert-or-update
	// decision happens inside a single statement so concurrent upserts with
	// the same key cannot create two rows.
	Upsert(ctx context.Context, p UpsertParams) (int64, error)

	// Find returns the record selected by q, honoring the precedence
	// id > proofTimestamp > fileHash. Returns ErrInvalidQuery when no
	// selector is set and ErrNotFound when no row matches.
	Find(ctx context.Context, q RecordQuery) (*VerificationRecord, error)

	// ListPage returns one page of records ordered by proof timestamp
	// descending, plus the total row count. Pagination parameters are
	// clamped with ClampPage.
	ListPage(ctx context.Context, page, pageSize int) (*RecordPage, error)

	// Delete removes the record with the given id. Returns ErrNotFound
	// when no row matches. This is the only mutation path that removes
	// a record.
	Delete(ctx context.Context, id int64) error

	// Close closes the underlying database connection.
	Close() error
}
