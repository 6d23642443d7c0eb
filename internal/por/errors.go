package por

import "errors"

// Sentinel errors forming the service error taxonomy. Callers match them
// with errors.Is; lower layers wrap them with context via fmt.Errorf.
var (
	// ErrInvalidInput marks a missing or malformed URL or request body.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidQuery marks a read request with no usable selector.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrForbiddenAddress marks a URL resolving to a non-public address.
	ErrForbiddenAddress = errors.New("forbidden address")

	// ErrFetch marks a network, timeout, status, or size failure while
	// downloading an archive.
	ErrFetch = errors.New("fetch failed")

	// ErrExtract marks a malformed archive or proof manifest.
	ErrExtract = errors.New("extract failed")

	// ErrProverMismatch marks a manifest produced by a prover version other
	// than the one currently installed.
	ErrProverMismatch = errors.New("prover version mismatch")

	// ErrConflict marks a submission whose hash or timestamp is already
	// claimed by a valid record under a different pairing.
	ErrConflict = errors.New("conflict with existing valid verification")

	// ErrNotFound marks a read or delete whose target does not exist.
	ErrNotFound = errors.New("verification not found")
)
