package por

// Asset holds the decimal-scaled balance and price of a single named asset
// extracted from a proof manifest, plus the derived USD value.
type Asset struct {
	Balance    string `json:"balance"`
	Price      string `json:"price"`
	USDBalance string `json:"usd_balance"`
}

// VerificationRecord is the durable unit of truth for one verification
// subject, identified by (FileHash, ProofTimestamp).
//
// Valid is tri-state: nil means verification is pending, otherwise it holds
// the verdict. VerificationTimestamp (unix milliseconds) is nil exactly when
// Valid is nil.
type VerificationRecord struct {
	ID                    int64            `json:"id"`
	FileHash              string           `json:"fileHash"`
	ProofTimestamp        int64            `json:"proofTimestamp"`
	VerificationTimestamp *int64           `json:"verificationTimestamp"`
	Valid                 *bool            `json:"valid"`
	Assets                map[string]Asset `json:"assets,omitempty"`
	ProverVersion         string           `json:"proverVersion,omitempty"`
	ProofFileURL          string           `json:"-"`
}

// IsValid reports whether the record carries a positive verdict.
// Pending and failed records are both non-valid.
func (r *VerificationRecord) IsValid() bool {
	return r.Valid != nil && *r.Valid
}

// RecordQuery selects a single record. Exactly one selector is honored,
// in the precedence ID > ProofTimestamp > FileHash.
type RecordQuery struct {
	ID             int64
	ProofTimestamp int64
	FileHash       string
}

// Empty reports whether no selector is set.
func (q RecordQuery) Empty() bool {
	return q.ID <= 0 && q.ProofTimestamp <= 0 && q.FileHash == ""
}

// Canonical reduces the query to its highest-precedence selector so that
// equivalent queries produce identical cache keys.
func (q RecordQuery) Canonical() RecordQuery {
	switch {
	case q.ID > 0:
		return RecordQuery{ID: q.ID}
	case q.ProofTimestamp > 0:
		return RecordQuery{ProofTimestamp: q.ProofTimestamp}
	case q.FileHash != "":
		return RecordQuery{FileHash: q.FileHash}
	}
	return RecordQuery{}
}

// RecordPage is one page of the verification listing.
type RecordPage struct {
	Verifications []*VerificationRecord `json:"verifications"`
	Total         int                   `json:"total"`
}

// ClampPage normalizes pagination parameters: page is at least 1 and
// pageSize is within [1, 100].
func ClampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// Job is the ephemeral, in-memory unit of background work. It is created
// when a submission is admitted and destroyed when the worker finishes.
// Jobs are not persisted; a process restart loses queued and in-flight jobs.
type Job struct {
	ID             int64
	ArchivePath    string
	ExtractPath    string
	FileHash       string
	ProofTimestamp int64
	SourceURL      string
}

// ProofManifest is the data extracted from final_proof.json at submission
// time. Validity is not part of the manifest; it is produced later by the
// oracle.
type ProofManifest struct {
	Timestamp     int64
	ProverVersion string
	Assets        map[string]Asset
}
