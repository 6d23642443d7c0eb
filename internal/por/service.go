package por

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
)

// Service orchestrates the verification pipeline: admission of submissions
// under the FIFO lock, background job execution, cached reads, and deletes.
// It owns the submission lock and the job queue; both are instance state,
// passed wherever needed by reference, never package-level variables.
type Service struct {
	store     Store
	fetcher   Fetcher
	oracle    Oracle
	manifests ManifestParser
	cache     ResponseCache
	vault     ArchiveVault // optional archive retention
	encryptor Encryptor    // optional, only used with a vault
	notifier  Notifier     // optional completion events
	logger    Logger
	clock     Clock

	lock  submissionLock
	queue *Queue
}

// ServiceDeps bundles the collaborators a Service needs. Vault, Encryptor,
// and Notifier may be nil; the corresponding steps are skipped.
type ServiceDeps struct {
	Store     Store
	Fetcher   Fetcher
	Oracle    Oracle
	Manifests ManifestParser
	Cache     ResponseCache
	Vault     ArchiveVault
	Encryptor Encryptor
	Notifier  Notifier
	Logger    Logger
	Clock     Clock
}

// NewService creates a Service whose job queue runs at most concurrency
// verification jobs at once.
func NewService(deps ServiceDeps, concurrency int) *Service {
	s := &Service{
		store:     deps.Store,
		fetcher:   deps.Fetcher,
		oracle:    deps.Oracle,
		manifests: deps.Manifests,
		cache:     deps.Cache,
		vault:     deps.Vault,
		encryptor: deps.Encryptor,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		clock:     deps.Clock,
	}
	s.queue = NewQueue(concurrency, s.runJob)
	return s
}

// Submit admits one verification request: it fetches and extracts the
// archive, parses the manifest, enforces the duplicate-key policy, writes a
// pending record, and enqueues the background job. The whole admission phase
// runs under the submission lock so two submissions cannot race through the
// dedup check with stale reads.
//
// The returned record is the pending view (valid and verificationTimestamp
// are nil); the verdict lands asynchronously.
func (s *Service) Submit(ctx context.Context, url string) (*VerificationRecord, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}

	if err := s.lock.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquiring submission lock: %w", err)
	}
	defer s.lock.Release()

	res, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	manifest, err := s.manifests.Parse(res.ExtractPath)
	if err != nil {
		s.removeScratch(res.ArchivePath, res.ExtractPath)
		return nil, err
	}

	if cur := s.oracle.Version(); manifest.ProverVersion != cur {
		s.removeScratch(res.ArchivePath, res.ExtractPath)
		return nil, fmt.Errorf("%w: archive built by %s, installed prover is %s",
			ErrProverMismatch, manifest.ProverVersion, cur)
	}

	if err := s.checkConflicts(ctx, res.FileHash, manifest.Timestamp); err != nil {
		s.removeScratch(res.ArchivePath, res.ExtractPath)
		return nil, err
	}

	// Reset the subject to pending. The upsert is atomic on
	// (file_hash, proof_timestamp): an existing row keeps its id and assets,
	// a new pairing gets a fresh row.
	id, err := s.store.Upsert(ctx, UpsertParams{
		ProofTimestamp: manifest.Timestamp,
		FileHash:       res.FileHash,
		Assets:         manifest.Assets,
		ProofFileURL:   url,
		ProverVersion:  manifest.ProverVersion,
	})
	if err != nil {
		s.removeScratch(res.ArchivePath, res.ExtractPath)
		return nil, fmt.Errorf("storing pending record: %w", err)
	}

	rec, err := s.store.Find(ctx, RecordQuery{ID: id})
	if err != nil {
		s.removeScratch(res.ArchivePath, res.ExtractPath)
		return nil, fmt.Errorf("reading back pending record: %w", err)
	}

	// The pending write is a store mutation; purge before anyone can read
	// a stale verdict through the cache.
	s.cache.Invalidate(rec)
	s.cache.InvalidateLists()

	s.queue.Enqueue(&Job{
		ID:             id,
		ArchivePath:    res.ArchivePath,
		ExtractPath:    res.ExtractPath,
		FileHash:       res.FileHash,
		ProofTimestamp: manifest.Timestamp,
		SourceURL:      url,
	})

	s.logger.Info("submission admitted",
		"id", id, "file_hash", res.FileHash, "proof_timestamp", manifest.Timestamp)
	return rec, nil
}

// checkConflicts enforces the duplicate-key policy: a hash or timestamp
// already bound to a *valid* record under a different pairing rejects the
// submission. Pending and failed records do not block re-submission; this
// lax policy is deliberate, favoring re-verification over strict uniqueness.
func (s *Service) checkConflicts(ctx context.Context, fileHash string, proofTimestamp int64) error {
	byHash, err := s.findOrNil(ctx, RecordQuery{FileHash: fileHash})
	if err != nil {
		return fmt.Errorf("checking hash conflict: %w", err)
	}
	if byHash != nil && byHash.ProofTimestamp != proofTimestamp && byHash.IsValid() {
		return fmt.Errorf("%w: hash %s already verified for timestamp %d",
			ErrConflict, fileHash, byHash.ProofTimestamp)
	}

	byTimestamp, err := s.findOrNil(ctx, RecordQuery{ProofTimestamp: proofTimestamp})
	if err != nil {
		return fmt.Errorf("checking timestamp conflict: %w", err)
	}
	if byTimestamp != nil && byTimestamp.FileHash != fileHash && byTimestamp.IsValid() {
		return fmt.Errorf("%w: timestamp %d already verified for a different archive",
			ErrConflict, proofTimestamp)
	}

	return nil
}

func (s *Service) findOrNil(ctx context.Context, q RecordQuery) (*VerificationRecord, error) {
	rec, err := s.store.Find(ctx, q)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Get serves a read, consulting the cache first. A hit short-circuits the
// store; a miss populates the cache after the read completes.
func (s *Service) Get(ctx context.Context, q RecordQuery) (*VerificationRecord, error) {
	if q.Empty() {
		return nil, fmt.Errorf("%w: one of id, proofTimestamp, or fileHash is required", ErrInvalidQuery)
	}
	q = q.Canonical()

	if rec, ok := s.cache.GetRecord(q); ok {
		return rec, nil
	}

	rec, err := s.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	s.cache.PutRecord(q, rec)
	return rec, nil
}

// List serves one page of the verification listing, cached per
// (page, pageSize) after clamping.
func (s *Service) List(ctx context.Context, page, pageSize int) (*RecordPage, error) {
	page, pageSize = ClampPage(page, pageSize)

	if p, ok := s.cache.GetList(page, pageSize); ok {
		return p, nil
	}

	p, err := s.store.ListPage(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	s.cache.PutList(page, pageSize, p)
	return p, nil
}

// Delete removes a record and synchronously evicts every cache entry
// referencing it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	rec, err := s.store.Find(ctx, RecordQuery{ID: id})
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.cache.Invalidate(rec)
	s.cache.InvalidateLists()

	s.logger.Info("verification deleted", "id", id)
	return nil
}

// ProverVersion returns the currently installed prover version.
func (s *Service) ProverVersion() string {
	return s.oracle.Version()
}

// UpdateProver runs the prover update command and refreshes the cached
// version.
func (s *Service) UpdateProver(ctx context.Context) error {
	return s.oracle.Update(ctx)
}

// QueueLen returns the number of jobs waiting for a worker.
func (s *Service) QueueLen() int { return s.queue.Len() }

// ActiveWorkers returns the number of jobs currently being processed.
func (s *Service) ActiveWorkers() int { return s.queue.Active() }

// DrainQueue blocks until all admitted jobs have reached a terminal state.
func (s *Service) DrainQueue() { s.queue.Drain() }

// runJob is the worker body. Every admitted job reaches a terminal store
// state: oracle failures and store failures degrade to valid=false rather
// than leaving the record pending.
func (s *Service) runJob(job *Job) {
	ctx := context.Background()

	s.logger.Info("processing verification job",
		"id", job.ID, "file_hash", job.FileHash, "proof_timestamp", job.ProofTimestamp)

	// Scratch files may have been evicted between submission and dispatch;
	// re-fetch from the recorded source URL before giving up.
	if _, err := os.Stat(job.ExtractPath); err != nil {
		s.logger.Warn("extract path missing, re-fetching", "id", job.ID, "url", job.SourceURL)
		res, ferr := s.fetcher.Fetch(ctx, job.SourceURL)
		if ferr != nil {
			s.logger.Error("re-fetch failed", "id", job.ID, "error", ferr)
			s.recordVerdict(ctx, job, false)
			s.finishJob(ctx, job, false)
			return
		}
		job.ArchivePath = res.ArchivePath
		job.ExtractPath = res.ExtractPath
	}

	valid, err := s.oracle.Verify(ctx, job.ExtractPath)
	if err != nil {
		s.logger.Warn("oracle invocation failed", "id", job.ID, "error", err)
		valid = false
	}

	s.recordVerdict(ctx, job, valid)
	s.finishJob(ctx, job, valid)
}

// recordVerdict writes the terminal state for a job. If the write fails it
// retries once with valid=false; if that also fails the record stays pending
// and the error is logged (consistent with the non-durable queue scope).
func (s *Service) recordVerdict(ctx context.Context, job *Job, valid bool) {
	now := s.clock.Now().UnixMilli()
	_, err := s.store.Upsert(ctx, UpsertParams{
		ProofTimestamp:        job.ProofTimestamp,
		Valid:                 &valid,
		FileHash:              job.FileHash,
		VerificationTimestamp: &now,
	})
	if err != nil && valid {
		s.logger.Error("storing verdict failed, degrading to invalid", "id", job.ID, "error", err)
		failed := false
		_, err = s.store.Upsert(ctx, UpsertParams{
			ProofTimestamp:        job.ProofTimestamp,
			Valid:                 &failed,
			FileHash:              job.FileHash,
			VerificationTimestamp: &now,
		})
	}
	if err != nil {
		s.logger.Error("storing verdict failed", "id", job.ID, "error", err)
		return
	}

	s.cache.Invalidate(&VerificationRecord{
		ID:             job.ID,
		FileHash:       job.FileHash,
		ProofTimestamp: job.ProofTimestamp,
	})
	s.cache.InvalidateLists()

	s.logger.Info("verification job finished", "id", job.ID, "valid", valid)
}

// finishJob handles the non-essential tail of a job: archive retention,
// completion events, and scratch cleanup. Failures here are logged and do
// not affect the recorded verdict.
func (s *Service) finishJob(ctx context.Context, job *Job, valid bool) {
	if s.vault != nil {
		if err := s.archive(job); err != nil {
			s.logger.Warn("archive retention failed", "id", job.ID, "error", err)
		}
	}

	if s.notifier != nil {
		rec := &VerificationRecord{
			ID:             job.ID,
			FileHash:       job.FileHash,
			ProofTimestamp: job.ProofTimestamp,
			Valid:          &valid,
		}
		if err := s.notifier.PublishVerificationCompleted(ctx, rec); err != nil {
			s.logger.Warn("publishing completion event failed", "id", job.ID, "error", err)
		}
	}

	s.removeScratch(job.ArchivePath, job.ExtractPath)
}

// archive stores the raw archive in the vault under its content hash,
// encrypting it first when an encryptor is configured.
func (s *Service) archive(job *Job) error {
	f, err := os.Open(job.ArchivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	if s.encryptor == nil {
		return s.vault.Put(job.FileHash, f)
	}

	var buf bytes.Buffer
	if err := s.encryptor.Encrypt(f, &buf); err != nil {
		return fmt.Errorf("encrypting archive: %w", err)
	}
	return s.vault.Put(job.FileHash, &buf)
}

func (s *Service) removeScratch(archivePath, extractPath string) {
	if extractPath != "" {
		if err := os.RemoveAll(extractPath); err != nil {
			s.logger.Warn("removing extract path failed", "path", extractPath, "error", err)
		}
	}
	if archivePath != "" {
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing archive failed", "path", archivePath, "error", err)
		}
	}
}
