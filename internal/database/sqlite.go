package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"por-go/internal/database/migrations"
	"por-go/internal/por"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the por.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite-backed store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{
		db:   db,
		path: path,
	}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:   db,
		path: "",
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Background workers and request handlers share this connection pool;
	// wait for locks instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

const recordColumns = `id, file_hash, proof_timestamp, verification_timestamp, valid, assets, proof_file_url, prover_version`

// Upsert inserts or updates the row for (file_hash, proof_timestamp) in a
// single statement. The conflict clause only touches the verdict fields and
// the source URL when not already set; assets and prover_version keep their
// creation-time values.
func (s *SQLiteStore) Upsert(ctx context.Context, p por.UpsertParams) (int64, error) {
	assets, err := marshalAssets(p.Assets)
	if err != nil {
		return 0, fmt.Errorf("encoding assets: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO verifications (
			proof_timestamp, verification_timestamp, valid, file_hash, assets, proof_file_url, prover_version
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_hash, proof_timestamp) DO UPDATE SET
			verification_timestamp = excluded.verification_timestamp,
			valid = excluded.valid,
			proof_file_url = COALESCE(verifications.proof_file_url, excluded.proof_file_url)
		RETURNING id`,
		p.ProofTimestamp,
		nullInt64(p.VerificationTimestamp),
		nullBool(p.Valid),
		p.FileHash,
		assets,
		nullString(p.ProofFileURL),
		nullString(p.ProverVersion),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting verification: %w", err)
	}

	return id, nil
}

// Find returns the record selected by q, honoring the selector precedence
// id > proof_timestamp > file_hash.
func (s *SQLiteStore) Find(ctx context.Context, q por.RecordQuery) (*por.VerificationRecord, error) {
	var (
		where string
		arg   any
	)
	switch {
	case q.ID > 0:
		where, arg = "id = ?", q.ID
	case q.ProofTimestamp > 0:
		where, arg = "proof_timestamp = ?", q.ProofTimestamp
	case q.FileHash != "":
		where, arg = "file_hash = ?", q.FileHash
	default:
		return nil, fmt.Errorf("%w: no selector supplied", por.ErrInvalidQuery)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM verifications WHERE `+where, arg)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, por.ErrNotFound
		}
		return nil, fmt.Errorf("finding verification: %w", err)
	}
	return rec, nil
}

// ListPage returns one page of records ordered by proof timestamp descending.
func (s *SQLiteStore) ListPage(ctx context.Context, page, pageSize int) (*por.RecordPage, error) {
	page, pageSize = por.ClampPage(page, pageSize)
	offset := (page - 1) * pageSize

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verifications`).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting verifications: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM verifications
		 ORDER BY proof_timestamp DESC
		 LIMIT ? OFFSET ?`,
		pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("listing verifications: %w", err)
	}
	defer rows.Close()

	records := []*por.VerificationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning verification: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing verifications: %w", err)
	}

	return &por.RecordPage{Verifications: records, Total: total}, nil
}

// Delete removes the record with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting verification: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting verification: %w", err)
	}
	if affected == 0 {
		return por.ErrNotFound
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the database schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*por.VerificationRecord, error) {
	var (
		rec           por.VerificationRecord
		vt            sql.NullInt64
		valid         sql.NullBool
		assets        sql.NullString
		proofFileURL  sql.NullString
		proverVersion sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.FileHash, &rec.ProofTimestamp, &vt, &valid, &assets, &proofFileURL, &proverVersion)
	if err != nil {
		return nil, err
	}

	if vt.Valid {
		rec.VerificationTimestamp = &vt.Int64
	}
	if valid.Valid {
		rec.Valid = &valid.Bool
	}
	if proofFileURL.Valid {
		rec.ProofFileURL = proofFileURL.String
	}
	if proverVersion.Valid {
		rec.ProverVersion = proverVersion.String
	}
	if assets.Valid && assets.String != "" {
		if err := json.Unmarshal([]byte(assets.String), &rec.Assets); err != nil {
			return nil, fmt.Errorf("decoding assets: %w", err)
		}
	}

	return &rec, nil
}

func marshalAssets(assets map[string]por.Asset) (sql.NullString, error) {
	if len(assets) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(assets)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// Compile-time check that SQLiteStore implements por.Store
var _ por.Store = (*SQLiteStore)(nil)
