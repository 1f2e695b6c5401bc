package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
	"certregistry/pkg/platform/sentinel"
	txcontext "certregistry/pkg/platform/tx"
)

var (
	//go:embed schema/postgres.sql
	postgresSchema string
	//go:embed schema/sqlite.sql
	sqliteSchema string
)

const certificateColumns = `identity, first_name, last_name, organization_name, issue_date,
	expiration_date, has_credentials, status, created_at, suspended_at`

type dialect struct {
	name          string
	schema        string
	insert        string
	find          string
	findForUpdate string
	update        string
}

var postgresDialect = dialect{
	name:   "postgres",
	schema: postgresSchema,
	insert: `INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (identity) DO NOTHING`,
	find:          `SELECT ` + certificateColumns + ` FROM certificates WHERE identity = $1`,
	findForUpdate: `SELECT ` + certificateColumns + ` FROM certificates WHERE identity = $1 FOR UPDATE`,
	update:        `UPDATE certificates SET status = $2, suspended_at = $3 WHERE identity = $1`,
}

// SQLite serializes writers and the store pins one connection, so the plain
// SELECT inside the transaction already holds the record.
var sqliteDialect = dialect{
	name:   "sqlite",
	schema: sqliteSchema,
	insert: `INSERT INTO certificates (` + certificateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity) DO NOTHING`,
	find:          `SELECT ` + certificateColumns + ` FROM certificates WHERE identity = ?`,
	findForUpdate: `SELECT ` + certificateColumns + ` FROM certificates WHERE identity = ?`,
	update:        `UPDATE certificates SET status = ?2, suspended_at = ?3 WHERE identity = ?1`,
}

// SQLStore persists certificates in a relational database. Postgres and
// SQLite share it and differ only in dialect. Calls join a transaction carried
// in the context (pkg/platform/tx).
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewPostgres wraps a lib/pq database.
func NewPostgres(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: postgresDialect}
}

// NewSQLite wraps a modernc.org/sqlite database. The pool is limited to one
// connection so writes never race for the file lock.
func NewSQLite(db *sql.DB) *SQLStore {
	db.SetMaxOpenConns(1)
	return &SQLStore{db: db, dialect: sqliteDialect}
}

// DB exposes the underlying pool for transaction runners.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables for the store's dialect if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLStore) CreateIfAbsent(ctx context.Context, cert *models.Certificate) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, s.dialect.insert,
		cert.Identity[:],
		cert.FirstName,
		cert.LastName,
		cert.OrganizationName,
		cert.IssueDate,
		cert.ExpirationDate,
		cert.HasCredentials,
		string(cert.Status),
		cert.CreatedAt.UnixMicro(),
		nullableMicros(cert.SuspendedAt),
	)
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert certificate rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *SQLStore) FindByIdentity(ctx context.Context, id identity.Identity) (*models.Certificate, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, s.dialect.find, id[:])
	return scanCertificate(row)
}

// Execute locks the row, runs validate then mutate, and writes the new
// status back, all inside one transaction.
func (s *SQLStore) Execute(ctx context.Context, id identity.Identity, validate func(*models.Certificate) error, mutate func(*models.Certificate)) (*models.Certificate, error) {
	var result *models.Certificate
	err := txcontext.Run(ctx, s.db, func(txCtx context.Context) error {
		exec := txcontext.Pick(txCtx, s.db)
		cert, err := scanCertificate(exec.QueryRowContext(txCtx, s.dialect.findForUpdate, id[:]))
		if err != nil {
			return err
		}
		if err := validate(cert); err != nil {
			return err
		}
		mutate(cert)

		if err := s.writeStatus(txCtx, exec, cert); err != nil {
			return err
		}
		result = cert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) writeStatus(ctx context.Context, exec txcontext.Execer, cert *models.Certificate) error {
	_, err := exec.ExecContext(ctx, s.dialect.update, cert.Identity[:], string(cert.Status), nullableMicros(cert.SuspendedAt))
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	var (
		rawID       []byte
		cert        models.Certificate
		status      string
		createdAt   int64
		suspendedAt sql.NullInt64
	)
	err := row.Scan(
		&rawID,
		&cert.FirstName,
		&cert.LastName,
		&cert.OrganizationName,
		&cert.IssueDate,
		&cert.ExpirationDate,
		&cert.HasCredentials,
		&status,
		&createdAt,
		&suspendedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan certificate: %w", err)
	}
	if len(rawID) != identity.Size {
		return nil, fmt.Errorf("scan certificate: identity has %d bytes", len(rawID))
	}
	copy(cert.Identity[:], rawID)

	if cert.Status, err = models.ParseStatus(status); err != nil {
		return nil, err
	}
	cert.CreatedAt = time.UnixMicro(createdAt).UTC()
	if suspendedAt.Valid {
		at := time.UnixMicro(suspendedAt.Int64).UTC()
		cert.SuspendedAt = &at
	}
	return &cert, nil
}

func nullableMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}
