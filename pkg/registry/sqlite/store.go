package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/mosip/esignet-binding/pkg/registry"
)

// Store implements registry.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

// Open opens (or creates) the registry database at dsn and applies pending
// migrations. Use ":memory:" for an ephemeral store in tests.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite handles one writer; a single connection avoids SQLITE_BUSY
	// under concurrent binds and keeps transactions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// entryColumns is the SELECT column list shared by all entry queries.
const entryColumns = `id_hash, auth_factor, psu_token, public_key, public_key_hash,
			certificate, wallet_binding_id, thumbprint, created_at, expires_at`

// Bind persists a key binding as one transaction: duplicate gate, rotation
// lookup, then upsert keyed by (id_hash, auth_factor).
func (s *Store) Bind(ctx context.Context, entry registry.Entry, candidateBindingID string) (registry.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return registry.Entry{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	// Duplicate gate: claim the public key hash for this psu-token before
	// any registry write. The claims table's primary key turns the check
	// into an atomic insert, so concurrent cross-identity binds of the
	// same key cannot both pass.
	if err := claimPublicKey(ctx, tx, entry.PublicKeyHash, entry.PsuToken); err != nil {
		return registry.Entry{}, err
	}

	// Rotation: an existing (psu_token, auth_factor) entry keeps its
	// wallet binding id; only the key material changes.
	var walletBindingID string
	err = tx.QueryRowContext(ctx,
		`SELECT wallet_binding_id FROM public_key_registry
		 WHERE psu_token = ? AND auth_factor = ?
		 ORDER BY expires_at DESC LIMIT 1`,
		entry.PsuToken, entry.AuthFactor,
	).Scan(&walletBindingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		walletBindingID = candidateBindingID
	case err != nil:
		return registry.Entry{}, fmt.Errorf("looking up existing binding: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE public_key_registry
			 SET public_key = ?, public_key_hash = ?, certificate = ?,
			     thumbprint = ?, expires_at = ?
			 WHERE psu_token = ? AND auth_factor = ?`,
			entry.PublicKey, entry.PublicKeyHash, entry.Certificate,
			entry.Thumbprint, formatTime(entry.ExpiresAt),
			entry.PsuToken, entry.AuthFactor,
		); err != nil {
			return registry.Entry{}, fmt.Errorf("rotating public key: %w", err)
		}
	}
	entry.WalletBindingID = walletBindingID

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO public_key_registry (
			id_hash, auth_factor, psu_token, public_key, public_key_hash,
			certificate, wallet_binding_id, thumbprint, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id_hash, auth_factor) DO UPDATE SET
			psu_token = excluded.psu_token,
			public_key = excluded.public_key,
			public_key_hash = excluded.public_key_hash,
			certificate = excluded.certificate,
			wallet_binding_id = excluded.wallet_binding_id,
			thumbprint = excluded.thumbprint,
			expires_at = excluded.expires_at`,
		entry.IDHash, entry.AuthFactor, entry.PsuToken, entry.PublicKey,
		entry.PublicKeyHash, entry.Certificate, entry.WalletBindingID,
		entry.Thumbprint, formatTime(entry.CreatedAt), formatTime(entry.ExpiresAt),
	); err != nil {
		return registry.Entry{}, fmt.Errorf("upserting registry entry: %w", err)
	}

	// Release claims on keys this psu-token no longer holds (rotated-out
	// key material).
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM key_claims
		 WHERE psu_token = ?
		   AND public_key_hash NOT IN (
			SELECT public_key_hash FROM public_key_registry WHERE psu_token = ?
		 )`,
		entry.PsuToken, entry.PsuToken,
	); err != nil {
		return registry.Entry{}, fmt.Errorf("releasing stale key claims: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return registry.Entry{}, fmt.Errorf("committing transaction: %w", err)
	}

	return entry, nil
}

// claimPublicKey records public_key_hash as owned by psuToken, failing with
// registry.ErrDuplicateKey when another psu-token already holds it.
func claimPublicKey(ctx context.Context, tx *sql.Tx, publicKeyHash, psuToken string) error {
	var owner string
	err := tx.QueryRowContext(ctx,
		`SELECT psu_token FROM key_claims WHERE public_key_hash = ?`,
		publicKeyHash,
	).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO key_claims (public_key_hash, psu_token) VALUES (?, ?)`,
			publicKeyHash, psuToken,
		); err != nil {
			if isUniqueViolation(err) {
				return registry.ErrDuplicateKey
			}
			return fmt.Errorf("claiming public key: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("checking public key claim: %w", err)
	case owner != psuToken:
		return registry.ErrDuplicateKey
	default:
		return nil
	}
}

// FindActiveByIDHash returns all unexpired entries for the identity hash
// whose auth factor is in authFactors.
func (s *Store) FindActiveByIDHash(ctx context.Context, idHash string, authFactors []string, now time.Time) ([]registry.Entry, error) {
	if len(authFactors) == 0 {
		return nil, nil
	}

	query := `SELECT ` + entryColumns + `
		FROM public_key_registry
		WHERE id_hash = ? AND expires_at > ? AND auth_factor IN (`
	args := []any{idHash, formatTime(now)}
	for i, factor := range authFactors {
		if i > 0 {
			query += `, `
		}
		query += `?`
		args = append(args, factor)
	}
	query += `) ORDER BY auth_factor`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying registry entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []registry.Entry
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registry rows: %w", err)
	}

	return entries, nil
}

// FindLatestByPsuTokenAndAuthFactor returns the most recent entry for the
// pair, or registry.ErrNotFound.
func (s *Store) FindLatestByPsuTokenAndAuthFactor(ctx context.Context, psuToken, authFactor string) (registry.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+`
		 FROM public_key_registry
		 WHERE psu_token = ? AND auth_factor = ?
		 ORDER BY expires_at DESC LIMIT 1`,
		psuToken, authFactor,
	)
	return scanEntry(row)
}

// GetPublicKey returns the serialized public key for the psu-token and
// thumbprint pair.
func (s *Store) GetPublicKey(ctx context.Context, psuToken, thumbprint string) (string, error) {
	var publicKey string
	err := s.db.QueryRowContext(ctx,
		`SELECT public_key FROM public_key_registry
		 WHERE psu_token = ? AND thumbprint = ?
		 ORDER BY expires_at DESC LIMIT 1`,
		psuToken, thumbprint,
	).Scan(&publicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", registry.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying public key: %w", err)
	}
	return publicKey, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

func scanEntry(sc scanner) (registry.Entry, error) {
	var (
		entry        registry.Entry
		createdAtStr string
		expiresAtStr string
	)

	err := sc.Scan(
		&entry.IDHash, &entry.AuthFactor, &entry.PsuToken, &entry.PublicKey,
		&entry.PublicKeyHash, &entry.Certificate, &entry.WalletBindingID,
		&entry.Thumbprint, &createdAtStr, &expiresAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.Entry{}, registry.ErrNotFound
		}
		return registry.Entry{}, fmt.Errorf("scanning registry row: %w", err)
	}

	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return registry.Entry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if entry.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAtStr); err != nil {
		return registry.Entry{}, fmt.Errorf("parsing expires_at: %w", err)
	}

	return entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
