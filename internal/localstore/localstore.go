// Package localstore persists each browser's platform session on disk so a
// portal restart does not sign everyone out. Sessions are sealed before they
// touch SQLite; the database never holds a usable token in the clear.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/library-portal/internal/platform"
)

// Store owns the SQLite handle and the sealing key.
type Store struct {
	db     *sql.DB
	sealer *sealer
	logger *slog.Logger
}

// Open connects to the local database and derives the sealing key from the
// configured secret. Call Migrate before handing out keepers.
func Open(dsn, secret string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// SQLite serializes writers; one connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local store: %w", err)
	}

	salt, err := loadOrCreateSalt(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	sealer, err := newSealer(secret, salt)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, sealer: sealer, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var migrations = []struct {
	version    int
	statements []string
}{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS platform_sessions (
				portal_token TEXT PRIMARY KEY,
				sealed BLOB NOT NULL,
				expires_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_platform_sessions_expires_at
				ON platform_sessions (expires_at)`,
		},
	},
}

// Migrate applies pending schema versions in order. Each version runs in its
// own transaction and is recorded in schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("initialize version table: %w", err)
	}

	var current sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if current.Valid && int64(m.version) <= current.Int64 {
			continue
		}
		if err := s.applyMigration(ctx, m.version, m.statements); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "local store migrated", "version", m.version)
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, version int, statements []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		version, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	return tx.Commit()
}

// Keeper returns the persistence slot for one portal token.
func (s *Store) Keeper(portalToken string) *Keeper {
	return &Keeper{store: s, token: portalToken}
}

// PruneExpired removes sessions whose refresh window has closed. It reports
// how many rows were dropped.
func (s *Store) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM platform_sessions WHERE expires_at < ?`,
		before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// Keeper reads and writes the sealed session row for one portal token.
type Keeper struct {
	store *Store
	token string
}

// Save seals the session and upserts its row.
func (k *Keeper) Save(ctx context.Context, sess platform.Session) error {
	plain, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	sealed := k.store.sealer.seal(plain)

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = k.store.db.ExecContext(ctx, `
		INSERT INTO platform_sessions (portal_token, sealed, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (portal_token) DO UPDATE SET
			sealed = excluded.sealed,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		k.token, sealed, sess.ExpiresAt.UTC().Format(time.RFC3339), now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the persisted session when one exists and still unseals with
// the current key. A row sealed under a rotated secret is dropped and
// reported as absent.
func (k *Keeper) Load(ctx context.Context) (platform.Session, bool, error) {
	var sealed []byte
	err := k.store.db.QueryRowContext(ctx,
		`SELECT sealed FROM platform_sessions WHERE portal_token = ?`,
		k.token).Scan(&sealed)
	if err == sql.ErrNoRows {
		return platform.Session{}, false, nil
	}
	if err != nil {
		return platform.Session{}, false, fmt.Errorf("load session: %w", err)
	}

	plain, err := k.store.sealer.open(sealed)
	if err != nil {
		k.store.logger.Warn("sealed session unreadable, dropping row", "error", err)
		if clearErr := k.Clear(ctx); clearErr != nil {
			return platform.Session{}, false, clearErr
		}
		return platform.Session{}, false, nil
	}

	var sess platform.Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return platform.Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return sess, true, nil
}

// Clear removes the row. Clearing an absent row is not an error.
func (k *Keeper) Clear(ctx context.Context) error {
	_, err := k.store.db.ExecContext(ctx,
		`DELETE FROM platform_sessions WHERE portal_token = ?`, k.token)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
