package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	xerrors "SeiFlow/internal/errors"
)

const sqliteSchemaVersion = 1

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS lookups (
		name       TEXT PRIMARY KEY,
		body       BLOB NOT NULL,
		expires_ms INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS lookups_expiry ON lookups (expires_ms) WHERE expires_ms > 0`,
}

// SQLite keeps lookups in a file shared by every CLI invocation on the host.
// expires_ms is an absolute unix time in milliseconds; 0 never expires.
type SQLite struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// OpenSQLite opens the lookup database at path, creating it when missing.
// lockPath serialises writers across processes.
func OpenSQLite(path, lockPath string) (*SQLite, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "prepare sqlite cache directory")
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open sqlite cache")
	}
	s := &SQLite{db: db, lock: flock.New(lockPath), now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	_ = s.Prune(context.Background())
	return s, nil
}

func (s *SQLite) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "read sqlite cache version")
	}
	if version >= sqliteSchemaVersion {
		return nil
	}
	for _, stmt := range sqliteSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "migrate sqlite cache")
		}
	}
	if _, err := s.db.Exec("PRAGMA user_version = 1"); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "stamp sqlite cache version")
	}
	return nil
}

func (s *SQLite) nowMillis() int64 {
	return s.now().UnixMilli()
}

// Prune removes expired lookups. OpenSQLite calls it once.
func (s *SQLite) Prune(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM lookups WHERE expires_ms > 0 AND expires_ms <= ?", s.nowMillis())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "prune sqlite cache")
	}
	return nil
}

// Get implements Cache.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM lookups WHERE name = ? AND (expires_ms = 0 OR expires_ms > ?)",
		key, s.nowMillis(),
	).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read sqlite cache",
			xerrors.WithMetadata("key", key))
	}
	return body, true, nil
}

// Set implements Cache. A non-positive ttl keeps the lookup until it is overwritten.
func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ok, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "lock sqlite cache")
	}
	if !ok {
		return xerrors.New(xerrors.CodeStorageFailure, "lock sqlite cache: held by another process")
	}
	defer func() { _ = s.lock.Unlock() }()

	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).UnixMilli()
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO lookups (name, body, expires_ms) VALUES (?, ?, ?)",
		key, value, expires,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write sqlite cache",
			xerrors.WithMetadata("key", key))
	}
	return nil
}

// Close implements Cache.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
