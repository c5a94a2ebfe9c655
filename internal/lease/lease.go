// Package lease serializes creates on the same logical key. The spreadsheet has
// no conditional write, so the lookup and the append of a create-if-absent are
// wrapped in a short-lived lease held in a local SQLite database.
package lease

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"github.com/digitaldrywood/opsboard/internal/apperr"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Locker grants exclusive access to a key until release is called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Nop never blocks. Concurrent creates on one key can both pass the lookup.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

var errHeld = errors.New("lease held")

type SQLite struct {
	conn *sql.DB
	ttl  time.Duration
	wait time.Duration
	poll time.Duration
	now  func() time.Time
}

// Options tune lease timing. Zero values fall back to defaults.
type Options struct {
	// TTL bounds how long a crashed holder can block a key.
	TTL time.Duration
	// Wait is the longest Acquire waits for a held key.
	Wait time.Duration
}

func Open(path string, opts Options) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lease directory: %w", err)
	}

	conn, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open lease database: %w", err)
	}

	l := &SQLite{
		conn: conn,
		ttl:  opts.TTL,
		wait: opts.Wait,
		poll: 50 * time.Millisecond,
		now:  time.Now,
	}
	if l.ttl <= 0 {
		l.ttl = 15 * time.Second
	}
	if l.wait <= 0 {
		l.wait = 3 * time.Second
	}

	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return l, nil
}

func (l *SQLite) migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(l.conn, "migrations"); err != nil {
		return err
	}
	return nil
}

func (l *SQLite) Close() error {
	return l.conn.Close()
}

// Acquire takes the lease on key, waiting up to the configured budget while
// another holder has an unexpired lease. It fails with a conflict when the
// budget runs out. Every acquisition gets its own owner token, so a holder
// whose lease expired cannot release the lease taken over from it.
func (l *SQLite) Acquire(ctx context.Context, key string) (func(), error) {
	backoff := retry.WithMaxDuration(l.wait, retry.NewConstant(l.poll))
	token := uuid.NewString()

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := l.tryAcquire(ctx, key, token)
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errHeld)
		}
		return nil
	})
	if errors.Is(err, errHeld) {
		return nil, apperr.Conflict("record %s is being written, try again", key)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}

	return func() { l.release(key, token) }, nil
}

func (l *SQLite) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	now := l.now()
	result, err := l.conn.ExecContext(ctx, `
		INSERT INTO leases (key, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE leases.expires_at <= ?
	`, key, token, now.Add(l.ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *SQLite) release(key, token string) {
	// The request context may already be done; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.conn.ExecContext(ctx, `DELETE FROM leases WHERE key = ? AND owner = ?`, key, token)
}
