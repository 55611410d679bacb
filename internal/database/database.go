package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/flowpbx/switchyard/internal/database/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by mutations that target a row that does not exist.
var ErrNotFound = errors.New("not found")

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps a sqlx connection with migrations and change notification.
type DB struct {
	*sqlx.DB

	mu       sync.RWMutex
	notifier ChangeNotifier
	now      func() time.Time
}

// Open connects to the database, verifies the connection and runs any pending
// migrations. For the sqlite driver dsn is a file path; WAL mode and foreign
// keys are enabled on it.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", dsn)
	case "pgx":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// SQLite performs best with a single writer connection.
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	}

	db := &DB{DB: sqlDB, now: func() time.Time { return time.Now().UTC() }}

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("database opened", "driver", driver)
	return db, nil
}

// migrate runs all pending SQL migration files in order.
func (db *DB) migrate() error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		if err := db.Get(&count, db.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version); err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec(db.Rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"), version, db.now()); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied migration", "version", version)
	}

	return nil
}

// SetNotifier installs the receiver of change notices. Mutations committed
// before a notifier is installed are not announced.
func (db *DB) SetNotifier(n ChangeNotifier) {
	db.mu.Lock()
	db.notifier = n
	db.mu.Unlock()
}

// notify hands committed changes to the installed notifier.
func (db *DB) notify(ctx context.Context, changes ...Change) {
	db.mu.RLock()
	n := db.notifier
	db.mu.RUnlock()
	if n == nil {
		return
	}
	for _, c := range changes {
		n.Notify(ctx, c)
	}
}

// get runs a single-row query. found is false when no row matched.
func (db *DB) get(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) (bool, error) {
	err := sqlx.GetContext(ctx, q, dest, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// list runs a multi-row query into a slice.
func (db *DB) list(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, db.Rebind(query), args...)
}

// exec runs a statement with positional arguments.
func (db *DB) exec(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) (sql.Result, error) {
	return e.ExecContext(ctx, db.Rebind(query), args...)
}

// withTx runs fn inside a transaction, committing on success.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type actorKey struct{}

// WithActor records who is performing writes made with ctx. The value lands
// in each written row's updated_by column.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return "system"
}

// stamp assigns an ID if missing and fills the audit columns.
func (db *DB) stamp(ctx context.Context, id *string, m *models.Meta) {
	if *id == "" {
		*id = uuid.NewString()
	}
	now := db.now()
	if m.Created.IsZero() {
		m.Created = now
	}
	m.Updated = now
	m.UpdatedBy = actorFrom(ctx)
}

// pinHost stores a blank hostname as NULL, which matches every switch.
func pinHost(h **string) {
	if *h != nil && strings.TrimSpace(**h) == "" {
		*h = nil
	}
}

// checkAffected maps a zero-row mutation to ErrNotFound.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
