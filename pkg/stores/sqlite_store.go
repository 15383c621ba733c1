package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no ledger row matches.
var ErrNotFound = errors.New("not found")

// SQLiteStore is the history ledger backed by SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance. Call Init and Migrate
// before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Open creates, initializes and migrates the ledger at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if s.path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

const translationColumns = `id, source_path, source_sha256, output_sha256, output_path,
	status, error_count, warning_count, message, started_at, duration_ms`

// Record inserts one translation run.
func (s *SQLiteStore) Record(ctx context.Context, t *Translation) error {
	query := `INSERT INTO translations (` + translationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.SourcePath,
		t.SourceSHA256,
		t.OutputSHA256,
		t.OutputPath,
		string(t.Status),
		t.ErrorCount,
		t.WarningCount,
		t.Message,
		t.StartedAt.UnixNano(),
		t.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record translation: %w", err)
	}
	return nil
}

// Get retrieves a translation by run ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Translation, error) {
	query := `SELECT ` + translationColumns + ` FROM translations WHERE id = ?`

	t, err := scanTranslation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("translation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get translation: %w", err)
	}
	return t, nil
}

// List returns the most recent translations, newest first. A non-positive
// limit returns every row.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Translation, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + translationColumns + ` FROM translations
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}
	defer rows.Close()

	translations := []*Translation{}
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan translation: %w", err)
		}
		translations = append(translations, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating translations: %w", err)
	}
	return translations, nil
}

// LastSuccessful returns the newest successful translation of sourcePath.
func (s *SQLiteStore) LastSuccessful(ctx context.Context, sourcePath string) (*Translation, error) {
	query := `SELECT ` + translationColumns + ` FROM translations
		WHERE source_path = ? AND status = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1`

	t, err := scanTranslation(s.db.QueryRowContext(ctx, query, sourcePath, string(StatusSuccess)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no successful translation of %s: %w", sourcePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last translation: %w", err)
	}
	return t, nil
}

// Prune deletes all but the newest keep rows and returns how many were
// removed.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	query := `DELETE FROM translations WHERE id NOT IN (
		SELECT id FROM translations ORDER BY started_at DESC, rowid DESC LIMIT ?
	)`

	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune translations: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTranslation(row scanner) (*Translation, error) {
	var (
		t          Translation
		status     string
		startedAt  int64
		durationMS int64
	)
	err := row.Scan(
		&t.ID,
		&t.SourcePath,
		&t.SourceSHA256,
		&t.OutputSHA256,
		&t.OutputPath,
		&status,
		&t.ErrorCount,
		&t.WarningCount,
		&t.Message,
		&startedAt,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.StartedAt = time.Unix(0, startedAt).UTC()
	t.Duration = time.Duration(durationMS) * time.Millisecond
	return &t, nil
}
