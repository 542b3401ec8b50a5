package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tiagojmoraes/projeto-duimp/internal/schema"
)

var (
	// ErrTableNotFound is returned when a table does not exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrUnknownColumn is returned when a column is not part of a table.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrEmptyName is returned for an empty table or database name.
	ErrEmptyName = errors.New("name cannot be empty")
)

const tableCacheSize = 128

// ConstraintColumn returns the column named by a SQLite constraint
// failure ("NOT NULL constraint failed: table.column"), or "" when err is
// not one or names no column.
func ConstraintColumn(err error) string {
	var serr sqlite3.Error
	if !errors.As(err, &serr) || serr.Code != sqlite3.ErrConstraint {
		return ""
	}
	_, target, ok := strings.Cut(serr.Error(), "constraint failed: ")
	if !ok {
		return ""
	}
	target, _, _ = strings.Cut(target, ",")
	_, column, ok := strings.Cut(strings.TrimSpace(target), ".")
	if !ok {
		return ""
	}
	return column
}

// Store owns the SQLite database holding the flattened tables.
type Store struct {
	db     *sql.DB
	tables *lru.Cache[string, []schema.Column]
	logger *zap.Logger
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path: %w", ErrEmptyName)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; batches run sequentially.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, logger), nil
}

// New wraps an already opened database handle.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, []schema.Column](tableCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Store{
		db:     db,
		tables: cache,
		logger: logger.Named("storage"),
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// =============================================================================
// TABLE LIFECYCLE
// =============================================================================

// CreateTable creates a table with the given columns and returns a handle
// bound to the columns the table actually has.
//
// With replace set, an existing table of the same name is dropped first.
// Otherwise an existing table is kept as is and its own column set wins:
// fields of later inserts that the table does not know are dropped.
func (s *Store) CreateTable(ctx context.Context, name string, cols []schema.Column, replace bool) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table: %w", ErrEmptyName)
	}
	if err := schema.CheckUnique(cols); err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}

	if replace {
		if err := s.DropTable(ctx, name); err != nil {
			return nil, err
		}
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c.Definition()
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", schema.QuoteIdent(name), strings.Join(defs, ",\n  "))

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}

	s.tables.Remove(name)
	t, err := s.OpenTable(ctx, name)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("table ready",
		zap.String("table", name),
		zap.Int("columns", len(t.cols)),
		zap.Bool("replaced", replace),
	)
	return t, nil
}

// DropTable removes a table if it exists.
func (s *Store) DropTable(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema.QuoteIdent(name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	s.tables.Remove(name)
	return nil
}

// OpenTable returns a handle to an existing table.
func (s *Store) OpenTable(ctx context.Context, name string) (*Table, error) {
	if cols, ok := s.tables.Get(name); ok {
		return newTable(s, name, cols), nil
	}

	cols, err := s.introspect(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}

	s.tables.Add(name, cols)
	return newTable(s, name, cols), nil
}

// TableExists reports whether a table exists.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	return n > 0, nil
}

// introspect reads the column layout of a table from PRAGMA table_info.
func (s *Store) introspect(ctx context.Context, name string) ([]schema.Column, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", schema.QuoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []schema.Column
	for rows.Next() {
		var (
			cid      int
			colName  string
			colType  string
			notNull  int
			defValue sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}

		c := schema.Column{Name: colName, SQLType: colType}
		var constraint []string
		if pk > 0 {
			constraint = append(constraint, "PRIMARY KEY")
		}
		if defValue.Valid {
			constraint = append(constraint, "DEFAULT "+defValue.String)
		}
		c.Constraint = strings.Join(constraint, " ")
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	return cols, nil
}
