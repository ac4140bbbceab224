// Package sqlstore implements store.Store on database/sql for SQLite
// (mattn/go-sqlite3) and PostgreSQL (pgx). Queries are written once with '?'
// placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"ticketchain-backend/logging"
	"ticketchain-backend/store"
	"ticketchain-backend/store/sqlstore/migrations"
)

// DBTX is the subset of database/sql used by queries. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures the differences between the supported engines.
type Dialect struct {
	Name          string
	gooseDialect  string
	migrations    fs.FS
	migrationsDir string
	numbered      bool
	// seq orders rows that share a timestamp by insertion.
	seq string
}

var (
	SQLite = Dialect{
		Name:          "sqlite",
		gooseDialect:  "sqlite3",
		migrations:    migrations.SQLite,
		migrationsDir: "sqlite",
		seq:           "rowid",
	}
	Postgres = Dialect{
		Name:          "postgres",
		gooseDialect:  "pgx",
		migrations:    migrations.Postgres,
		migrationsDir: "postgres",
		numbered:      true,
		seq:           "seq",
	}
)

// rebind turns '?' placeholders into $1..$n for dialects that need it.
func (d Dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	log     logging.Logger
	closeFn func()
}

var _ store.Store = (*Store)(nil)

// New wraps an open database. The schema is not touched; call Migrate.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, log: logging.Nop()}
}

// OpenSQLite opens the database file at path (or ":memory:") and migrates it.
// The pool is limited to one connection so SQLite sees a single writer.
func OpenSQLite(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := New(db, SQLite)
	s.log = log
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects a pgx pool, exposes it through database/sql and
// migrates the schema.
func OpenPostgres(ctx context.Context, databaseURL string, log logging.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	s := New(db, Postgres)
	s.log = log
	s.closeFn = pool.Close
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// gooseLogger sends goose's progress lines to the application logger.
type gooseLogger struct {
	log logging.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	g.log.Error(context.Background(), msg, "component", "migrate")
	panic(msg)
}

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

func (s *Store) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(gooseLogger{log: s.log})
	goose.SetBaseFS(s.dialect.migrations)
	if err := goose.SetDialect(s.dialect.gooseDialect); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, s.db, s.dialect.migrationsDir); err != nil {
		return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
	}
	return nil
}

// WithTx begins a transaction, runs fn, and commits on success or rolls back
// on error or panic. Panics are rethrown.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("db error: %w", cerr)
		}
	}()

	err = fn(ctx, &sqlTx{q: tx, d: s.dialect})
	return err
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return fn(ctx, &sqlTx{q: s.db, d: s.dialect})
}

func (s *Store) Close() error {
	err := s.db.Close()
	if s.closeFn != nil {
		s.closeFn()
	}
	return err
}

func dbError(err error) error {
	return fmt.Errorf("db error: %w", err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
