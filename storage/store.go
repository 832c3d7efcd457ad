package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Store is the relational store behind every sync component. A Store
// returned by WithTx is bound to that transaction and must not be used
// after the callback returns.
type Store struct {
	db      *sqlx.DB
	q       sqlx.ExtContext
	dialect Dialect
}

// Open connects to the database, verifies the connection and applies the
// schema. driver is one of sqlite, mysql or postgres.
func Open(ctx context.Context, driverName, dsn string) (*Store, error) {
	dialect, err := ParseDialect(driverName)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(dialect.DriverName(), dialect.NormalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	switch dialect {
	case DialectSQLite:
		// one writer; WAL lets readers through
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &Store{db: db, q: db, dialect: dialect}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Debug().Str("dialect", string(dialect)).Msg("database ready")
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction. The Store passed to fn issues every
// statement on the transaction; fn must not touch the outer Store or it
// will block on SQLite's single connection.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if _, nested := s.q.(*sqlx.Tx); nested {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warn().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	if err = fn(&Store{db: s.db, q: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.q.Rebind(query), args...)
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

// getOne wraps get and maps sql.ErrNoRows to found=false.
func (s *Store) getOne(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	err := s.get(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// insertID runs an INSERT and returns the generated id column.
func (s *Store) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect == DialectPostgres {
		var id int64
		if err := s.get(ctx, &id, query+" RETURNING id", args...); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// IsUnavailable reports whether err means the database itself is gone, as
// opposed to a problem with one statement's data.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pgConnErr *pgconn.ConnectError
	if errors.As(err, &pgConnErr) {
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrCorrupt,
			sqlite3.ErrNotADB, sqlite3.ErrFull, sqlite3.ErrReadonly:
			return true
		}
	}

	return strings.Contains(err.Error(), "database is closed")
}
