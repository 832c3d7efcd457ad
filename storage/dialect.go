package storage

import (
	"fmt"
	"strings"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver: %s", name)
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectPostgres:
		return "pgx"
	}
	return "sqlite3"
}

// NormalizeDSN adds the connection options the store relies on when the
// caller did not set any.
func (d Dialect) NormalizeDSN(dsn string) string {
	switch d {
	case DialectSQLite:
		if dsn == "" {
			dsn = "propsync.db"
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
		}
	case DialectMySQL:
		if !strings.Contains(dsn, "parseTime") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "parseTime=true&charset=utf8mb4"
		}
	}
	return dsn
}

// insertIgnore builds an INSERT that silently skips rows violating the
// unique key on conflict.
func (d Dialect) insertIgnore(table string, cols []string, conflict string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	if d == DialectMySQL {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), placeholders)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO NOTHING",
		table, strings.Join(cols, ", "), placeholders, conflict)
}

// upsert builds an INSERT that updates the listed columns on conflict.
func (d Dialect) upsert(table string, cols []string, conflict string, update []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	base := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)

	sets := make([]string, len(update))
	for i, c := range update {
		if d == DialectMySQL {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		} else {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
	}

	if d == DialectMySQL {
		return base + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return base + fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET ", conflict) + strings.Join(sets, ", ")
}
