package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS cities (
	id {{pk}},
	name {{key}} NOT NULL UNIQUE,
	description {{text}}
);

CREATE TABLE IF NOT EXISTS neighborhoods (
	id {{pk}},
	name {{key}} NOT NULL UNIQUE,
	description {{text}}
);

CREATE TABLE IF NOT EXISTS property_types (
	id {{pk}},
	name {{key}} NOT NULL UNIQUE,
	description {{text}}
);

CREATE TABLE IF NOT EXISTS property_uses (
	id {{pk}},
	name {{key}} NOT NULL UNIQUE,
	description {{text}}
);

CREATE TABLE IF NOT EXISTS property_statuses (
	id {{pk}},
	name {{key}} NOT NULL UNIQUE,
	description {{text}}
);

CREATE TABLE IF NOT EXISTS listings (
	id {{pk}},
	ref {{bigint}} NOT NULL UNIQUE,
	sync_code {{key}} NOT NULL DEFAULT '',
	slug {{key}} NOT NULL DEFAULT '',
	city_id {{bigint}} NOT NULL,
	neighborhood_id {{bigint}} NOT NULL,
	property_type_id {{bigint}} NOT NULL,
	use_id {{bigint}} NOT NULL,
	status_id {{bigint}} NOT NULL,
	area {{real}} NOT NULL DEFAULT 0,
	area_built {{real}} NOT NULL DEFAULT 0,
	area_private {{real}} NOT NULL DEFAULT 0,
	area_lot {{real}} NOT NULL DEFAULT 0,
	bedrooms INTEGER NOT NULL DEFAULT 0,
	bathrooms INTEGER NOT NULL DEFAULT 0,
	garages INTEGER NOT NULL DEFAULT 0,
	stratum INTEGER NOT NULL DEFAULT 0,
	sale_price {{real}} NOT NULL DEFAULT 0,
	rent_price {{real}} NOT NULL DEFAULT 0,
	admin_fee {{real}} NOT NULL DEFAULT 0,
	title {{text}},
	description {{text}},
	short_description {{text}},
	address {{text}},
	latitude {{key}},
	longitude {{key}},
	active {{bool}} NOT NULL DEFAULT TRUE,
	featured {{bool}} NOT NULL DEFAULT FALSE,
	hot {{bool}} NOT NULL DEFAULT FALSE,
	data_hash {{key}} NOT NULL DEFAULT '',
	raw_extra {{text}},
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL,
	last_synced_at {{ts}}
);

CREATE TABLE IF NOT EXISTS images (
	id {{pk}},
	listing_id {{bigint}} NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	original_url {{url}} NOT NULL,
	local_path {{key}},
	content_hash {{key}},
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	size_bytes {{bigint}} NOT NULL DEFAULT 0,
	is_primary {{bool}} NOT NULL DEFAULT FALSE,
	ordinal INTEGER NOT NULL DEFAULT 0,
	created_at {{ts}} NOT NULL,
	updated_at {{ts}} NOT NULL,
	UNIQUE (listing_id, original_url)
);

CREATE TABLE IF NOT EXISTS characteristics (
	id {{pk}},
	name {{key}} NOT NULL UNIQUE,
	type {{key}} NOT NULL DEFAULT 'text',
	unit {{key}}
);

CREATE TABLE IF NOT EXISTS listing_characteristics (
	listing_id {{bigint}} NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	characteristic_id {{bigint}} NOT NULL REFERENCES characteristics(id),
	value_text {{text}},
	value_number {{real}},
	value_bool {{bool}},
	PRIMARY KEY (listing_id, characteristic_id)
);

CREATE TABLE IF NOT EXISTS listing_overrides (
	ref {{bigint}} NOT NULL,
	sync_code {{key}} NOT NULL DEFAULT '',
	active {{bool}} NOT NULL,
	featured {{bool}} NOT NULL,
	hot {{bool}} NOT NULL,
	updated_at {{ts}} NOT NULL,
	PRIMARY KEY (ref, sync_code)
);

CREATE TABLE IF NOT EXISTS listing_changes (
	id {{pk}},
	listing_id {{bigint}} NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	field {{key}} NOT NULL,
	old_value {{text}},
	new_value {{text}},
	changed_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_executions (
	id {{pk}},
	run_uuid {{key}} NOT NULL,
	source {{key}} NOT NULL DEFAULT '',
	started_at {{ts}} NOT NULL,
	finished_at {{ts}},
	status {{key}} NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	new_count INTEGER NOT NULL DEFAULT 0,
	updated_count INTEGER NOT NULL DEFAULT 0,
	unchanged_count INTEGER NOT NULL DEFAULT 0,
	images_downloaded INTEGER NOT NULL DEFAULT 0,
	images_deleted INTEGER NOT NULL DEFAULT 0,
	image_errors INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	log_text {{text}},
	details {{text}}
);

CREATE TABLE IF NOT EXISTS commands (
	id {{pk}},
	command {{key}} NOT NULL,
	params {{text}},
	created_at {{ts}} NOT NULL,
	processed_at {{ts}}
);
`

var schemaIndexes = []struct{ name, table, cols string }{
	{"idx_listings_active", "listings", "active"},
	{"idx_images_listing", "images", "listing_id, ordinal"},
	{"idx_changes_listing", "listing_changes", "listing_id, changed_at"},
	{"idx_executions_status", "sync_executions", "status, started_at"},
	{"idx_commands_pending", "commands", "processed_at"},
}

func (d Dialect) columnTypes() *strings.Replacer {
	switch d {
	case DialectMySQL:
		return strings.NewReplacer(
			"{{pk}}", "BIGINT AUTO_INCREMENT PRIMARY KEY",
			"{{key}}", "VARCHAR(191)",
			"{{url}}", "VARCHAR(700)",
			"{{text}}", "LONGTEXT",
			"{{bool}}", "BOOLEAN",
			"{{ts}}", "DATETIME(6)",
			"{{real}}", "DOUBLE",
			"{{bigint}}", "BIGINT",
		)
	case DialectPostgres:
		return strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{key}}", "TEXT",
			"{{url}}", "TEXT",
			"{{text}}", "TEXT",
			"{{bool}}", "BOOLEAN",
			"{{ts}}", "TIMESTAMPTZ",
			"{{real}}", "DOUBLE PRECISION",
			"{{bigint}}", "BIGINT",
		)
	}
	return strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{key}}", "TEXT",
		"{{url}}", "TEXT",
		"{{text}}", "TEXT",
		"{{bool}}", "BOOLEAN",
		"{{ts}}", "DATETIME",
		"{{real}}", "REAL",
		"{{bigint}}", "INTEGER",
	)
}

// Schema renders the DDL statements for the dialect.
func (d Dialect) Schema() []string {
	ddl := d.columnTypes().Replace(schemaTemplate)
	if d == DialectMySQL {
		ddl = strings.ReplaceAll(ddl, "\n);", "\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;")
	}

	var stmts []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}

	for _, idx := range schemaIndexes {
		if d == DialectMySQL {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s(%s)", idx.name, idx.table, idx.cols))
		} else {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx.name, idx.table, idx.cols))
		}
	}
	return stmts
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// MySQL has no CREATE INDEX IF NOT EXISTS.
func isDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1061
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
