package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Client reads the daemon's tables directly. Commands are written to the
// same queue the daemon polls.
type Client struct {
	db  *sqlx.DB
	ctx context.Context
}

type SourceStats struct {
	Source        string
	LastRunAt     *time.Time
	LastRunStatus string
	Runs          int
	SuccessRate   float64
	AvgDuration   int
	LastProcessed int
	LastErrors    int
}

type Execution struct {
	ID               int64
	RunUUID          string
	Source           string
	StartedAt        time.Time
	FinishedAt       *time.Time
	Status           string
	Processed        int
	New              int
	Updated          int
	Unchanged        int
	ImagesDownloaded int
	ImagesDeleted    int
	ImageErrors      int
	Errors           int
	LogText          string
	Details          string
}

type Listing struct {
	ID           int64
	Ref          int64
	SyncCode     string
	Title        string
	City         string
	PropertyType string
	SalePrice    float64
	RentPrice    float64
	Bedrooms     int
	Bathrooms    int
	Area         float64
	Active       bool
	Featured     bool
	Hot          bool
	Images       int
	Overridden   bool
	Description  string
	UpdatedAt    time.Time
	LastSyncedAt *time.Time
}

type Change struct {
	Field     string
	OldValue  string
	NewValue  string
	ChangedAt time.Time
}

type Counts struct {
	Listings      int
	Active        int
	Overrides     int
	Images        int
	ImagesMissing int
	PendingCmds   int
}

// New opens the database. driver is one of sqlite or postgres, matching the
// daemon's DB_DRIVER.
func New(driver, dsn string) (*Client, error) {
	name := "sqlite"
	switch driver {
	case "", "sqlite":
	case "postgres":
		name = "pgx"
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	conn, err := sqlx.Open(name, dsn)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{db: conn, ctx: ctx}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) q(query string) string {
	return c.db.Rebind(query)
}

func (c *Client) GetSourceStats() ([]SourceStats, error) {
	rows, err := c.db.QueryContext(c.ctx, `
		SELECT source, COUNT(*),
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END)
		FROM sync_executions
		GROUP BY source
		ORDER BY source`)
	if err != nil {
		return nil, err
	}

	var stats []SourceStats
	for rows.Next() {
		var s SourceStats
		var completed int
		if err := rows.Scan(&s.Source, &s.Runs, &completed); err != nil {
			rows.Close()
			return nil, err
		}
		if s.Runs > 0 {
			s.SuccessRate = float64(completed) / float64(s.Runs)
		}
		stats = append(stats, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range stats {
		latest, err := c.latestExecution(stats[i].Source)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			stats[i].LastRunAt = &latest.StartedAt
			stats[i].LastRunStatus = latest.Status
			stats[i].LastProcessed = latest.Processed
			stats[i].LastErrors = latest.Errors
		}
		stats[i].AvgDuration, err = c.avgDuration(stats[i].Source)
		if err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func (c *Client) latestExecution(source string) (*Execution, error) {
	runs, err := c.queryExecutions(c.q(executionSelect+` WHERE source = ? ORDER BY started_at DESC, id DESC LIMIT 1`), source)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// avgDuration is computed client side because the timestamp arithmetic
// differs per database.
func (c *Client) avgDuration(source string) (int, error) {
	rows, err := c.db.QueryContext(c.ctx, c.q(`
		SELECT started_at, finished_at FROM sync_executions
		WHERE source = ? AND finished_at IS NOT NULL
		ORDER BY started_at DESC LIMIT 50`), source)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total time.Duration
	var n int
	for rows.Next() {
		var started, finished sql.NullString
		if err := rows.Scan(&started, &finished); err != nil {
			return 0, err
		}
		s, f := parseTime(started.String), parseTime(finished.String)
		if s.IsZero() || f.IsZero() {
			continue
		}
		total += f.Sub(s)
		n++
	}
	if n == 0 {
		return 0, rows.Err()
	}
	return int((total / time.Duration(n)).Seconds()), rows.Err()
}

const executionSelect = `
	SELECT id, run_uuid, source, started_at, finished_at, status,
		processed, new_count, updated_count, unchanged_count,
		images_downloaded, images_deleted, image_errors, errors,
		COALESCE(log_text, ''), COALESCE(details, '')
	FROM sync_executions`

func (c *Client) GetRecentExecutions(limit int, status string) ([]Execution, error) {
	if status != "" && status != "all" {
		return c.queryExecutions(c.q(executionSelect+` WHERE status = ? ORDER BY started_at DESC, id DESC LIMIT ?`), status, limit)
	}
	return c.queryExecutions(c.q(executionSelect+` ORDER BY started_at DESC, id DESC LIMIT ?`), limit)
}

func (c *Client) queryExecutions(query string, args ...any) ([]Execution, error) {
	rows, err := c.db.QueryContext(c.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Execution
	for rows.Next() {
		var r Execution
		var started, finished sql.NullString
		err := rows.Scan(&r.ID, &r.RunUUID, &r.Source, &started, &finished, &r.Status,
			&r.Processed, &r.New, &r.Updated, &r.Unchanged,
			&r.ImagesDownloaded, &r.ImagesDeleted, &r.ImageErrors, &r.Errors,
			&r.LogText, &r.Details)
		if err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started.String)
		r.FinishedAt = parseTimePtr(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (c *Client) GetListings(limit, offset int, activeOnly bool) ([]Listing, error) {
	query := `
		SELECT l.id, l.ref, l.sync_code, COALESCE(l.title, ''),
			COALESCE(ci.name, ''), COALESCE(pt.name, ''),
			l.sale_price, l.rent_price, l.bedrooms, l.bathrooms, l.area,
			l.active, l.featured, l.hot,
			(SELECT COUNT(*) FROM images i WHERE i.listing_id = l.id),
			(SELECT COUNT(*) FROM listing_overrides o WHERE o.ref = l.ref AND o.sync_code = l.sync_code),
			COALESCE(l.description, ''), l.updated_at, l.last_synced_at
		FROM listings l
		LEFT JOIN cities ci ON ci.id = l.city_id
		LEFT JOIN property_types pt ON pt.id = l.property_type_id`
	if activeOnly {
		query += ` WHERE l.active = TRUE`
	}
	query += ` ORDER BY l.updated_at DESC, l.id DESC LIMIT ? OFFSET ?`

	rows, err := c.db.QueryContext(c.ctx, c.q(query), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		var overrides int
		var updated, synced sql.NullString
		err := rows.Scan(&l.ID, &l.Ref, &l.SyncCode, &l.Title, &l.City, &l.PropertyType,
			&l.SalePrice, &l.RentPrice, &l.Bedrooms, &l.Bathrooms, &l.Area,
			&l.Active, &l.Featured, &l.Hot, &l.Images, &overrides,
			&l.Description, &updated, &synced)
		if err != nil {
			return nil, err
		}
		l.Overridden = overrides > 0
		l.UpdatedAt = parseTime(updated.String)
		l.LastSyncedAt = parseTimePtr(synced)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (c *Client) GetChanges(listingID int64, limit int) ([]Change, error) {
	rows, err := c.db.QueryContext(c.ctx, c.q(`
		SELECT field, COALESCE(old_value, ''), COALESCE(new_value, ''), changed_at
		FROM listing_changes
		WHERE listing_id = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT ?`), listingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []Change
	for rows.Next() {
		var ch Change
		var at sql.NullString
		if err := rows.Scan(&ch.Field, &ch.OldValue, &ch.NewValue, &at); err != nil {
			return nil, err
		}
		ch.ChangedAt = parseTime(at.String)
		changes = append(changes, ch)
	}
	return changes, rows.Err()
}

func (c *Client) GetCounts() (Counts, error) {
	var n Counts
	queries := []struct {
		dst   *int
		query string
	}{
		{&n.Listings, `SELECT COUNT(*) FROM listings`},
		{&n.Active, `SELECT COUNT(*) FROM listings WHERE active = TRUE`},
		{&n.Overrides, `SELECT COUNT(*) FROM listing_overrides`},
		{&n.Images, `SELECT COUNT(*) FROM images`},
		{&n.ImagesMissing, `SELECT COUNT(*) FROM images WHERE local_path IS NULL`},
		{&n.PendingCmds, `SELECT COUNT(*) FROM commands WHERE processed_at IS NULL`},
	}
	for _, q := range queries {
		if err := c.db.GetContext(c.ctx, q.dst, q.query); err != nil {
			return n, err
		}
	}
	return n, nil
}

// SendCommand queues a command for the daemon's command poller.
func (c *Client) SendCommand(command string, params map[string]any) error {
	encoded := "{}"
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		encoded = string(data)
	}
	_, err := c.db.ExecContext(c.ctx, c.q(`
		INSERT INTO commands (command, params, created_at)
		VALUES (?, ?, ?)`), command, encoded, time.Now().UTC())
	return err
}

func (c *Client) SyncNow() error {
	return c.SendCommand("sync_now", nil)
}

func (c *Client) SyncSource(source string) error {
	return c.SendCommand("sync_source", map[string]any{"source": source})
}

func (c *Client) Pause() error {
	return c.SendCommand("pause", nil)
}

func (c *Client) Resume() error {
	return c.SendCommand("resume", nil)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTime accepts the text forms the sqlite and postgres drivers produce.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
