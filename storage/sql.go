package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/form-intake-backend/interfaces"
)

// sqliteTimeLayout is fixed-width so that text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dialect captures the differences between the supported SQL databases.
type dialect struct {
	name       string
	numbered   bool // $1, $2... instead of ?
	schema     []string
	encodeTime func(t time.Time) any
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			endpoint_name VARCHAR(255) NOT NULL,
			data JSON NOT NULL,
			browser_info JSON NOT NULL,
			ip_address VARCHAR(45) NOT NULL DEFAULT 'Unknown',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_endpoint_created ON submissions(endpoint_name, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at)`,
		`CREATE TABLE IF NOT EXISTS endpoint_views (
			endpoint_name VARCHAR(255) NOT NULL,
			username TEXT NOT NULL,
			last_viewed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (endpoint_name, username)
		)`,
	},
	encodeTime: func(t time.Time) any { return t.UTC() },
}

var sqliteDialect = dialect{
	name:     "sqlite",
	numbered: false,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			endpoint_name TEXT NOT NULL,
			data TEXT NOT NULL,
			browser_info TEXT NOT NULL,
			ip_address TEXT NOT NULL DEFAULT 'Unknown',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_endpoint_created ON submissions(endpoint_name, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(created_at)`,
		`CREATE TABLE IF NOT EXISTS endpoint_views (
			endpoint_name TEXT NOT NULL,
			username TEXT NOT NULL,
			last_viewed_at TEXT NOT NULL,
			PRIMARY KEY (endpoint_name, username)
		)`,
	},
	encodeTime: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
}

// rebind converts ? placeholders to the dialect's style.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const submissionColumns = "id, endpoint_name, data, browser_info, ip_address, created_at"

// SQLStore implements interfaces.Store on top of database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
	log     *slog.Logger
}

func newSQLStore(db *sql.DB, d dialect, log *slog.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: d,
		now:     time.Now,
		log:     log,
	}
}

// WithClock replaces the clock used to assign creation times.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

// InitSchema ensures the tables and indexes exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

// CreateSubmission inserts a row, assigning a uuid and the current time.
func (s *SQLStore) CreateSubmission(ctx context.Context, sub *interfaces.NewSubmission) (*interfaces.Submission, error) {
	browserInfo, err := json.Marshal(sub.BrowserInfo)
	if err != nil {
		return nil, fmt.Errorf("encode browser info: %w", err)
	}

	stored := &interfaces.Submission{
		ID:           uuid.NewString(),
		EndpointName: sub.EndpointName,
		Data:         append(json.RawMessage(nil), sub.Data...),
		BrowserInfo:  sub.BrowserInfo,
		IPAddress:    sub.IPAddress,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}

	_, err = s.db.ExecContext(ctx,
		s.dialect.rebind(`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		stored.ID,
		stored.EndpointName,
		string(stored.Data),
		string(browserInfo),
		stored.IPAddress,
		s.dialect.encodeTime(stored.CreatedAt),
	)
	if err != nil {
		return nil, interfaces.StorageError("insert submission", err)
	}

	s.log.Debug("Stored submission", slog.String("id", stored.ID), slog.String("endpoint", stored.EndpointName))
	return stored, nil
}

// GetSubmission fetches one row by id.
func (s *SQLStore) GetSubmission(ctx context.Context, id string) (*interfaces.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`), id)

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, interfaces.StorageError("get submission", err)
	}
	return sub, nil
}

// DeleteSubmission removes one row by id.
func (s *SQLStore) DeleteSubmission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM submissions WHERE id = ?`), id)
	if err != nil {
		return interfaces.StorageError("delete submission", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return interfaces.StorageError("delete submission", err)
	}
	if affected == 0 {
		return interfaces.ErrSubmissionNotFound
	}
	return nil
}

// ListSubmissions pages through submissions newest first.
// Searches are evaluated on decoded rows so that only values, not keys, match.
func (s *SQLStore) ListSubmissions(ctx context.Context, query interfaces.SubmissionQuery) ([]interfaces.Submission, int, error) {
	query = query.Normalize()

	where := ""
	var args []any
	if query.Endpoint != "" {
		where = ` WHERE endpoint_name = ?`
		args = append(args, query.Endpoint)
	}

	if query.Search != "" {
		all, err := s.querySubmissions(ctx,
			`SELECT `+submissionColumns+` FROM submissions`+where+` ORDER BY created_at DESC, id DESC`, args...)
		if err != nil {
			return nil, 0, interfaces.StorageError("list submissions", err)
		}
		matched := make([]interfaces.Submission, 0, len(all))
		for i := range all {
			if query.Matches(&all[i]) {
				matched = append(matched, all[i])
			}
		}
		return paginate(matched, query), len(matched), nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM submissions`+where), args...).Scan(&total); err != nil {
		return nil, 0, interfaces.StorageError("count submissions", err)
	}

	page, err := s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, query.Limit, query.Offset)...)
	if err != nil {
		return nil, 0, interfaces.StorageError("list submissions", err)
	}
	return page, total, nil
}

// SubmissionsSince returns rows created at or after since, oldest first.
func (s *SQLStore) SubmissionsSince(ctx context.Context, since time.Time) ([]interfaces.Submission, error) {
	subs, err := s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE created_at >= ? ORDER BY created_at ASC, id ASC`,
		s.dialect.encodeTime(since))
	if err != nil {
		return nil, interfaces.StorageError("submissions since", err)
	}
	return subs, nil
}

// EndpointStats groups rows by endpoint name.
func (s *SQLStore) EndpointStats(ctx context.Context) ([]interfaces.EndpointStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint_name, COUNT(*), MAX(created_at) FROM submissions GROUP BY endpoint_name ORDER BY endpoint_name`)
	if err != nil {
		return nil, interfaces.StorageError("endpoint stats", err)
	}
	defer rows.Close()

	stats := []interfaces.EndpointStat{}
	for rows.Next() {
		var stat interfaces.EndpointStat
		var latest dbTime
		if err := rows.Scan(&stat.EndpointName, &stat.Count, &latest); err != nil {
			return nil, interfaces.StorageError("scan endpoint stats", err)
		}
		stat.LatestSubmissionAt = latest.Time
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, interfaces.StorageError("endpoint stats", err)
	}
	return stats, nil
}

// EndpointViews returns the operator's last-viewed markers.
func (s *SQLStore) EndpointViews(ctx context.Context, username string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT endpoint_name, last_viewed_at FROM endpoint_views WHERE username = ?`), username)
	if err != nil {
		return nil, interfaces.StorageError("endpoint views", err)
	}
	defer rows.Close()

	views := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at dbTime
		if err := rows.Scan(&name, &at); err != nil {
			return nil, interfaces.StorageError("scan endpoint view", err)
		}
		views[name] = at.Time
	}
	if err := rows.Err(); err != nil {
		return nil, interfaces.StorageError("endpoint views", err)
	}
	return views, nil
}

// UpsertEndpointView creates or overwrites the marker in one statement.
func (s *SQLStore) UpsertEndpointView(ctx context.Context, endpointName, username string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO endpoint_views (endpoint_name, username, last_viewed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (endpoint_name, username) DO UPDATE SET
			last_viewed_at = excluded.last_viewed_at`),
		endpointName, username, s.dialect.encodeTime(at))
	if err != nil {
		return interfaces.StorageError("upsert endpoint view", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return interfaces.StorageError("ping", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) querySubmissions(ctx context.Context, query string, args ...any) ([]interfaces.Submission, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []interfaces.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*interfaces.Submission, error) {
	var (
		sub         interfaces.Submission
		data        []byte
		browserInfo []byte
		createdAt   dbTime
	)
	if err := row.Scan(&sub.ID, &sub.EndpointName, &data, &browserInfo, &sub.IPAddress, &createdAt); err != nil {
		return nil, err
	}
	sub.Data = json.RawMessage(data)
	sub.BrowserInfo = interfaces.BrowserInfo{}
	if len(browserInfo) > 0 {
		if err := json.Unmarshal(browserInfo, &sub.BrowserInfo); err != nil {
			return nil, fmt.Errorf("decode browser info: %w", err)
		}
	}
	sub.CreatedAt = createdAt.Time
	return &sub, nil
}

// dbTime scans timestamps stored natively (postgres) or as text (sqlite).
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
