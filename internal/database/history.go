package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/protectmyart/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "protectmyart.db"

// ErrNotFound is returned when a requested inspection does not exist.
var ErrNotFound = errors.New("inspection not found")

// HistoryDB stores finished inspections in SQLite.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS inspections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		general_opt_out INTEGER NOT NULL DEFAULT 0,
		image_opt_out INTEGER NOT NULL DEFAULT 0,
		restricted INTEGER NOT NULL DEFAULT 0,
		badge TEXT,
		error TEXT,
		checked_at TEXT NOT NULL,
		elapsed_ms INTEGER,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inspections_url ON inspections(url);
	CREATE INDEX IF NOT EXISTS idx_inspections_checked_at ON inspections(checked_at);
	CREATE INDEX IF NOT EXISTS idx_inspections_session ON inspections(session_id);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// storedTimeLayout sorts lexicographically in time order.
const storedTimeLayout = "2006-01-02 15:04:05.000000000"

// SaveInspection appends a finished inspection to the history.
func (h *HistoryDB) SaveInspection(ctx context.Context, report *model.InspectionReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	var general, image bool
	if rec := report.Display.Record; rec != nil {
		general, image = rec.GeneralOptOut, rec.ImageOptOut
	}

	query := `
	INSERT INTO inspections (url, session_id, state, general_opt_out, image_opt_out, restricted, badge, error, checked_at, elapsed_ms, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = h.db.ExecContext(ctx, query,
		report.URL,
		report.SessionID,
		report.State().String(),
		general,
		image,
		report.Display.Restricted,
		report.Badge,
		report.ErrorMessage,
		report.StartedAt.UTC().Format(storedTimeLayout),
		report.Elapsed.Milliseconds(),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save inspection: %w", err)
	}
	return nil
}

// Entry is one row of the inspection history.
type Entry struct {
	ID            int64              `json:"id"`
	URL           string             `json:"url"`
	SessionID     string             `json:"session_id,omitempty"`
	State         model.DisplayState `json:"state"`
	GeneralOptOut bool               `json:"general_opt_out"`
	ImageOptOut   bool               `json:"image_opt_out"`
	Restricted    bool               `json:"restricted,omitempty"`
	Badge         string             `json:"badge,omitempty"`
	Error         string             `json:"error,omitempty"`
	CheckedAt     time.Time          `json:"checked_at"`
	Elapsed       time.Duration      `json:"elapsed"`
}

// entryColumns is the column list scanned by scanEntries.
const entryColumns = `id, url, session_id, state, general_opt_out, image_opt_out, restricted, badge, error, checked_at, elapsed_ms`

// History returns the inspections of url, newest first. A positive limit
// caps the number of entries.
func (h *HistoryDB) History(ctx context.Context, url string, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + `
	FROM inspections
	WHERE url = ?
	ORDER BY checked_at DESC, id DESC
	`
	args := []any{url}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SessionEntries returns the inspections saved by one session in the
// order they were saved.
func (h *HistoryDB) SessionEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT `+entryColumns+`
	FROM inspections
	WHERE session_id = ?
	ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			state     string
			badge     sql.NullString
			errText   sql.NullString
			checkedAt string
			elapsedMS sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.SessionID, &state, &e.GeneralOptOut, &e.ImageOptOut, &e.Restricted,
			&badge, &errText, &checkedAt, &elapsedMS); err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		parsed, err := model.ParseDisplayState(state)
		if err != nil {
			return nil, fmt.Errorf("inspection %d: %w", e.ID, err)
		}
		e.State = parsed
		e.Badge = badge.String
		e.Error = errText.String
		e.CheckedAt = parseTimestamp(checkedAt)
		e.Elapsed = time.Duration(elapsedMS.Int64) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetInspection returns the full report stored under id.
func (h *HistoryDB) GetInspection(ctx context.Context, id int64) (*model.InspectionReport, error) {
	var reportJSON string
	err := h.db.QueryRowContext(ctx, `SELECT report_json FROM inspections WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	return decodeReport(reportJSON)
}

// Latest returns the newest report for url.
func (h *HistoryDB) Latest(ctx context.Context, url string) (*model.InspectionReport, error) {
	query := `
	SELECT report_json FROM inspections
	WHERE url = ?
	ORDER BY checked_at DESC, id DESC
	LIMIT 1
	`
	var reportJSON string
	err := h.db.QueryRowContext(ctx, query, url).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection: %w", err)
	}
	return decodeReport(reportJSON)
}

// URLSummary describes every inspected URL.
type URLSummary struct {
	URL         string             `json:"url"`
	Inspections int                `json:"inspections"`
	LastChecked time.Time          `json:"last_checked"`
	LastState   model.DisplayState `json:"last_state"`
}

// ListURLs returns every inspected URL in alphabetical order with the
// state of its most recently saved inspection.
func (h *HistoryDB) ListURLs(ctx context.Context) ([]URLSummary, error) {
	query := `
	SELECT i.url, c.n, i.checked_at, i.state
	FROM inspections i
	JOIN (
		SELECT url, COUNT(*) AS n, MAX(id) AS last_id
		FROM inspections
		GROUP BY url
	) c ON i.id = c.last_id
	ORDER BY i.url
	`
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer rows.Close()

	var out []URLSummary
	for rows.Next() {
		var (
			s         URLSummary
			checkedAt string
			state     string
		)
		if err := rows.Scan(&s.URL, &s.Inspections, &checkedAt, &state); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		s.LastChecked = parseTimestamp(checkedAt)
		if parsed, err := model.ParseDisplayState(state); err == nil {
			s.LastState = parsed
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes inspections checked before cutoff and returns how many
// were removed.
func (h *HistoryDB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM inspections WHERE checked_at < ?`,
		cutoff.UTC().Format(storedTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func decodeReport(reportJSON string) (*model.InspectionReport, error) {
	var report model.InspectionReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// timestampFormats contains the timestamp formats accepted when reading
// rows. More specific formats come first.
var timestampFormats = []string{
	storedTimeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp parses a stored timestamp as UTC, or returns the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
