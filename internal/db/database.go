package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps SQLite connection
type Database struct {
	db *sql.DB
}

// SolveRecord represents one solve run in the database
type SolveRecord struct {
	ID             string     `json:"id"`
	PageURL        string     `json:"pageUrl"`
	Outcome        string     `json:"outcome"`
	Target         string     `json:"target,omitempty"`
	Attempts       int        `json:"attempts"`
	PointsReturned int        `json:"pointsReturned"`
	PointsClicked  int        `json:"pointsClicked"`
	Duration       int        `json:"duration"` // milliseconds
	ReportID       string     `json:"reportId"`
	ReportData     string     `json:"reportData"` // JSON string
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

// initSchema creates the necessary tables
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS solves (
		id TEXT PRIMARY KEY,
		page_url TEXT NOT NULL,
		outcome TEXT NOT NULL,
		target TEXT,
		attempts INTEGER DEFAULT 0,
		points_returned INTEGER DEFAULT 0,
		points_clicked INTEGER DEFAULT 0,
		duration INTEGER DEFAULT 0,
		report_id TEXT,
		report_data TEXT,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_solves_created_at ON solves(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_solves_outcome ON solves(outcome);
	CREATE INDEX IF NOT EXISTS idx_solves_page_url ON solves(page_url);
	`

	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// CreateSolve inserts a new solve record at run start
func (d *Database) CreateSolve(id, pageURL string) error {
	query := `
		INSERT INTO solves (id, page_url, outcome, created_at)
		VALUES (?, ?, 'running', ?)
	`
	_, err := d.db.Exec(query, id, pageURL, time.Now())
	return err
}

// CompleteSolve records the final outcome of a solve run
func (d *Database) CompleteSolve(id string, rec SolveRecord, reportData interface{}) error {
	reportJSON, err := json.Marshal(reportData)
	if err != nil {
		return fmt.Errorf("failed to marshal report data: %w", err)
	}

	query := `
		UPDATE solves
		SET outcome = ?, target = ?, attempts = ?, points_returned = ?,
		    points_clicked = ?, duration = ?, report_id = ?, report_data = ?,
		    completed_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err = d.db.Exec(query,
		rec.Outcome, rec.Target, rec.Attempts, rec.PointsReturned,
		rec.PointsClicked, rec.Duration, rec.ReportID, string(reportJSON),
		now, id,
	)
	return err
}

const solveColumns = `id, page_url, outcome, target, attempts, points_returned,
	points_clicked, duration, report_id, report_data, created_at, completed_at`

func scanSolve(scan func(dest ...interface{}) error) (*SolveRecord, error) {
	var rec SolveRecord
	var target, reportID, reportData sql.NullString
	var completedAt sql.NullTime

	err := scan(
		&rec.ID,
		&rec.PageURL,
		&rec.Outcome,
		&target,
		&rec.Attempts,
		&rec.PointsReturned,
		&rec.PointsClicked,
		&rec.Duration,
		&reportID,
		&reportData,
		&rec.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if target.Valid {
		rec.Target = target.String
	}
	if reportID.Valid {
		rec.ReportID = reportID.String
	}
	if reportData.Valid {
		rec.ReportData = reportData.String
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return &rec, nil
}

// GetSolve retrieves a solve record by ID
func (d *Database) GetSolve(id string) (*SolveRecord, error) {
	query := `SELECT ` + solveColumns + ` FROM solves WHERE id = ?`

	rec, err := scanSolve(d.db.QueryRow(query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSolves retrieves solve records, newest first, with optional outcome
// filtering
func (d *Database) ListSolves(outcome string, limit, offset int) ([]SolveRecord, error) {
	query := `SELECT ` + solveColumns + ` FROM solves WHERE 1=1`
	args := []interface{}{}

	if outcome != "" && outcome != "all" {
		query += ` AND outcome = ?`
		args = append(args, outcome)
	}

	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SolveRecord
	for rows.Next() {
		rec, err := scanSolve(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// CountSolves returns the total number of solve records
func (d *Database) CountSolves(outcome string) (int, error) {
	query := `SELECT COUNT(*) FROM solves WHERE 1=1`
	args := []interface{}{}

	if outcome != "" && outcome != "all" {
		query += ` AND outcome = ?`
		args = append(args, outcome)
	}

	var count int
	err := d.db.QueryRow(query, args...).Scan(&count)
	return count, err
}
