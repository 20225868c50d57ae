// Package history persists a journal of rotation attempts in SQLite so
// operators can audit what moved where, and when a partial write needs
// manual reconciliation.
package history

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // Driver sqlite
)

// Rotation outcome recorded with each journal row.
const (
	StatusRotated = "rotated"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Record is one rotation attempt for one server.
type Record struct {
	CreatedAt   time.Time
	ServerID    string
	ServerName  string
	FromName    string
	ToName      string
	Status      string
	MapChecksum string
	Detail      string
	ID          int64
	FromIndex   int
	ToIndex     int
}

// Repository manages the SQLite history database connection.
type Repository struct {
	db *sql.DB
}

// New initializes the SQLite connection and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Insert appends one rotation record to the journal.
func (r *Repository) Insert(rec Record) error {
	query := `
	INSERT INTO rotations (
		server_id, server_name, from_name, to_name,
		from_idx, to_idx, status, map_checksum, detail, created_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(query,
		rec.ServerID, rec.ServerName, rec.FromName, rec.ToName,
		rec.FromIndex, rec.ToIndex, rec.Status, rec.MapChecksum, rec.Detail, createdAt,
	)

	return err
}

// Recent returns the newest records, most recent first.
func (r *Repository) Recent(limit int) ([]Record, error) {
	rows, err := r.db.Query(`
		SELECT id, server_id, server_name, from_name, to_name,
		       from_idx, to_idx, status, map_checksum, detail, created_at
		FROM rotations
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.ServerID, &rec.ServerName, &rec.FromName, &rec.ToName,
			&rec.FromIndex, &rec.ToIndex, &rec.Status, &rec.MapChecksum, &rec.Detail, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// LastChecksum returns the map checksum of the latest successful or
// partial rotation for a server, or empty when the journal has none.
func (r *Repository) LastChecksum(serverID string) (string, error) {
	row := r.db.QueryRow(`
		SELECT map_checksum
		FROM rotations
		WHERE server_id = ? AND status != ? AND map_checksum != ''
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, serverID, StatusFailed)

	var sum string
	err := row.Scan(&sum)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return sum, nil
}
