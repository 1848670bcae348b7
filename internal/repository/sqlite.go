package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"recon-flyover/internal/mission"
)

const defaultListLimit = 50

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// One connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS missions (
			id TEXT PRIMARY KEY,
			poi TEXT NOT NULL,
			location TEXT,
			status TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			frame_count INTEGER NOT NULL DEFAULT 0,
			viewer_path TEXT,
			error TEXT,
			result BLOB NOT NULL,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		);

		CREATE INDEX IF NOT EXISTS idx_missions_created_at ON missions(created_at);
		CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or replaces a mission
func (s *SQLiteDB) Save(ctx context.Context, r *mission.Result) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error encoding mission %s: %w", r.ID, err)
	}

	var completedAt *time.Time
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		completedAt = &t
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO missions (id, poi, location, status, latitude, longitude, frame_count, viewer_path, error, result, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			frame_count = excluded.frame_count,
			viewer_path = excluded.viewer_path,
			error = excluded.error,
			result = excluded.result,
			completed_at = excluded.completed_at`,
		r.ID, r.POI, r.Location, string(r.Status),
		r.Coordinate.Latitude, r.Coordinate.Longitude, len(r.Frames),
		r.ViewerPath, r.Error, raw, r.CreatedAt.UTC(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving mission %s: %w", r.ID, err)
	}
	return nil
}

// GetByID loads one mission
func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*mission.Result, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT result FROM missions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMissionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading mission %s: %w", id, err)
	}

	var r mission.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("error decoding mission %s: %w", id, err)
	}
	return &r, nil
}

// ListMissions returns missions newest first
func (s *SQLiteDB) ListMissions(ctx context.Context, opts Filter) ([]mission.Result, error) {
	var where []string
	var args []any

	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}
	if opts.POI != "" {
		where = append(where, "poi = ? COLLATE NOCASE")
		args = append(args, opts.POI)
	}

	query := "SELECT result FROM missions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing missions: %w", err)
	}
	defer rows.Close()

	results := []mission.Result{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("error scanning mission: %w", err)
		}
		var r mission.Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("error decoding mission: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
