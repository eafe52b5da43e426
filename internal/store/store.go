// Package store persists research history in Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Session is one finished research request.
type Session struct {
	ID                uuid.UUID `json:"id"`
	FingerprintDigest string    `json:"fingerprint_digest"`
	Prompt            string    `json:"prompt"`
	Query             string    `json:"query"`
	Databases         []string  `json:"databases"`
	Method            string    `json:"method"`
	TotalUnfiltered   int       `json:"total_unfiltered"`
	TotalFiltered     int       `json:"total_filtered"`
	ShareURL          string    `json:"share_url"`
	Status            string    `json:"status"`
	ErrorCode         string    `json:"error_code,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

type Store struct {
	DB *sql.DB
}

// NewWithDSN opens and pings a Postgres connection.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Record inserts a finished session. A zero ID is replaced with a new one.
func (s *Store) Record(ctx context.Context, rec Session) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Databases == nil {
		rec.Databases = []string{}
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO research_sessions (id, fingerprint_digest, prompt, query, databases, method, total_unfiltered, total_filtered, share_url, status, error_code, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.ID, rec.FingerprintDigest, rec.Prompt, rec.Query, pq.Array(rec.Databases), rec.Method,
		rec.TotalUnfiltered, rec.TotalFiltered, rec.ShareURL, rec.Status, rec.ErrorCode,
		rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("record research session: %w", err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, fingerprint_digest, prompt, query, databases, method, total_unfiltered, total_filtered, share_url, status, error_code, started_at, finished_at
FROM research_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		var rec Session
		if err := rows.Scan(&rec.ID, &rec.FingerprintDigest, &rec.Prompt, &rec.Query, pq.Array(&rec.Databases), &rec.Method,
			&rec.TotalUnfiltered, &rec.TotalFiltered, &rec.ShareURL, &rec.Status, &rec.ErrorCode,
			&rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeBefore deletes sessions that started before cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM research_sessions WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
