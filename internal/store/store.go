package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Store is the optional PostgreSQL journal: one row per ingestion outcome and
// one row per accepted face (with its pgvector embedding).
type Store struct {
	conn *pgx.Conn
}

// Event is a journaled ingestion outcome.
type Event struct {
	ID           int64
	Filename     string
	Outcome      string
	MatchedLabel string
	Detail       string
	CreatedAt    time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables and vector extension if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS ingest_events (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL,
			outcome TEXT NOT NULL,
			matched_label TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS enrolled_faces (
			id BIGSERIAL PRIMARY KEY,
			label TEXT NOT NULL,
			embedding VECTOR(128) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS ingest_events_outcome_idx ON ingest_events (outcome);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// RecordOutcome journals the decision taken for one source file.
func (s *Store) RecordOutcome(ctx context.Context, filename, outcome, matchedLabel, detail string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO ingest_events (filename, outcome, matched_label, detail)
		VALUES ($1, $2, $3, $4)
	`, filename, outcome, matchedLabel, detail)
	return err
}

// RecordFace stores the encoding of a newly enrolled face.
func (s *Store) RecordFace(ctx context.Context, label string, vec []float64) error {
	f32 := make([]float32, len(vec))
	for i, v := range vec {
		f32[i] = float32(v)
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO enrolled_faces (label, embedding) VALUES ($1, $2)
	`, label, pgvector.NewVector(f32))
	return err
}

// FindClosestFace returns the label of the nearest enrolled face by L2 distance,
// or "" if none lies within threshold.
func (s *Store) FindClosestFace(ctx context.Context, vec []float64, threshold float64) (string, float64, error) {
	f32 := make([]float32, len(vec))
	for i, v := range vec {
		f32[i] = float32(v)
	}
	q := pgvector.NewVector(f32)

	// <-> is the Euclidean distance operator in pgvector
	var label string
	var dist float64
	err := s.conn.QueryRow(ctx, `
		SELECT label, embedding <-> $1 AS dist FROM enrolled_faces
		WHERE embedding <-> $1 <= $2
		ORDER BY dist ASC LIMIT 1
	`, q, threshold).Scan(&label, &dist)
	if err == pgx.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return label, dist, nil
}

// RecentOutcomes returns the newest events first.
func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, filename, outcome, matched_label, detail, created_at
		FROM ingest_events ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.Filename, &e.Outcome, &e.MatchedLabel, &e.Detail, &e.CreatedAt)
		return e, err
	})
}

// Reset drops all application tables to clear the journal.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS ingest_events CASCADE;
		DROP TABLE IF EXISTS enrolled_faces CASCADE;
	`)
	return err
}
