package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tabscribe/internal/model"
)

// Schema creates the records table. The analysis column is text rather
// than jsonb so that rows written by older versions load unchanged.
const Schema = `
CREATE TABLE IF NOT EXISTS session_records (
	id               UUID PRIMARY KEY,
	source           TEXT NOT NULL,
	mime_type        TEXT NOT NULL DEFAULT '',
	size_bytes       BIGINT NOT NULL DEFAULT 0,
	provider         TEXT NOT NULL DEFAULT '',
	language         TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	transcript       JSONB,
	analysis         TEXT,
	participants     JSONB NOT NULL DEFAULT '[]',
	action_items     JSONB NOT NULL DEFAULT '[]',
	decisions        JSONB NOT NULL DEFAULT '[]',
	metadata         JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS session_records_created_at_idx ON session_records (created_at DESC);
CREATE INDEX IF NOT EXISTS session_records_participants_idx ON session_records USING GIN (participants);
`

const selectColumns = `
	id, source, mime_type, size_bytes, provider, language, duration_seconds,
	transcript, analysis, participants, action_items, decisions, metadata, created_at`

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) RecordRepository {
	return &postgresRepository{db: db}
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Create creates a new record
func (r *postgresRepository) Create(ctx context.Context, rec *model.Record) error {
	row, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO session_records (
			id, source, mime_type, size_bytes, provider, language, duration_seconds,
			transcript, analysis, participants, action_items, decisions, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`
	_, err = r.db.ExecContext(ctx, query,
		row.ID,
		row.Source,
		row.MimeType,
		row.SizeBytes,
		row.Provider,
		row.Language,
		row.Duration,
		string(row.Transcript),
		string(row.Analysis),
		string(row.Participants),
		string(row.ActionItems),
		string(row.Decisions),
		string(row.Metadata),
		row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by ID
func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Record, error) {
	query := `SELECT` + selectColumns + `
		FROM session_records
		WHERE id = $1
	`
	row, err := scanRow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	rec := DecodeRecord(row)
	return &rec, nil
}

// List retrieves records newest first, optionally only those whose
// participants column contains filter.Participant.
func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]model.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if filter.Participant != "" {
		query := `SELECT` + selectColumns + `
			FROM session_records
			WHERE participants ? $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		rows, err = r.db.QueryContext(ctx, query, filter.Participant, filter.limit(), filter.offset())
	} else {
		query := `SELECT` + selectColumns + `
			FROM session_records
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`
		rows, err = r.db.QueryContext(ctx, query, filter.limit(), filter.offset())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, DecodeRecord(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (Row, error) {
	var (
		row                                                        Row
		transcript, analysis, participants, actions, decisions, md sql.NullString
	)
	err := s.Scan(
		&row.ID,
		&row.Source,
		&row.MimeType,
		&row.SizeBytes,
		&row.Provider,
		&row.Language,
		&row.Duration,
		&transcript,
		&analysis,
		&participants,
		&actions,
		&decisions,
		&md,
		&row.CreatedAt,
	)
	if err != nil {
		return Row{}, err
	}
	row.Transcript = []byte(transcript.String)
	row.Analysis = []byte(analysis.String)
	row.Participants = []byte(participants.String)
	row.ActionItems = []byte(actions.String)
	row.Decisions = []byte(decisions.String)
	row.Metadata = []byte(md.String)
	return row, nil
}
