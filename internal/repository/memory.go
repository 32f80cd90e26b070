package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"tabscribe/internal/model"
)

// memoryRepository keeps encoded rows in a map so reads go through the same
// codec as the database.
type memoryRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]Row
}

// NewMemoryRepository creates an in-process repository, used when no
// DATABASE_URL is configured.
func NewMemoryRepository() RecordRepository {
	return &memoryRepository{rows: make(map[uuid.UUID]Row)}
}

// put stores a raw row as-is, bypassing the encoder.
func (r *memoryRepository) put(row Row) {
	r.mu.Lock()
	r.rows[row.ID] = row
	r.mu.Unlock()
}

func (r *memoryRepository) Create(ctx context.Context, rec *model.Record) error {
	row, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[row.ID]; exists {
		return &duplicateError{id: row.ID}
	}
	r.rows[row.ID] = row
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Record, error) {
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	rec := DecodeRecord(row)
	return &rec, nil
}

func (r *memoryRepository) List(ctx context.Context, filter ListFilter) ([]model.Record, error) {
	r.mu.RLock()
	rows := make([]Row, 0, len(r.rows))
	for _, row := range r.rows {
		if filter.Participant != "" && !slices.Contains(model.DecodeStrings(row.Participants), filter.Participant) {
			continue
		}
		rows = append(rows, row)
	}
	r.mu.RUnlock()

	slices.SortFunc(rows, func(a, b Row) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	off := min(filter.offset(), len(rows))
	end := min(off+filter.limit(), len(rows))
	out := make([]model.Record, 0, end-off)
	for _, row := range rows[off:end] {
		out = append(out, DecodeRecord(row))
	}
	return out, nil
}

type duplicateError struct {
	id uuid.UUID
}

func (e *duplicateError) Error() string {
	return "record " + e.id.String() + " already exists"
}
