package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

var log = logging.L("repository")

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// DefaultLimit bounds List when the caller gives no limit.
const DefaultLimit = 50

// ListFilter selects records for List.
type ListFilter struct {
	Participant string
	Limit       int
	Offset      int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return DefaultLimit
	}
	return f.Limit
}

func (f ListFilter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

// RecordRepository defines the interface for session record data access.
// Implementations must accept concurrent writes of distinct records.
type RecordRepository interface {
	// Create stores a new record
	Create(ctx context.Context, rec *model.Record) error

	// GetByID retrieves a record by ID
	GetByID(ctx context.Context, id uuid.UUID) (*model.Record, error)

	// List retrieves records, newest first
	List(ctx context.Context, filter ListFilter) ([]model.Record, error)
}
