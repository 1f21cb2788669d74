// Package uploads persists client upload records in the local SQLite journal
// so interrupted uploads can be resumed after a restart.
package uploads

import (
	"context"

	"github.com/dmitrijs2005/contentup/internal/upload"
)

// Repository stores upload records together with their chunk plan.
type Repository interface {
	// Create inserts the record and all of its chunks.
	Create(ctx context.Context, r *upload.Record) error

	// UpdateChunk stores the state of the i-th chunk of the record.
	UpdateChunk(ctx context.Context, recordID string, i int, c upload.Chunk) error

	// UpdateState stores the record level fields: remote id, error and the
	// terminal flags.
	UpdateState(ctx context.Context, r *upload.Record) error

	// GetByID returns the record with its chunks or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*upload.Record, error)

	// ListUnfinished returns records that are neither completed nor failed,
	// oldest first.
	ListUnfinished(ctx context.Context) ([]*upload.Record, error)

	// List returns every record, oldest first.
	List(ctx context.Context) ([]*upload.Record, error)

	Delete(ctx context.Context, id string) error
}
