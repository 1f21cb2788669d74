package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/contentup/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, u *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	// GetForUpdate is GetByID with a row lock; call it inside a transaction.
	GetForUpdate(ctx context.Context, id string) (*models.Upload, error)
	UpsertChunk(ctx context.Context, c *models.UploadedChunk) error
	ListChunks(ctx context.Context, uploadID string) ([]*models.UploadedChunk, error)
	DeleteChunk(ctx context.Context, uploadID string, start int64) error
	MarkCompleted(ctx context.Context, id string, objectKey string) error
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}
