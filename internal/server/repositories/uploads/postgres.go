package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/dbx"
	"github.com/dmitrijs2005/contentup/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, u *models.Upload) error {
	query :=
		`INSERT INTO uploads (id, size, chunk_size, sha256, status, object_key, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query, u.ID, u.Size, u.ChunkSize, u.Sha256, u.Status, u.ObjectKey, u.CreatedAt, u.UpdatedAt, u.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const selectUpload = `SELECT id, size, chunk_size, sha256, status, object_key, created_at, updated_at, expires_at
		FROM uploads WHERE id=$1`

func (r *PostgresRepository) getOne(ctx context.Context, query, id string) (*models.Upload, error) {
	u := &models.Upload{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Size, &u.ChunkSize, &u.Sha256, &u.Status, &u.ObjectKey, &u.CreatedAt, &u.UpdatedAt, &u.ExpiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}

	return u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	return r.getOne(ctx, selectUpload, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Upload, error) {
	return r.getOne(ctx, selectUpload+` FOR UPDATE`, id)
}

func (r *PostgresRepository) UpsertChunk(ctx context.Context, c *models.UploadedChunk) error {
	query :=
		`INSERT INTO upload_chunks (upload_id, start_offset, end_offset, sha256, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (upload_id, start_offset)
		DO UPDATE SET
			end_offset = EXCLUDED.end_offset,
			sha256 = EXCLUDED.sha256,
			storage_key = EXCLUDED.storage_key,
			created_at = EXCLUDED.created_at`

	res, err := r.db.ExecContext(ctx, query, c.UploadID, c.Start, c.End, c.Sha256, c.StorageKey, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return dbx.ExpectOneRow(res)
}

func (r *PostgresRepository) ListChunks(ctx context.Context, uploadID string) ([]*models.UploadedChunk, error) {
	query := `SELECT upload_id, start_offset, end_offset, sha256, storage_key, created_at
		FROM upload_chunks WHERE upload_id=$1 ORDER BY start_offset`

	rows, err := r.db.QueryContext(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadedChunk
	for rows.Next() {
		item := &models.UploadedChunk{}
		if err := rows.Scan(&item.UploadID, &item.Start, &item.End, &item.Sha256, &item.StorageKey, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteChunk forgets a stored chunk. Deleting a missing chunk is not an error.
func (r *PostgresRepository) DeleteChunk(ctx context.Context, uploadID string, start int64) error {
	query := `DELETE FROM upload_chunks WHERE upload_id=$1 AND start_offset=$2`

	if _, err := r.db.ExecContext(ctx, query, uploadID, start); err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}

	return nil
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string, objectKey string) error {
	query := `UPDATE uploads SET status='completed', object_key=$2, updated_at=now() WHERE id=$1 AND status='pending'`

	res, err := r.db.ExecContext(ctx, query, id, objectKey)
	if err != nil {
		return fmt.Errorf("failed to complete upload: %w", err)
	}

	return dbx.ExpectOneRow(res)
}

// DeleteExpired removes pending uploads whose expiry is not after now and
// returns their IDs. Chunk rows go with them via ON DELETE CASCADE.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `DELETE FROM uploads WHERE status='pending' AND expires_at <= $1 RETURNING id`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired uploads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
