package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/dbx"
	"github.com/dmitrijs2005/contentup/internal/upload"
)

// SQLiteRepository implements Repository on the local journal. Create needs
// a *sql.DB because it writes the record and its chunks in one transaction.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const recordColumns = `id, path, size, chunk_size, checksum, remote_id, error, completed, failed, created_at`

func (r *SQLiteRepository) Create(ctx context.Context, rec *upload.Record) error {
	s := rec.Snapshot()

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `INSERT INTO uploads (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, query,
			s.ID, s.Path, s.Size, s.ChunkSize, s.Checksum, s.RemoteID, s.Error,
			s.Completed, s.Failed, s.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert upload: %w", err)
		}

		query = `INSERT INTO upload_chunks (upload_id, idx, start_offset, end_offset, completed, retry_count)
			VALUES (?, ?, ?, ?, ?, ?)`
		for i, c := range s.Chunks {
			if _, err := tx.ExecContext(ctx, query, s.ID, i, c.Start, c.End, c.Completed, c.RetryCount); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", i, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateChunk(ctx context.Context, recordID string, i int, c upload.Chunk) error {
	query := `UPDATE upload_chunks SET completed=?, retry_count=? WHERE upload_id=? AND idx=?`
	res, err := r.db.ExecContext(ctx, query, c.Completed, c.RetryCount, recordID, i)
	if err != nil {
		return fmt.Errorf("failed to update chunk: %w", err)
	}
	if err := dbx.ExpectOneRow(res); err != nil {
		return fmt.Errorf("chunk %d of %s: %w", i, recordID, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateState(ctx context.Context, rec *upload.Record) error {
	s := rec.Snapshot()

	query := `UPDATE uploads SET remote_id=?, error=?, completed=?, failed=? WHERE id=?`
	res, err := r.db.ExecContext(ctx, query, s.RemoteID, s.Error, s.Completed, s.Failed, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	if err := dbx.ExpectOneRow(res); err != nil {
		return fmt.Errorf("upload %s: %w", s.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*upload.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM uploads WHERE id=?`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}

	if err := r.loadChunks(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SQLiteRepository) ListUnfinished(ctx context.Context) ([]*upload.Record, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM uploads WHERE completed=0 AND failed=0 ORDER BY created_at, id`)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*upload.Record, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM uploads ORDER BY created_at, id`)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM upload_chunks WHERE upload_id=?`, id); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE id=?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete upload: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return common.ErrorNotFound
		}
		return nil
	})
}

func (r *SQLiteRepository) list(ctx context.Context, query string) ([]*upload.Record, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}

	var result []*upload.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, rec)
	}
	// close before loading chunks, the pool holds a single connection
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range result {
		if err := r.loadChunks(ctx, rec); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *SQLiteRepository) loadChunks(ctx context.Context, rec *upload.Record) error {
	query := `SELECT start_offset, end_offset, completed, retry_count FROM upload_chunks
		WHERE upload_id=? ORDER BY idx`
	rows, err := r.db.QueryContext(ctx, query, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	rec.Chunks = []upload.Chunk{}
	for rows.Next() {
		var c upload.Chunk
		if err := rows.Scan(&c.Start, &c.End, &c.Completed, &c.RetryCount); err != nil {
			return err
		}
		rec.Chunks = append(rec.Chunks, c)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*upload.Record, error) {
	var (
		rec     upload.Record
		created int64
	)
	err := s.Scan(&rec.ID, &rec.Path, &rec.Size, &rec.ChunkSize, &rec.Checksum, &rec.RemoteID,
		&rec.Error, &rec.Completed, &rec.Failed, &created)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	return &rec, nil
}
