// Package services contains server-side business logic. UploadService
// implements the receiving side of the chunked upload protocol: sessions are
// kept in the database, chunk bodies in a storage.ChunkStore.
package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/dbx"
	"github.com/dmitrijs2005/contentup/internal/logging"
	"github.com/dmitrijs2005/contentup/internal/server/config"
	"github.com/dmitrijs2005/contentup/internal/server/models"
	"github.com/dmitrijs2005/contentup/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/contentup/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/contentup/internal/server/storage"
	"github.com/dmitrijs2005/contentup/internal/upload"
	"github.com/google/uuid"
)

var checksumPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidChecksum reports whether s is a lowercase hex SHA-256 digest.
func ValidChecksum(s string) bool {
	return checksumPattern.MatchString(s)
}

// UploadState is an upload together with the chunks stored so far, ordered
// by offset.
type UploadState struct {
	Upload *models.Upload
	Chunks []*models.UploadedChunk
}

// FinishResult describes an assembled object.
type FinishResult struct {
	UploadID  string
	Sha256    string
	ObjectKey string
	Size      int64
}

type UploadService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	store        storage.ChunkStore
	logger       logging.Logger
	maxChunkSize int64
	sessionTTL   time.Duration
	now          func() time.Time
}

func NewUploadService(db *sql.DB, m repomanager.RepositoryManager, store storage.ChunkStore, cfg *config.Config, logger logging.Logger) *UploadService {
	return &UploadService{
		db:           db,
		repomanager:  m,
		store:        store,
		logger:       logger.With("module", "uploads"),
		maxChunkSize: cfg.MaxChunkSize,
		sessionTTL:   cfg.SessionTTL,
		now:          time.Now,
	}
}

// Create opens a pending upload session for a file of the given size.
func (s *UploadService) Create(ctx context.Context, size, chunkSize int64, sha string) (*models.Upload, error) {
	switch {
	case size < 0:
		return nil, fmt.Errorf("%w: negative size %d", common.ErrorValidation, size)
	case chunkSize <= 0:
		return nil, fmt.Errorf("%w: chunk size must be positive", common.ErrorValidation)
	case chunkSize > s.maxChunkSize:
		return nil, fmt.Errorf("%w: %d exceeds %d", common.ErrChunkTooLarge, chunkSize, s.maxChunkSize)
	case !ValidChecksum(sha):
		return nil, fmt.Errorf("%w: malformed sha256 %q", common.ErrorValidation, sha)
	}

	now := s.now().UTC()
	u := &models.Upload{
		ID:        uuid.NewString(),
		Size:      size,
		ChunkSize: chunkSize,
		Sha256:    sha,
		Status:    models.UploadStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	if err := s.repomanager.Uploads(s.db).Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "upload created", "upload_id", u.ID, "size", size, "chunk_size", chunkSize)
	return u, nil
}

func (s *UploadService) Get(ctx context.Context, id string) (*UploadState, error) {
	repo := s.repomanager.Uploads(s.db)

	u, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks, err := repo.ListChunks(ctx, id)
	if err != nil {
		return nil, err
	}

	return &UploadState{Upload: u, Chunks: chunks}, nil
}

func (s *UploadService) pendingUpload(ctx context.Context, repo uploads.Repository, id string) (*models.Upload, error) {
	u, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Status == models.UploadStatusCompleted {
		return nil, common.ErrUploadCompleted
	}
	if u.Expired(s.now()) {
		return nil, common.ErrUploadExpired
	}
	return u, nil
}

// eofReader remembers whether the wrapped reader reported io.EOF.
type eofReader struct {
	r   io.Reader
	eof bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.eof = true
	}
	return n, err
}

type byteCounter int64

func (c *byteCounter) Write(p []byte) (int, error) {
	*c += byteCounter(len(p))
	return len(p), nil
}

// PutChunk stores the body of the planned chunk [start, end). total is the
// file size the client announced for the range, or -1 when it gave none. The
// body is hashed while it streams to storage; a body of the wrong length or
// checksum is removed again and reported as common.ErrChecksumMismatch. A
// storage failure is returned as is, so the client may retry it.
func (s *UploadService) PutChunk(ctx context.Context, id string, start, end, total int64, sha string, body io.Reader) error {
	if !ValidChecksum(sha) {
		return fmt.Errorf("%w: malformed sha256 %q", common.ErrorValidation, sha)
	}

	repo := s.repomanager.Uploads(s.db)

	u, err := s.pendingUpload(ctx, repo, id)
	if err != nil {
		return err
	}

	if total >= 0 && total != u.Size {
		return fmt.Errorf("%w: range total %d, upload size is %d", common.ErrorValidation, total, u.Size)
	}
	if end-start > u.ChunkSize {
		return fmt.Errorf("%w: %d bytes, chunk size is %d", common.ErrChunkTooLarge, end-start, u.ChunkSize)
	}
	if _, err := upload.ChunkIndex(u.Size, u.ChunkSize, start, end); err != nil {
		return fmt.Errorf("%w: %v", common.ErrChunkOutOfPlan, err)
	}

	key := storage.ChunkKey(id, start)
	want := end - start

	h := sha256.New()
	var n byteCounter
	src := &eofReader{r: body}
	tee := io.TeeReader(io.LimitReader(src, want), io.MultiWriter(h, &n))

	putErr := s.store.PutChunk(ctx, key, tee, want)
	short := src.eof && int64(n) < want
	if putErr != nil && !short {
		s.logger.Warn(ctx, "chunk not stored", "upload_id", id, "start", start, "error", putErr)
		return fmt.Errorf("store chunk: %w", putErr)
	}

	reject := func(reason error) error {
		s.logger.Warn(ctx, "chunk rejected", "upload_id", id, "start", start, "error", reason)
		if err := s.store.DeletePrefix(ctx, key); err != nil {
			s.logger.Error(ctx, "failed to remove rejected chunk", "key", key, "error", err)
		}
		if err := repo.DeleteChunk(ctx, id, start); err != nil {
			s.logger.Error(ctx, "failed to forget rejected chunk", "key", key, "error", err)
		}
		return reason
	}

	if int64(n) != want {
		return reject(fmt.Errorf("%w: got %d bytes, want %d", common.ErrChecksumMismatch, n, want))
	}
	if extra, _ := io.Copy(io.Discard, io.LimitReader(body, 1)); extra > 0 {
		return reject(fmt.Errorf("%w: body longer than %d bytes", common.ErrChecksumMismatch, want))
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != sha {
		return reject(fmt.Errorf("%w: chunk %d-%d hashed to %s", common.ErrChecksumMismatch, start, end, got))
	}

	err = repo.UpsertChunk(ctx, &models.UploadedChunk{
		UploadID:   id,
		Start:      start,
		End:        end,
		Sha256:     sha,
		StorageKey: key,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return err
	}

	s.logger.Debug(ctx, "chunk stored", "upload_id", id, "start", start, "end", end)
	return nil
}

// parts lines the stored chunks up against the plan of u.
func parts(u *models.Upload, chunks []*models.UploadedChunk) ([]storage.Part, error) {
	plan, err := upload.PlanChunks(u.Size, u.ChunkSize)
	if err != nil {
		return nil, err
	}

	stored := make(map[int64]*models.UploadedChunk, len(chunks))
	for _, c := range chunks {
		stored[c.Start] = c
	}

	result := make([]storage.Part, 0, len(plan))
	missing := 0
	for _, p := range plan {
		c, ok := stored[p.Start]
		if !ok || c.End != p.End {
			missing++
			continue
		}
		result = append(result, storage.Part{Key: c.StorageKey, Size: p.Len()})
	}

	if missing > 0 {
		return nil, fmt.Errorf("%w: %d of %d chunks missing", common.ErrIncompleteUpload, missing, len(plan))
	}
	return result, nil
}

func finishResult(u *models.Upload, objectKey string) *FinishResult {
	return &FinishResult{UploadID: u.ID, Sha256: u.Sha256, ObjectKey: objectKey, Size: u.Size}
}

// Finish verifies the stored chunks against the whole-file checksum and
// assembles them into the final object. Finishing a completed upload with
// the same checksum returns the existing result.
func (s *UploadService) Finish(ctx context.Context, id string, sha string) (*FinishResult, error) {
	if !ValidChecksum(sha) {
		return nil, fmt.Errorf("%w: malformed sha256 %q", common.ErrorValidation, sha)
	}

	repo := s.repomanager.Uploads(s.db)

	u, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if sha != u.Sha256 {
		return nil, fmt.Errorf("%w: upload was announced with sha256 %s", common.ErrChecksumMismatch, u.Sha256)
	}
	if u.Status == models.UploadStatusCompleted {
		return finishResult(u, u.ObjectKey), nil
	}
	if u.Expired(s.now()) {
		return nil, common.ErrUploadExpired
	}

	chunks, err := repo.ListChunks(ctx, id)
	if err != nil {
		return nil, err
	}

	ps, err := parts(u, chunks)
	if err != nil {
		return nil, err
	}

	body := storage.OpenConcat(ctx, s.store, ps)
	got, n, err := upload.ChecksumStream(ctx, body, upload.DefaultSliceSize)
	_ = body.Close()
	if err != nil {
		return nil, fmt.Errorf("verify upload: %w", err)
	}
	if n != u.Size || got != u.Sha256 {
		return nil, fmt.Errorf("%w: assembled %d bytes hashing to %s", common.ErrChecksumMismatch, n, got)
	}

	objectKey := storage.ObjectKey(u.Sha256)
	if err := s.store.Assemble(ctx, ps, objectKey); err != nil {
		return nil, fmt.Errorf("assemble upload: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepo := s.repomanager.Uploads(tx)

		locked, err := txRepo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status == models.UploadStatusCompleted {
			return nil
		}
		return txRepo.MarkCompleted(ctx, id, objectKey)
	})
	if err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}

	if err := s.store.DeletePrefix(ctx, storage.UploadPrefix(id)); err != nil {
		s.logger.Warn(ctx, "failed to remove chunks", "upload_id", id, "error", err)
	}

	s.logger.Info(ctx, "upload finished", "upload_id", id, "object_key", objectKey, "size", u.Size)
	return finishResult(u, objectKey), nil
}

// PurgeExpired deletes pending uploads that expired at or before now along
// with their stored chunks. It returns the number of uploads removed.
func (s *UploadService) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repomanager.Uploads(s.db).DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, id := range ids {
		if err := s.store.DeletePrefix(ctx, storage.UploadPrefix(id)); err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", id, err))
		}
	}

	if len(ids) > 0 {
		s.logger.Info(ctx, "expired uploads purged", "count", len(ids))
	}
	return len(ids), errors.Join(errs...)
}
