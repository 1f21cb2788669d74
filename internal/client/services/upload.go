// Package services contains the application services of the contentup CLI.
//
// UploadService drives the upload loop around the core in internal/upload:
// it checksums and plans a file, registers it with the upload API, sends the
// chunks concurrently with bounded retries, persists every state transition
// in the local journal and finishes the upload. Interrupted uploads are
// resumed from the journal by record ID.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/contentup/internal/client/api"
	"github.com/dmitrijs2005/contentup/internal/client/config"
	"github.com/dmitrijs2005/contentup/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/logging"
	"github.com/dmitrijs2005/contentup/internal/upload"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// API is the part of the upload REST client used by UploadService.
type API interface {
	CreateUpload(ctx context.Context, req common.CreateUploadRequest) (*common.UploadResponse, error)
	GetUpload(ctx context.Context, id string) (*common.UploadResponse, error)
	UploadChunk(ctx context.Context, id string, fileSize int64, ch upload.Chunk, sha string, body io.Reader) error
	FinishUpload(ctx context.Context, id string, sha string) (*common.FinishUploadResponse, error)
}

// remoteCompleted is the session status of an assembled upload.
const remoteCompleted = "completed"

// ProgressFunc receives the number of uploaded bytes and the file size.
// Calls are serialized.
type ProgressFunc func(done, total int64)

// Result describes a finished upload.
type Result struct {
	RecordID  string
	RemoteID  string
	Checksum  string
	ObjectKey string
	Size      int64
}

type UploadService struct {
	api    API
	repo   uploads.Repository
	logger logging.Logger

	chunkSize      int64
	sliceSize      int64
	workers        int
	maxRetries     int
	retryBaseDelay time.Duration

	openFile func(path string) (upload.Source, error)
}

func NewUploadService(client API, repo uploads.Repository, cfg *config.Config, logger logging.Logger) *UploadService {
	return &UploadService{
		api:            client,
		repo:           repo,
		logger:         logger.With("module", "uploader"),
		chunkSize:      cfg.ChunkSize,
		sliceSize:      cfg.SliceSize,
		workers:        max(cfg.Workers, 1),
		maxRetries:     max(cfg.MaxRetries, 1),
		retryBaseDelay: max(cfg.RetryBaseDelay, time.Millisecond),
		openFile: func(path string) (upload.Source, error) {
			return upload.OpenFile(path)
		},
	}
}

// Prepare opens path, computes its checksum and chunk plan and returns a new
// record holding the open source. The caller closes rec.Source.
func (s *UploadService) Prepare(ctx context.Context, path string) (*upload.Record, error) {
	src, err := s.openFile(path)
	if err != nil {
		return nil, err
	}

	sum, err := upload.ComputeChecksum(ctx, src, src.Size(), s.sliceSize)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("checksum %s: %w", path, err)
	}

	chunks, err := upload.PlanChunks(src.Size(), s.chunkSize)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	return upload.NewRecord(src, sum, s.chunkSize, chunks), nil
}

// Upload sends the file at path and returns the finished result.
func (s *UploadService) Upload(ctx context.Context, path string, progress ProgressFunc) (*Result, error) {
	rec, err := s.Prepare(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rec.Source.Close()

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	s.logger.Info(ctx, "upload prepared",
		"record_id", rec.ID, "path", rec.Path, "size", rec.Size, "chunks", len(rec.Chunks), "sha256", rec.Checksum)

	return s.drive(ctx, rec, progress)
}

// Resume continues the journaled upload id. The file must still have the
// size and checksum it had when the upload was prepared.
func (s *UploadService) Resume(ctx context.Context, id string, progress ProgressFunc) (*Result, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Completed {
		return nil, fmt.Errorf("upload %s: %w", id, common.ErrUploadCompleted)
	}

	src, err := s.openFile(rec.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if src.Size() != rec.Size {
		return nil, fmt.Errorf("%w: %s changed size from %d to %d", common.ErrorValidation, rec.Path, rec.Size, src.Size())
	}
	sum, err := upload.ComputeChecksum(ctx, src, src.Size(), s.sliceSize)
	if err != nil {
		return nil, fmt.Errorf("checksum %s: %w", rec.Path, err)
	}
	if sum != rec.Checksum {
		return nil, fmt.Errorf("%w: %s changed since the upload was prepared", common.ErrorValidation, rec.Path)
	}
	rec.Source = src

	s.logger.Info(ctx, "resuming upload", "record_id", rec.ID, "remote_id", rec.RemoteID, "path", rec.Path)

	return s.drive(ctx, rec, progress)
}

// Status returns the journaled record id.
func (s *UploadService) Status(ctx context.Context, id string) (*upload.Record, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns every journaled upload.
func (s *UploadService) List(ctx context.Context) ([]*upload.Record, error) {
	return s.repo.List(ctx)
}

// drive registers or refreshes the remote session, uploads the pending
// chunks and finishes the upload. Any error other than cancellation marks
// the record failed.
func (s *UploadService) drive(ctx context.Context, rec *upload.Record, progress ProgressFunc) (*Result, error) {
	res, err := s.run(ctx, rec, progress)
	if errors.Is(err, context.Canceled) {
		// interrupted uploads stay resumable
		s.logger.Info(ctx, "upload interrupted", "record_id", rec.ID)
		return nil, err
	}
	if err != nil {
		rec.MarkFailed(err)
		if perr := s.repo.UpdateState(context.WithoutCancel(ctx), rec); perr != nil {
			s.logger.Error(ctx, "failed to persist upload state", "record_id", rec.ID, "error", perr)
		}
		s.logger.Warn(ctx, "upload failed", "record_id", rec.ID, "error", err)
		return nil, err
	}
	return res, nil
}

func (s *UploadService) run(ctx context.Context, rec *upload.Record, progress ProgressFunc) (*Result, error) {
	var resp *common.UploadResponse
	var err error

	if rec.RemoteID == "" {
		resp, err = s.createRemote(ctx, rec)
	} else {
		err = s.call(ctx, func(ctx context.Context) error {
			var gerr error
			resp, gerr = s.api.GetUpload(ctx, rec.RemoteID)
			return gerr
		})
	}
	if err != nil {
		return nil, err
	}

	if resp.Size != rec.Size || resp.ChunkSize != rec.ChunkSize || resp.Sha256 != rec.Checksum {
		return nil, fmt.Errorf("%w: server session %s does not match the local file", common.ErrorValidation, resp.UploadUUID)
	}

	// finishing an already assembled upload returns the stored result
	if resp.Status != remoteCompleted {
		if err := s.applyServerChunks(ctx, rec, resp.CompletedChunks); err != nil {
			return nil, err
		}
		if err := s.uploadPending(ctx, rec, progress); err != nil {
			return nil, err
		}
		if err := checkAllCompleted(rec); err != nil {
			return nil, err
		}
	}

	return s.finish(ctx, rec)
}

func checkAllCompleted(rec *upload.Record) error {
	for i, c := range rec.Snapshot().Chunks {
		if !c.Completed {
			return fmt.Errorf("%w: chunk %d not uploaded", common.ErrIncompleteUpload, i)
		}
	}
	return nil
}

func (s *UploadService) createRemote(ctx context.Context, rec *upload.Record) (*common.UploadResponse, error) {
	req := common.CreateUploadRequest{Size: rec.Size, ChunkSize: rec.ChunkSize, Sha256: rec.Checksum}

	var resp *common.UploadResponse
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.api.CreateUpload(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}

	rec.SetRemoteID(resp.UploadUUID)
	if err := s.repo.UpdateState(ctx, rec); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	return resp, nil
}

// applyServerChunks marks completed the chunks the server already holds,
// provided the stored range is a planned chunk and its checksum matches the
// local bytes.
func (s *UploadService) applyServerChunks(ctx context.Context, rec *upload.Record, done []common.CompletedChunk) error {
	for _, cc := range done {
		i, err := upload.ChunkIndex(rec.Size, rec.ChunkSize, cc.Start, cc.End)
		if err != nil {
			continue
		}
		c, err := rec.Chunk(i)
		if err != nil || c.Completed {
			continue
		}

		sum, err := upload.ChunkChecksum(rec.Source, c)
		if err != nil {
			return fmt.Errorf("checksum chunk %d: %w", i, err)
		}
		if sum != cc.Sha256 {
			s.logger.Warn(ctx, "server chunk differs from local data", "record_id", rec.ID, "chunk", i)
			continue
		}

		if err := rec.Complete(i); err != nil {
			return err
		}
		if err := s.persistChunk(ctx, rec, i); err != nil {
			return err
		}
	}
	return nil
}

// uploadPending sends every pending chunk with at most s.workers in flight.
// Each worker owns the chunk it claimed with Queue until the chunk is
// completed or gives up.
func (s *UploadService) uploadPending(ctx context.Context, rec *upload.Record, progress ProgressFunc) error {
	snap := rec.Snapshot()
	job := chunkJob{remoteID: snap.RemoteID, size: snap.Size, src: rec.Source}

	var progressMu sync.Mutex
	report := func() {
		if progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		progress(rec.Progress())
	}
	report()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, i := range rec.Pending() {
		if gctx.Err() != nil {
			break
		}
		if !rec.Queue(i) {
			continue
		}
		g.Go(func() error {
			if err := s.uploadChunk(gctx, rec, job, i); err != nil {
				return err
			}
			report()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type chunkJob struct {
	remoteID string
	size     int64
	src      io.ReaderAt
}

// uploadChunk sends chunk i, which the caller has queued. The chunk gets
// maxRetries attempts in this run on top of those recorded by earlier runs.
func (s *UploadService) uploadChunk(ctx context.Context, rec *upload.Record, job chunkJob, i int) error {
	c, err := rec.Chunk(i)
	if err != nil {
		return err
	}
	ceiling := c.RetryCount + s.maxRetries

	sum, err := upload.ChunkChecksum(job.src, c)
	if err != nil {
		_, _ = rec.Fail(i, ceiling)
		return fmt.Errorf("checksum chunk %d: %w", i, err)
	}

	b := retry.WithMaxRetries(uint64(s.maxRetries), retry.NewExponential(s.retryBaseDelay))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		body := io.NewSectionReader(job.src, c.Start, c.Len())
		sendErr := s.api.UploadChunk(ctx, job.remoteID, job.size, c, sum, body)
		if sendErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			// a cancelled attempt does not count against the chunk
			return ctx.Err()
		}

		again, err := rec.Fail(i, ceiling)
		if err != nil {
			return err
		}
		if err := s.persistChunk(ctx, rec, i); err != nil {
			return err
		}

		s.logger.Warn(ctx, "chunk upload failed",
			"record_id", rec.ID, "chunk", i, "start", c.Start, "end", c.End, "error", sendErr)

		if !again || !api.Retryable(sendErr) || !rec.Queue(i) {
			return sendErr
		}
		return retry.RetryableError(sendErr)
	})
	if err != nil {
		return fmt.Errorf("chunk %d [%d, %d): %w", i, c.Start, c.End, err)
	}

	if err := rec.Complete(i); err != nil {
		return err
	}
	if err := s.persistChunk(ctx, rec, i); err != nil {
		return err
	}

	s.logger.Debug(ctx, "chunk uploaded", "record_id", rec.ID, "chunk", i)
	return nil
}

func (s *UploadService) finish(ctx context.Context, rec *upload.Record) (*Result, error) {
	snap := rec.Snapshot()

	var resp *common.FinishUploadResponse
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.api.FinishUpload(ctx, snap.RemoteID, snap.Checksum)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finish upload: %w", err)
	}

	rec.MarkCompleted()
	if err := s.repo.UpdateState(ctx, rec); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	s.logger.Info(ctx, "upload completed", "record_id", rec.ID, "remote_id", snap.RemoteID, "object_key", resp.ObjectKey)

	return &Result{
		RecordID:  snap.ID,
		RemoteID:  snap.RemoteID,
		Checksum:  resp.Sha256,
		ObjectKey: resp.ObjectKey,
		Size:      resp.Size,
	}, nil
}

func (s *UploadService) persistChunk(ctx context.Context, rec *upload.Record, i int) error {
	c, err := rec.Chunk(i)
	if err != nil {
		return err
	}
	// progress already made must reach the journal even when ctx is cancelled
	if err := s.repo.UpdateChunk(context.WithoutCancel(ctx), rec.ID, i, c); err != nil {
		return fmt.Errorf("save chunk %d: %w", i, err)
	}
	return nil
}

// call runs fn with exponential backoff, retrying only errors that
// api.Retryable accepts.
func (s *UploadService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(uint64(s.maxRetries-1), retry.NewExponential(s.retryBaseDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && api.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
