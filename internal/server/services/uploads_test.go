package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/dbx"
	"github.com/dmitrijs2005/contentup/internal/logging"
	"github.com/dmitrijs2005/contentup/internal/server/config"
	"github.com/dmitrijs2005/contentup/internal/server/models"
	"github.com/dmitrijs2005/contentup/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/contentup/internal/server/storage"
	"github.com/dmitrijs2005/contentup/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func sum(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

type fakeUploadsRepo struct {
	mu      sync.Mutex
	uploads map[string]*models.Upload
	chunks  map[string]map[int64]*models.UploadedChunk

	createErr error
	listErr   error
}

func newFakeUploadsRepo() *fakeUploadsRepo {
	return &fakeUploadsRepo{
		uploads: map[string]*models.Upload{},
		chunks:  map[string]map[int64]*models.UploadedChunk{},
	}
}

func (f *fakeUploadsRepo) Create(ctx context.Context, u *models.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *u
	f.uploads[u.ID] = &cp
	return nil
}

func (f *fakeUploadsRepo) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUploadsRepo) GetForUpdate(ctx context.Context, id string) (*models.Upload, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeUploadsRepo) UpsertChunk(ctx context.Context, c *models.UploadedChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunks[c.UploadID] == nil {
		f.chunks[c.UploadID] = map[int64]*models.UploadedChunk{}
	}
	cp := *c
	f.chunks[c.UploadID][c.Start] = &cp
	return nil
}

func (f *fakeUploadsRepo) ListChunks(ctx context.Context, uploadID string) ([]*models.UploadedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.UploadedChunk
	for _, c := range f.chunks[uploadID] {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (f *fakeUploadsRepo) DeleteChunk(ctx context.Context, uploadID string, start int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks[uploadID], start)
	return nil
}

func (f *fakeUploadsRepo) MarkCompleted(ctx context.Context, id string, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[id]
	if !ok || u.Status != models.UploadStatusPending {
		return common.ErrorNotFound
	}
	u.Status = models.UploadStatusCompleted
	u.ObjectKey = objectKey
	return nil
}

func (f *fakeUploadsRepo) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, u := range f.uploads {
		if u.Status == models.UploadStatusPending && !u.ExpiresAt.After(now) {
			ids = append(ids, id)
			delete(f.uploads, id)
			delete(f.chunks, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeRepoManager struct {
	repo *fakeUploadsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Uploads(db dbx.DBTX) uploads.Repository      { return m.repo }

type fixture struct {
	svc   *UploadService
	repo  *fakeUploadsRepo
	store *storage.MemoryStore
	mock  sqlmock.Sqlmock
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{MaxChunkSize: 10, SessionTTL: time.Hour}
	f := &fixture{
		repo:  newFakeUploadsRepo(),
		store: storage.NewMemoryStore(),
		mock:  mock,
		now:   time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewUploadService(db, &fakeRepoManager{repo: f.repo}, f.store, cfg, logging.Nop{})
	f.svc.now = func() time.Time { return f.now }
	return f
}

// putAll uploads every planned chunk of data.
func (f *fixture) putAll(t *testing.T, id string, data []byte, chunkSize int64) {
	t.Helper()
	plan, err := upload.PlanChunks(int64(len(data)), chunkSize)
	require.NoError(t, err)
	for _, c := range plan {
		body := data[c.Start:c.End]
		require.NoError(t, f.svc.PutChunk(context.Background(), id, c.Start, c.End, -1, sum(body), bytes.NewReader(body)))
	}
}

var data25 = []byte("0123456789abcdefghijklmno")

// failingStore reads up to read bytes of a chunk body and then fails.
type failingStore struct {
	*storage.MemoryStore
	read int64
	err  error
}

func (s *failingStore) PutChunk(ctx context.Context, key string, r io.Reader, size int64) error {
	_, _ = io.CopyN(io.Discard, r, s.read)
	return s.err
}

// --- tests ---

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	valid := sum(data25)

	tests := []struct {
		name      string
		size      int64
		chunkSize int64
		sha       string
		want      error
	}{
		{name: "negative size", size: -1, chunkSize: 10, sha: valid, want: common.ErrorValidation},
		{name: "zero chunk", size: 25, chunkSize: 0, sha: valid, want: common.ErrorValidation},
		{name: "chunk too large", size: 25, chunkSize: 11, sha: valid, want: common.ErrChunkTooLarge},
		{name: "short sha", size: 25, chunkSize: 10, sha: "abc", want: common.ErrorValidation},
		{name: "uppercase sha", size: 25, chunkSize: 10, sha: strings.ToUpper(valid), want: common.ErrorValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.size, tt.chunkSize, tt.sha)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.repo.uploads)
}

func TestCreate_StoresPendingUpload(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.Create(context.Background(), 25, 10, sum(data25))
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, models.UploadStatusPending, u.Status)
	assert.Equal(t, f.now.Add(time.Hour), u.ExpiresAt)

	state, err := f.svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, state.Upload.ID)
	assert.Empty(t, state.Chunks)
}

func TestCreate_RepoError(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = errors.New("db down")

	_, err := f.svc.Create(context.Background(), 25, 10, sum(data25))
	require.ErrorContains(t, err, "db down")
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPutChunk(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and lists", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)

		require.NoError(t, f.svc.PutChunk(ctx, u.ID, 20, 25, -1, sum(data25[20:]), bytes.NewReader(data25[20:])))

		state, err := f.svc.Get(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, state.Chunks, 1)
		assert.Equal(t, sum(data25[20:]), state.Chunks[0].Sha256)

		stored, ok := f.store.Object(storage.ChunkKey(u.ID, 20))
		require.True(t, ok)
		assert.Equal(t, data25[20:], stored)
	})

	t.Run("resend overwrites", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)

		body := data25[:10]
		require.NoError(t, f.svc.PutChunk(ctx, u.ID, 0, 10, -1, sum(body), bytes.NewReader(body)))
		require.NoError(t, f.svc.PutChunk(ctx, u.ID, 0, 10, -1, sum(body), bytes.NewReader(body)))

		state, err := f.svc.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, state.Chunks, 1)
	})

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name       string
			start, end int64
			sha        string
			body       []byte
			want       error
		}{
			{name: "checksum mismatch", start: 0, end: 10, sha: sum([]byte("other")), body: data25[:10], want: common.ErrChecksumMismatch},
			{name: "short body", start: 0, end: 10, sha: sum(data25[:10]), body: data25[:4], want: common.ErrChecksumMismatch},
			{name: "long body", start: 0, end: 10, sha: sum(data25[:10]), body: data25[:12], want: common.ErrChecksumMismatch},
			{name: "unaligned", start: 5, end: 15, sha: sum(data25[5:15]), body: data25[5:15], want: common.ErrChunkOutOfPlan},
			{name: "too large", start: 0, end: 20, sha: sum(data25[:20]), body: data25[:20], want: common.ErrChunkTooLarge},
			{name: "malformed sha", start: 0, end: 10, sha: "nope", body: data25[:10], want: common.ErrorValidation},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				u, err := f.svc.Create(ctx, 25, 10, sum(data25))
				require.NoError(t, err)

				err = f.svc.PutChunk(ctx, u.ID, tt.start, tt.end, -1, tt.sha, bytes.NewReader(tt.body))
				require.ErrorIs(t, err, tt.want)

				assert.Empty(t, f.store.Keys(), "rejected bodies are not kept")
				state, err := f.svc.Get(ctx, u.ID)
				require.NoError(t, err)
				assert.Empty(t, state.Chunks)
			})
		}
	})

	t.Run("storage failure is not a checksum mismatch", func(t *testing.T) {
		f := newFixture(t)
		f.svc.store = &failingStore{MemoryStore: f.store, read: 3, err: errors.New("s3: 503 slow down")}
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)

		body := data25[:10]
		err = f.svc.PutChunk(ctx, u.ID, 0, 10, -1, sum(body), bytes.NewReader(body))
		require.ErrorContains(t, err, "503 slow down")
		assert.NotErrorIs(t, err, common.ErrChecksumMismatch)
	})

	t.Run("short body with failing storage is a mismatch", func(t *testing.T) {
		f := newFixture(t)
		f.svc.store = &failingStore{MemoryStore: f.store, read: 10, err: io.ErrUnexpectedEOF}
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)

		err = f.svc.PutChunk(ctx, u.ID, 0, 10, -1, sum(data25[:10]), bytes.NewReader(data25[:4]))
		require.ErrorIs(t, err, common.ErrChecksumMismatch)
	})

	t.Run("range total must match upload size", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)

		body := data25[:10]
		err = f.svc.PutChunk(ctx, u.ID, 0, 10, 999, sum(body), bytes.NewReader(body))
		require.ErrorIs(t, err, common.ErrorValidation)
		assert.Empty(t, f.store.Keys())

		require.NoError(t, f.svc.PutChunk(ctx, u.ID, 0, 10, 25, sum(body), bytes.NewReader(body)))
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)

		f.now = f.now.Add(2 * time.Hour)
		err = f.svc.PutChunk(ctx, u.ID, 0, 10, -1, sum(data25[:10]), bytes.NewReader(data25[:10]))
		require.ErrorIs(t, err, common.ErrUploadExpired)
	})

	t.Run("unknown upload", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.PutChunk(ctx, "missing", 0, 10, -1, sum(data25[:10]), bytes.NewReader(data25[:10]))
		require.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestFinish_AssemblesAndCleansUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	u, err := f.svc.Create(ctx, 25, 10, sum(data25))
	require.NoError(t, err)
	f.putAll(t, u.ID, data25, 10)

	res, err := f.svc.Finish(ctx, u.ID, sum(data25))
	require.NoError(t, err)
	assert.Equal(t, storage.ObjectKey(sum(data25)), res.ObjectKey)
	assert.Equal(t, int64(25), res.Size)

	obj, ok := f.store.Object(res.ObjectKey)
	require.True(t, ok)
	assert.Equal(t, data25, obj)
	assert.Equal(t, []string{res.ObjectKey}, f.store.Keys(), "chunk objects are removed")

	state, err := f.svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusCompleted, state.Upload.Status)
	require.NoError(t, f.mock.ExpectationsWereMet())

	t.Run("finishing again is idempotent", func(t *testing.T) {
		again, err := f.svc.Finish(ctx, u.ID, sum(data25))
		require.NoError(t, err)
		assert.Equal(t, res, again)
	})

	t.Run("chunks after completion are refused", func(t *testing.T) {
		err := f.svc.PutChunk(ctx, u.ID, 0, 10, -1, sum(data25[:10]), bytes.NewReader(data25[:10]))
		require.ErrorIs(t, err, common.ErrUploadCompleted)
	})
}

func TestFinish_ZeroByteUpload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	u, err := f.svc.Create(ctx, 0, 10, upload.EmptyChecksum)
	require.NoError(t, err)

	res, err := f.svc.Finish(ctx, u.ID, upload.EmptyChecksum)
	require.NoError(t, err)

	obj, ok := f.store.Object(res.ObjectKey)
	require.True(t, ok)
	assert.Empty(t, obj)
}

func TestFinish_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("incomplete", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)
		require.NoError(t, f.svc.PutChunk(ctx, u.ID, 0, 10, -1, sum(data25[:10]), bytes.NewReader(data25[:10])))

		_, err = f.svc.Finish(ctx, u.ID, sum(data25))
		require.ErrorIs(t, err, common.ErrIncompleteUpload)
		assert.Contains(t, err.Error(), "2 of 3")
	})

	t.Run("wrong whole-file checksum", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)

		_, err = f.svc.Finish(ctx, u.ID, sum([]byte("x")))
		require.ErrorIs(t, err, common.ErrChecksumMismatch)
	})

	t.Run("announced checksum does not match content", func(t *testing.T) {
		f := newFixture(t)
		other := []byte("ZZZZZZZZZZZZZZZZZZZZZZZZZ")
		u, err := f.svc.Create(ctx, 25, 10, sum(other))
		require.NoError(t, err)
		f.putAll(t, u.ID, data25, 10)

		_, err = f.svc.Finish(ctx, u.ID, sum(other))
		require.ErrorIs(t, err, common.ErrChecksumMismatch)
		_, ok := f.store.Object(storage.ObjectKey(sum(other)))
		assert.False(t, ok)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)

		f.now = f.now.Add(time.Hour)
		_, err = f.svc.Finish(ctx, u.ID, sum(data25))
		require.ErrorIs(t, err, common.ErrUploadExpired)
	})

	t.Run("list error", func(t *testing.T) {
		f := newFixture(t)
		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)
		f.repo.listErr = errors.New("broken")

		_, err = f.svc.Finish(ctx, u.ID, sum(data25))
		require.ErrorContains(t, err, "broken")
	})

	t.Run("transaction failure", func(t *testing.T) {
		f := newFixture(t)
		f.mock.ExpectBegin().WillReturnError(errors.New("no tx"))

		u, err := f.svc.Create(ctx, 25, 10, sum(data25))
		require.NoError(t, err)
		f.putAll(t, u.ID, data25, 10)

		_, err = f.svc.Finish(ctx, u.ID, sum(data25))
		require.ErrorContains(t, err, "no tx")

		state, err := f.svc.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, models.UploadStatusPending, state.Upload.Status)
		assert.Len(t, state.Chunks, 3, "chunks survive a failed finish")
	})
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	old, err := f.svc.Create(ctx, 25, 10, sum(data25))
	require.NoError(t, err)
	require.NoError(t, f.svc.PutChunk(ctx, old.ID, 0, 10, -1, sum(data25[:10]), bytes.NewReader(data25[:10])))

	f.now = f.now.Add(30 * time.Minute)
	fresh, err := f.svc.Create(ctx, 25, 10, sum(data25))
	require.NoError(t, err)
	require.NoError(t, f.svc.PutChunk(ctx, fresh.ID, 0, 10, -1, sum(data25[:10]), bytes.NewReader(data25[:10])))

	n, err := f.svc.PurgeExpired(ctx, f.now.Add(45*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.Get(ctx, old.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, []string{storage.ChunkKey(fresh.ID, 0)}, f.store.Keys())
}
