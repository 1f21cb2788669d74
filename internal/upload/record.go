package upload

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one in-progress file upload: the chunk plan with per-chunk state,
// the whole-file checksum and the terminal flags.
//
// All state changes go through Record methods, which are serialized by an
// internal mutex. Queue acts as a compare-and-swap so that at most one worker
// owns a chunk until it reaches a terminal state. Fields may be read directly
// only while no worker is running; otherwise use Snapshot.
type Record struct {
	mu sync.Mutex

	ID        string
	CreatedAt time.Time
	Chunks    []Chunk
	Checksum  string
	Error     string
	Completed bool
	Failed    bool

	// Path, Size and ChunkSize describe the source file; RemoteID is the
	// upload identifier issued by the service.
	Path      string
	Size      int64
	ChunkSize int64
	RemoteID  string

	// Source is the open file the record was derived from. It is not persisted.
	Source Source
}

// NewRecord creates a record with a fresh identifier for src.
func NewRecord(src Source, checksum string, chunkSize int64, chunks []Chunk) *Record {
	r := &Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Chunks:    chunks,
		Checksum:  checksum,
		ChunkSize: chunkSize,
		Source:    src,
	}
	if src != nil {
		r.Path = src.Name()
		r.Size = src.Size()
	}
	return r
}

func (r *Record) checkIndex(i int) error {
	if i < 0 || i >= len(r.Chunks) {
		return fmt.Errorf("%w: index %d of %d", ErrChunkIndex, i, len(r.Chunks))
	}
	return nil
}

// Chunk returns a copy of the i-th chunk.
func (r *Record) Chunk(i int) (Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkIndex(i); err != nil {
		return Chunk{}, err
	}
	return r.Chunks[i], nil
}

// Queue claims chunk i for upload. It reports false if the chunk is already
// queued, already completed or out of range.
func (r *Record) Queue(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.checkIndex(i) != nil {
		return false
	}
	c := &r.Chunks[i]
	if c.Queued || c.Completed {
		return false
	}
	c.Queued = true
	return true
}

// Complete marks chunk i as uploaded.
func (r *Record) Complete(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkIndex(i); err != nil {
		return err
	}
	r.Chunks[i].Queued = false
	r.Chunks[i].Completed = true
	return nil
}

// Fail records a failed attempt for chunk i and releases it. retry is false
// once the chunk has failed maxRetries times.
func (r *Record) Fail(i int, maxRetries int) (retry bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkIndex(i); err != nil {
		return false, err
	}
	c := &r.Chunks[i]
	c.Queued = false
	c.RetryCount++
	return c.RetryCount < maxRetries, nil
}

// Pending returns the indexes of chunks that are neither completed nor queued.
func (r *Record) Pending() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx []int
	for i, c := range r.Chunks {
		if !c.Completed && !c.Queued {
			idx = append(idx, i)
		}
	}
	return idx
}

// Progress returns the number of bytes in completed chunks and the file size.
func (r *Record) Progress() (done, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.Chunks {
		total += c.Len()
		if c.Completed {
			done += c.Len()
		}
	}
	return done, total
}

func (r *Record) MarkCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Completed = true
	r.Failed = false
	r.Error = ""
}

func (r *Record) MarkFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Failed = true
	if err != nil {
		r.Error = err.Error()
	}
}

// SetRemoteID stores the identifier issued by the service.
func (r *Record) SetRemoteID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.RemoteID = id
}

// Snapshot returns a deep copy of the record state that is safe to read
// while workers keep mutating r.
func (r *Record) Snapshot() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	return &Record{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Chunks:    append([]Chunk(nil), r.Chunks...),
		Checksum:  r.Checksum,
		Error:     r.Error,
		Completed: r.Completed,
		Failed:    r.Failed,
		Path:      r.Path,
		Size:      r.Size,
		ChunkSize: r.ChunkSize,
		RemoteID:  r.RemoteID,
		Source:    r.Source,
	}
}
