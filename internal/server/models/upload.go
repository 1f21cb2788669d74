// Package models defines server-side data models persisted in the database.
package models

import "time"

const (
	UploadStatusPending   = "pending"
	UploadStatusCompleted = "completed"
)

// Upload is one upload session. Chunk payloads live in object storage under
// a per-upload prefix until the session is finished.
type Upload struct {
	ID        string
	Size      int64
	ChunkSize int64
	// Sha256 is the checksum announced by the client for the whole file.
	Sha256 string
	Status string

	// ObjectKey is the storage key of the assembled file, set on completion.
	ObjectKey string

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session can no longer accept chunks at now.
func (u *Upload) Expired(now time.Time) bool {
	return u.Status == UploadStatusPending && !now.Before(u.ExpiresAt)
}

// UploadedChunk is a stored chunk of an upload covering [Start, End).
type UploadedChunk struct {
	UploadID   string
	Start      int64
	End        int64
	Sha256     string
	StorageKey string
	CreatedAt  time.Time
}
