package common

import "time"

// Wire types of the upload REST API, shared by the client and the server.

type CreateUploadRequest struct {
	Size      int64  `json:"size"`
	ChunkSize int64  `json:"chunk_size"`
	Sha256    string `json:"sha256"`
}

// CompletedChunk is a chunk the server already holds.
type CompletedChunk struct {
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Sha256 string `json:"sha256"`
}

type UploadResponse struct {
	UploadUUID         string           `json:"upload_uuid"`
	Size               int64            `json:"size"`
	ChunkSize          int64            `json:"chunk_size"`
	Sha256             string           `json:"sha256"`
	Status             string           `json:"status"`
	CompletedChecksums []string         `json:"completed_checksums"`
	CompletedChunks    []CompletedChunk `json:"completed_chunks"`
	ObjectKey          string           `json:"object_key,omitempty"`
	Created            time.Time        `json:"created"`
	LastUpdated        time.Time        `json:"last_updated"`
	ExpiresAt          time.Time        `json:"expires_at"`
}

type FinishUploadRequest struct {
	Sha256 string `json:"sha256"`
}

type FinishUploadResponse struct {
	UploadUUID string `json:"upload_uuid"`
	Sha256     string `json:"sha256"`
	ObjectKey  string `json:"object_key"`
	Size       int64  `json:"size"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
