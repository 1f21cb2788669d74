package upload

import "errors"

var (
	ErrInvalidSliceSize = errors.New("invalid slice size")
	ErrInvalidChunkSize = errors.New("invalid chunk size")
	ErrInvalidFileSize  = errors.New("invalid file size")

	// ErrChunkIndex reports a range that is not part of a chunk plan, or an
	// index outside the record's chunk list.
	ErrChunkIndex = errors.New("chunk is not part of the plan")
)
