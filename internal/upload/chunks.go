package upload

import "fmt"

// Chunk describes one contiguous byte range [Start, End) of a file together
// with its upload state.
type Chunk struct {
	Start int64
	End   int64

	Queued     bool
	Completed  bool
	RetryCount int
}

// Len returns the number of bytes covered by the chunk.
func (c Chunk) Len() int64 {
	return c.End - c.Start
}

// PlanChunks partitions [0, fileSize) into consecutive chunks of chunkSize
// bytes; only the last one may be shorter. A zero-byte file yields an empty
// plan: nothing is ever uploaded for it.
func PlanChunks(fileSize, chunkSize int64) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if fileSize < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFileSize, fileSize)
	}

	chunks := make([]Chunk, 0, ChunkCount(fileSize, chunkSize))
	for start := int64(0); start < fileSize; {
		end := start + min(chunkSize, fileSize-start)
		chunks = append(chunks, Chunk{Start: start, End: end})
		start = end
	}

	return chunks, nil
}

// ChunkCount returns how many chunks PlanChunks produces for the given sizes.
// Non-positive arguments yield zero.
func ChunkCount(fileSize, chunkSize int64) int {
	if fileSize <= 0 || chunkSize <= 0 {
		return 0
	}
	n := fileSize / chunkSize
	if fileSize%chunkSize != 0 {
		n++
	}
	return int(n)
}

// ChunkIndex returns the position of [start, end) in the plan for
// (fileSize, chunkSize), or ErrChunkIndex if the range is not exactly one of
// the planned chunks.
func ChunkIndex(fileSize, chunkSize, start, end int64) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if start < 0 || start >= fileSize || start%chunkSize != 0 || end-start != min(chunkSize, fileSize-start) {
		return 0, fmt.Errorf("%w: [%d,%d)", ErrChunkIndex, start, end)
	}
	return int(start / chunkSize), nil
}
