// Package upload prepares files for chunked, resumable upload.
//
// It computes a whole-file SHA-256 checksum without holding the file in
// memory, partitions a file into a contiguous chunk plan and tracks the
// per-chunk state of an in-progress upload (see Record).
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// DefaultSliceSize is the read window used while computing a checksum (3 MiB).
const DefaultSliceSize int64 = 3 * 1024 * 1024

// EmptyChecksum is the SHA-256 digest of the empty byte sequence.
const EmptyChecksum = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// ComputeChecksum returns the lowercase hex SHA-256 digest of the first
// fileSize bytes of r.
//
// The file is consumed in slices of at most sliceSize bytes, read strictly in
// order and folded into a single digest, so memory use is bounded by
// sliceSize. The result does not depend on sliceSize.
//
// ctx is checked between slices; on cancellation the partial digest is
// discarded and ctx.Err() is returned. Read errors are returned wrapped and
// are never retried here.
func ComputeChecksum(ctx context.Context, r io.ReaderAt, fileSize, sliceSize int64) (string, error) {
	if sliceSize <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSliceSize, sliceSize)
	}
	if fileSize < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidFileSize, fileSize)
	}

	h := sha256.New()
	buf := make([]byte, min(sliceSize, fileSize))

	for offset := int64(0); offset < fileSize; {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n := min(sliceSize, fileSize-offset)
		read, err := r.ReadAt(buf[:n], offset)
		if int64(read) < n {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", fmt.Errorf("read slice at offset %d: %w", offset, err)
		}

		h.Write(buf[:n])
		offset += n
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumStream folds r into a SHA-256 digest until EOF using slices of at
// most sliceSize bytes. It returns the hex digest and the number of bytes
// consumed.
func ChecksumStream(ctx context.Context, r io.Reader, sliceSize int64) (string, int64, error) {
	if sliceSize <= 0 {
		return "", 0, fmt.Errorf("%w: %d", ErrInvalidSliceSize, sliceSize)
	}

	h := sha256.New()
	buf := make([]byte, sliceSize)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		n, err := io.ReadFull(r, buf)
		h.Write(buf[:n])
		total += int64(n)

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("read slice at offset %d: %w", total, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), total, nil
}

// ChunkChecksum returns the hex SHA-256 digest of the byte range covered by c.
func ChunkChecksum(r io.ReaderAt, c Chunk) (string, error) {
	h := sha256.New()
	n, err := io.Copy(h, io.NewSectionReader(r, c.Start, c.Len()))
	if err != nil {
		return "", fmt.Errorf("read chunk [%d,%d): %w", c.Start, c.End, err)
	}
	if n != c.Len() {
		return "", fmt.Errorf("read chunk [%d,%d): %w", c.Start, c.End, io.ErrUnexpectedEOF)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
