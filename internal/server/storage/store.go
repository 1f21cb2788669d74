// Package storage keeps uploaded chunks and assembled objects in a blob store.
package storage

import (
	"context"
	"fmt"
	"io"
)

// Part is one stored chunk taking part in an assembly, in file order.
type Part struct {
	Key  string
	Size int64
}

// ChunkStore persists chunk bodies and joins them into final objects.
//
// Open returns common.ErrorNotFound for a missing key. Assemble must leave
// finalKey untouched when it fails.
type ChunkStore interface {
	PutChunk(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Assemble(ctx context.Context, parts []Part, finalKey string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// UploadPrefix is the key prefix holding every chunk of an upload.
func UploadPrefix(uploadID string) string {
	return fmt.Sprintf("uploads/%s/", uploadID)
}

// ChunkKey names the object of the chunk starting at start. Offsets are
// zero-padded so that lexical order equals file order.
func ChunkKey(uploadID string, start int64) string {
	return fmt.Sprintf("%s%020d", UploadPrefix(uploadID), start)
}

// ObjectKey names the assembled object for a whole-file checksum.
func ObjectKey(sha256 string) string {
	if len(sha256) < 2 {
		return "objects/" + sha256
	}
	return fmt.Sprintf("objects/%s/%s", sha256[:2], sha256)
}

// OpenConcat returns a reader over the parts in order. Each part is opened
// only when the previous one is exhausted.
func OpenConcat(ctx context.Context, store ChunkStore, parts []Part) io.ReadCloser {
	return &concatReader{ctx: ctx, store: store, parts: parts}
}

type concatReader struct {
	ctx   context.Context
	store ChunkStore
	parts []Part
	cur   io.ReadCloser
}

func (c *concatReader) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			if len(c.parts) == 0 {
				return 0, io.EOF
			}
			rc, err := c.store.Open(c.ctx, c.parts[0].Key)
			if err != nil {
				return 0, fmt.Errorf("open %s: %w", c.parts[0].Key, err)
			}
			c.cur = rc
			c.parts = c.parts[1:]
		}

		n, err := c.cur.Read(p)
		if err == io.EOF {
			_ = c.cur.Close()
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *concatReader) Close() error {
	c.parts = nil
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}
