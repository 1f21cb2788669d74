package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "/api/content-sources/v1"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(ts.URL, prefix, 5*time.Second)
}

func TestNew_JoinsPrefix(t *testing.T) {
	c := New("http://host:8080/", "/api/v1/", time.Second)
	assert.Equal(t, "http://host:8080/api/v1/uploads/", c.uploadURL(""))
	assert.Equal(t, "http://host:8080/api/v1/uploads/u%2F1/chunks/", c.uploadURL("u/1", "chunks"))
}

func TestCreateUpload(t *testing.T) {
	var got common.CreateUploadRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, prefix+"/uploads/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(common.UploadResponse{UploadUUID: "u1", Size: got.Size, ChunkSize: got.ChunkSize, Status: "pending"})
	})

	resp, err := c.CreateUpload(context.Background(), common.CreateUploadRequest{Size: 25, ChunkSize: 10, Sha256: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.UploadUUID)
	assert.Equal(t, common.CreateUploadRequest{Size: 25, ChunkSize: 10, Sha256: "abc"}, got)
}

func TestGetUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, prefix+"/uploads/u1/", r.URL.Path)
		_ = json.NewEncoder(w).Encode(common.UploadResponse{
			UploadUUID:      "u1",
			CompletedChunks: []common.CompletedChunk{{Start: 0, End: 10, Sha256: "s0"}},
		})
	})

	resp, err := c.GetUpload(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []common.CompletedChunk{{Start: 0, End: 10, Sha256: "s0"}}, resp.CompletedChunks)
}

func TestUploadChunk(t *testing.T) {
	var gotRange, gotSha string
	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, prefix+"/uploads/u1/chunks/", r.URL.Path)
		gotRange = r.Header.Get("Content-Range")
		gotSha = r.Header.Get(common.ContentSha256HeaderName)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.UploadChunk(context.Background(), "u1", 25, upload.Chunk{Start: 20, End: 25}, "sha", strings.NewReader("klmno"))
	require.NoError(t, err)
	assert.Equal(t, "bytes 20-24/25", gotRange)
	assert.Equal(t, "sha", gotSha)
	assert.Equal(t, "klmno", string(gotBody))
}

func TestFinishUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, prefix+"/uploads/u1/finish/", r.URL.Path)
		var req common.FinishUploadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(common.FinishUploadResponse{UploadUUID: "u1", Sha256: req.Sha256, ObjectKey: "objects/ab/ab", Size: 25})
	})

	resp, err := c.FinishUpload(context.Background(), "u1", "ab")
	require.NoError(t, err)
	assert.Equal(t, "objects/ab/ab", resp.ObjectKey)
	assert.Equal(t, "ab", resp.Sha256)
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		code      int
		sentinel  error
		retryable bool
	}{
		{code: http.StatusBadRequest, sentinel: common.ErrorValidation},
		{code: http.StatusNotFound, sentinel: common.ErrorNotFound},
		{code: http.StatusConflict, sentinel: common.ErrUploadCompleted},
		{code: http.StatusGone, sentinel: common.ErrUploadExpired},
		{code: http.StatusPreconditionFailed, sentinel: common.ErrIncompleteUpload},
		{code: http.StatusRequestEntityTooLarge, sentinel: common.ErrChunkTooLarge},
		{code: http.StatusUnprocessableEntity, sentinel: common.ErrChecksumMismatch},
		{code: http.StatusInternalServerError, sentinel: common.ErrorInternal, retryable: true},
		{code: http.StatusBadGateway, sentinel: common.ErrorInternal, retryable: true},
		{code: http.StatusTooManyRequests, retryable: true},
		{code: http.StatusRequestTimeout, retryable: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.code)
				_ = json.NewEncoder(w).Encode(common.ErrorResponse{Error: "boom"})
			})

			_, err := c.GetUpload(context.Background(), "u1")
			require.Error(t, err)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, "boom", se.Message)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Equal(t, tt.retryable, Retryable(err))
		})
	}
}

func TestStatusError_PlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway from proxy", http.StatusBadGateway)
	})

	err := c.UploadChunk(context.Background(), "u1", 1, upload.Chunk{Start: 0, End: 1}, "s", strings.NewReader("x"))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad gateway from proxy", se.Message)
}

func TestTransportErrorsAreRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := New(url, prefix, time.Second)
	_, err := c.GetUpload(context.Background(), "u1")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, Retryable(err))
}

func TestCancelledIsNotRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetUpload(ctx, "u1")
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, Retryable(err))
}

func TestRetryable_OtherErrors(t *testing.T) {
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}

func TestDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := c.GetUpload(context.Background(), "u1")
	require.ErrorContains(t, err, "decode")
	assert.False(t, Retryable(err))
}
