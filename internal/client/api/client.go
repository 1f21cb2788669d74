// Package api is the HTTP client of the upload REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/netx"
	"github.com/dmitrijs2005/contentup/internal/upload"
)

type Client struct {
	http    *http.Client
	baseURL string
}

// New returns a client for the API mounted at serverURL+prefix. Every
// request is bounded by timeout.
func New(serverURL, prefix string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(serverURL, "/") + "/" + strings.Trim(prefix, "/"),
	}
}

func (c *Client) uploadURL(id string, parts ...string) string {
	u := c.baseURL + "/uploads/"
	if id != "" {
		u += url.PathEscape(id) + "/"
	}
	for _, p := range parts {
		u += p + "/"
	}
	return u
}

func (c *Client) CreateUpload(ctx context.Context, req common.CreateUploadRequest) (*common.UploadResponse, error) {
	var resp common.UploadResponse
	if err := c.doJSON(ctx, http.MethodPost, c.uploadURL(""), req, &resp, http.StatusCreated); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetUpload(ctx context.Context, id string) (*common.UploadResponse, error) {
	var resp common.UploadResponse
	if err := c.doJSON(ctx, http.MethodGet, c.uploadURL(id), nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadChunk sends the body of chunk ch of a file of fileSize bytes.
func (c *Client) UploadChunk(ctx context.Context, id string, fileSize int64, ch upload.Chunk, sha string, body io.Reader) error {
	h := http.Header{}
	h.Set("Content-Range", common.FormatContentRange(ch.Start, ch.End, fileSize))
	h.Set(common.ContentSha256HeaderName, sha)

	resp, err := netx.PutOctetStream(ctx, c.http, c.uploadURL(id, "chunks"), body, ch.Len(), h)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer netx.DrainClose(resp)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func (c *Client) FinishUpload(ctx context.Context, id string, sha string) (*common.FinishUploadResponse, error) {
	var resp common.FinishUploadResponse
	err := c.doJSON(ctx, http.MethodPost, c.uploadURL(id, "finish"), common.FinishUploadRequest{Sha256: sha}, &resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any, want int) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer netx.DrainClose(resp)

	if resp.StatusCode != want {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, u, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	msg := netx.ReadErrorBody(resp)

	var e common.ErrorResponse
	if json.Unmarshal([]byte(msg), &e) == nil && e.Error != "" {
		msg = e.Error
	}

	return &StatusError{Code: resp.StatusCode, Message: msg}
}

// StatusError is a non-success response of the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unwrap maps the status code back to the sentinel the server started from.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return common.ErrorValidation
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusConflict:
		return common.ErrUploadCompleted
	case http.StatusGone:
		return common.ErrUploadExpired
	case http.StatusPreconditionFailed:
		return common.ErrIncompleteUpload
	case http.StatusRequestEntityTooLarge:
		return common.ErrChunkTooLarge
	case http.StatusUnprocessableEntity:
		return common.ErrChecksumMismatch
	}
	if e.Code >= 500 {
		return common.ErrorInternal
	}
	return nil
}

func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// TransportError is a request that got no response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request may succeed. Cancelled
// requests are never retried; callers check their own deadline.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var te *TransportError
	return errors.As(err, &te)
}
