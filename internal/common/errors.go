// Package common defines sentinel errors and protocol constants shared by
// the contentup client and server. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Upload protocol errors.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrIncompleteUpload = errors.New("upload is incomplete")
	ErrChunkOutOfPlan   = errors.New("chunk does not match the upload plan")
	ErrChunkTooLarge    = errors.New("chunk too large")
	ErrUploadCompleted  = errors.New("upload already completed")
	ErrUploadExpired    = errors.New("upload expired")
)
