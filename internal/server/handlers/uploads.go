package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/contentup/internal/common"
	"github.com/dmitrijs2005/contentup/internal/server/services"
	"github.com/go-chi/chi/v5"
)

const maxJSONBody = 1 << 16

func (h *Handler) createUpload(w http.ResponseWriter, r *http.Request) {
	var req common.CreateUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.svc.Create(r.Context(), req.Size, req.ChunkSize, req.Sha256)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse(&services.UploadState{Upload: u}))
}

func (h *Handler) getUpload(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Get(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse(state))
}

func (h *Handler) putChunk(w http.ResponseWriter, r *http.Request) {
	start, end, total, err := common.ParseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if r.ContentLength >= 0 && r.ContentLength != end-start {
		h.writeError(w, r, fmt.Errorf("%w: content length %d does not match range", common.ErrorValidation, r.ContentLength))
		return
	}

	sha := r.Header.Get(common.ContentSha256HeaderName)
	if err := h.svc.PutChunk(r.Context(), chi.URLParam(r, "uploadID"), start, end, total, sha, r.Body); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) finishUpload(w http.ResponseWriter, r *http.Request) {
	var req common.FinishUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Finish(r.Context(), chi.URLParam(r, "uploadID"), req.Sha256)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, common.FinishUploadResponse{
		UploadUUID: res.UploadID,
		Sha256:     res.Sha256,
		ObjectKey:  res.ObjectKey,
		Size:       res.Size,
	})
}

func uploadResponse(state *services.UploadState) common.UploadResponse {
	u := state.Upload
	resp := common.UploadResponse{
		UploadUUID:         u.ID,
		Size:               u.Size,
		ChunkSize:          u.ChunkSize,
		Sha256:             u.Sha256,
		Status:             u.Status,
		ObjectKey:          u.ObjectKey,
		Created:            u.CreatedAt,
		LastUpdated:        u.UpdatedAt,
		ExpiresAt:          u.ExpiresAt,
		CompletedChecksums: make([]string, 0, len(state.Chunks)),
		CompletedChunks:    make([]common.CompletedChunk, 0, len(state.Chunks)),
	}
	for _, c := range state.Chunks {
		resp.CompletedChecksums = append(resp.CompletedChecksums, c.Sha256)
		resp.CompletedChunks = append(resp.CompletedChunks, common.CompletedChunk{Start: c.Start, End: c.End, Sha256: c.Sha256})
	}
	return resp
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusCode maps a service error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrChunkOutOfPlan):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrUploadCompleted):
		return http.StatusConflict
	case errors.Is(err, common.ErrUploadExpired):
		return http.StatusGone
	case errors.Is(err, common.ErrIncompleteUpload):
		return http.StatusPreconditionFailed
	case errors.Is(err, common.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrChecksumMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = common.ErrorInternal.Error()
	}
	writeJSON(w, status, common.ErrorResponse{Error: msg})
}
