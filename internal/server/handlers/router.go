// Package handlers exposes UploadService over the REST upload API.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/contentup/internal/logging"
	"github.com/dmitrijs2005/contentup/internal/server/models"
	"github.com/dmitrijs2005/contentup/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// UploadService is the part of services.UploadService used by the handlers.
type UploadService interface {
	Create(ctx context.Context, size, chunkSize int64, sha string) (*models.Upload, error)
	Get(ctx context.Context, id string) (*services.UploadState, error)
	PutChunk(ctx context.Context, id string, start, end, total int64, sha string, body io.Reader) error
	Finish(ctx context.Context, id string, sha string) (*services.FinishResult, error)
}

type Handler struct {
	svc    UploadService
	logger logging.Logger
}

// NewRouter mounts the upload endpoints under prefix.
func NewRouter(svc UploadService, prefix string, logger logging.Logger) http.Handler {
	h := &Handler{svc: svc, logger: logger.With("module", "http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route(prefix, func(r chi.Router) {
		r.Post("/uploads/", h.createUpload)
		r.Get("/uploads/{uploadID}/", h.getUpload)
		r.Put("/uploads/{uploadID}/chunks/", h.putChunk)
		r.Post("/uploads/{uploadID}/finish/", h.finishUpload)
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.Info(r.Context(), "request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started),
		)
	})
}
