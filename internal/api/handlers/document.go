package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/doctalk-ai/doctalk/internal/api"
	"github.com/doctalk-ai/doctalk/internal/api/middleware"
	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/service"
)

// maxUploadMemory caps the multipart parse buffer; larger parts spill
// to disk.
const maxUploadMemory = 8 << 20

type DocumentUploader interface {
	Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error)
	Reingest(ctx context.Context, owner, documentID string) (*domain.IngestionJob, error)
}

type DocumentReader interface {
	Get(ctx context.Context, owner, id string) (*domain.Document, error)
	List(ctx context.Context, owner string) ([]*domain.Document, error)
	Delete(ctx context.Context, owner, id string) error
}

type DocumentHandler struct {
	uploader DocumentUploader
	docs     DocumentReader
}

func NewDocumentHandler(uploader DocumentUploader, docs DocumentReader) *DocumentHandler {
	return &DocumentHandler{uploader: uploader, docs: docs}
}

type DocumentResponse struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	Status        string `json:"status"`
	Size          int64  `json:"size"`
	ChunkCount    int    `json:"chunk_count"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type ReingestResponse struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:            d.ID,
		Filename:      d.Filename,
		Status:        string(d.Status),
		Size:          d.Size,
		ChunkCount:    d.ChunkCount,
		FailureReason: d.FailureReason,
		CreatedAt:     d.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Upload accepts a multipart file and returns the descriptor before
// ingestion runs. The 202 tells clients to poll status or subscribe.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}

	doc, err := h.uploader.Upload(r.Context(), service.UploadInput{
		Owner:    userID,
		Filename: filename,
		Data:     data,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	docs, err := h.docs.List(r.Context(), userID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		responses = append(responses, documentToResponse(d))
	}
	api.Success(w, http.StatusOK, responses)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	doc, err := h.docs.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.docs.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reingest enqueues a fresh attempt for a failed document.
func (h *DocumentHandler) Reingest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	job, err := h.uploader.Reingest(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFailed) {
			api.Error(w, http.StatusConflict, err.Error())
			return
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, &ReingestResponse{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     string(job.Status),
	})
}
