package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/doctalk-ai/doctalk/internal/api/middleware"
	"github.com/doctalk-ai/doctalk/internal/domain"
	"github.com/doctalk-ai/doctalk/internal/service"
)

type MockDocumentUploader struct {
	mock.Mock
}

func (m *MockDocumentUploader) Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentUploader) Reingest(ctx context.Context, owner, documentID string) (*domain.IngestionJob, error) {
	args := m.Called(ctx, owner, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestionJob), args.Error(1)
}

type MockDocumentReader struct {
	mock.Mock
}

func (m *MockDocumentReader) Get(ctx context.Context, owner, id string) (*domain.Document, error) {
	args := m.Called(ctx, owner, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentReader) List(ctx context.Context, owner string) ([]*domain.Document, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentReader) Delete(ctx context.Context, owner, id string) error {
	args := m.Called(ctx, owner, id)
	return args.Error(0)
}

func withUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func newTestDocument() *domain.Document {
	return &domain.Document{
		ID:        "doc-1",
		Owner:     "user-1",
		Filename:  "notes.txt",
		Status:    domain.DocumentStatusUploaded,
		Size:      11,
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDocumentHandler_Upload(t *testing.T) {
	uploader := new(MockDocumentUploader)
	handler := NewDocumentHandler(uploader, new(MockDocumentReader))

	uploader.On("Upload", mock.Anything, mock.MatchedBy(func(input service.UploadInput) bool {
		return input.Owner == "user-1" && input.Filename == "notes.txt" &&
			string(input.Data) == "hello world"
	})).Return(newTestDocument(), nil)

	body, contentType := multipartUpload(t, "notes.txt", []byte("hello world"))
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "doc-1", data["id"])
	assert.Equal(t, "uploaded", data["status"])
	uploader.AssertExpectations(t)
}

func TestDocumentHandler_Upload_StripsPathFromFilename(t *testing.T) {
	uploader := new(MockDocumentUploader)
	handler := NewDocumentHandler(uploader, new(MockDocumentReader))

	uploader.On("Upload", mock.Anything, mock.MatchedBy(func(input service.UploadInput) bool {
		return input.Filename == "notes.txt"
	})).Return(newTestDocument(), nil)

	body, contentType := multipartUpload(t, "../../etc/notes.txt", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	uploader.AssertExpectations(t)
}

func TestDocumentHandler_Upload_MissingFile(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentUploader), new(MockDocumentReader))

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "file field is required")
}

func TestDocumentHandler_Upload_EmptyFileRejected(t *testing.T) {
	uploader := new(MockDocumentUploader)
	handler := NewDocumentHandler(uploader, new(MockDocumentReader))

	uploader.On("Upload", mock.Anything, mock.Anything).Return(nil, domain.ErrEmptyDocument)

	body, contentType := multipartUpload(t, "empty.txt", nil)
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDocumentHandler_List(t *testing.T) {
	docs := new(MockDocumentReader)
	handler := NewDocumentHandler(new(MockDocumentUploader), docs)

	docs.On("List", mock.Anything, "user-1").Return([]*domain.Document{newTestDocument()}, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/documents", nil), "user-1")
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	items := resp["data"].([]interface{})
	require.Len(t, items, 1)
}

func TestDocumentHandler_List_Empty(t *testing.T) {
	docs := new(MockDocumentReader)
	handler := NewDocumentHandler(new(MockDocumentUploader), docs)

	docs.On("List", mock.Anything, "user-1").Return([]*domain.Document{}, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/documents", nil), "user-1")
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestDocumentHandler_Get(t *testing.T) {
	docs := new(MockDocumentReader)
	handler := NewDocumentHandler(new(MockDocumentUploader), docs)

	failed := newTestDocument()
	failed.Status = domain.DocumentStatusFailed
	failed.FailureReason = "unsupported file type"
	docs.On("Get", mock.Anything, "user-1", "doc-1").Return(failed, nil)

	req := withURLParam(withUserID(httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil), "user-1"), "id", "doc-1")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported file type")
}

func TestDocumentHandler_Get_NotFound(t *testing.T) {
	docs := new(MockDocumentReader)
	handler := NewDocumentHandler(new(MockDocumentUploader), docs)

	docs.On("Get", mock.Anything, "user-1", "missing").Return(nil, domain.ErrDocumentNotFound)

	req := withURLParam(withUserID(httptest.NewRequest(http.MethodGet, "/documents/missing", nil), "user-1"), "id", "missing")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_Delete(t *testing.T) {
	docs := new(MockDocumentReader)
	handler := NewDocumentHandler(new(MockDocumentUploader), docs)

	docs.On("Delete", mock.Anything, "user-1", "doc-1").Return(nil)

	req := withURLParam(withUserID(httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil), "user-1"), "id", "doc-1")
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestDocumentHandler_Reingest(t *testing.T) {
	uploader := new(MockDocumentUploader)
	handler := NewDocumentHandler(uploader, new(MockDocumentReader))

	job := domain.NewIngestionJob("job-1", "doc-1", time.Now().UTC())
	uploader.On("Reingest", mock.Anything, "user-1", "doc-1").Return(job, nil)

	req := withURLParam(withUserID(httptest.NewRequest(http.MethodPost, "/documents/doc-1/reingest", nil), "user-1"), "id", "doc-1")
	w := httptest.NewRecorder()

	handler.Reingest(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "job-1", data["job_id"])
	assert.Equal(t, "pending", data["status"])
}

func TestDocumentHandler_Reingest_NotFailed(t *testing.T) {
	uploader := new(MockDocumentUploader)
	handler := NewDocumentHandler(uploader, new(MockDocumentReader))

	uploader.On("Reingest", mock.Anything, "user-1", "doc-1").
		Return(nil, domain.ErrDocumentNotFailed)

	req := withURLParam(withUserID(httptest.NewRequest(http.MethodPost, "/documents/doc-1/reingest", nil), "user-1"), "id", "doc-1")
	w := httptest.NewRecorder()

	handler.Reingest(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDocumentHandler_Unauthorized(t *testing.T) {
	handler := NewDocumentHandler(new(MockDocumentUploader), new(MockDocumentReader))

	endpoints := []func(http.ResponseWriter, *http.Request){
		handler.Upload, handler.List, handler.Get, handler.Delete, handler.Reingest,
	}
	for _, endpoint := range endpoints {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		w := httptest.NewRecorder()
		endpoint(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}
