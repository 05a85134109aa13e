package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gustavolhonda/Backend-Liven/config"
	"github.com/gustavolhonda/Backend-Liven/constant"
	"github.com/gustavolhonda/Backend-Liven/dto"
	"github.com/gustavolhonda/Backend-Liven/entities"
	"github.com/gustavolhonda/Backend-Liven/quota"
	"github.com/gustavolhonda/Backend-Liven/repository"
	"github.com/gustavolhonda/Backend-Liven/service"
)

type fakeService struct {
	submitFn func(ctx context.Context, userId string, upload service.Upload) (uuid.UUID, error)
}

func (f *fakeService) Submit(ctx context.Context, userId string, upload service.Upload) (uuid.UUID, error) {
	// The handler hands ownership of the temp file to the service.
	defer os.Remove(upload.LocalPath)
	if f.submitFn != nil {
		return f.submitFn(ctx, userId, upload)
	}
	return uuid.New(), nil
}

func (f *fakeService) Process(ctx context.Context, msg dto.JobMessage) error { return nil }

func (f *fakeService) Wait() {}

func newTestRouter(t *testing.T, svc service.Service) (*gin.Engine, repository.JobRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&entities.TranscriptionJob{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.NewRepoWithDB(db)
	gate := quota.NewGate(repo, 5)

	r := gin.New()
	h := NewHandler(svc, gate, repo, config.Uploads{MaxSizeBytes: 10 * 1024 * 1024})
	h.Register(r, StaticIdentity{
		"token-1": "user-1",
		"token-2": "user-2",
	})
	return r, repo
}

func seedJob(t *testing.T, repo repository.JobRepository, userId string, status constant.JobStatus, text string, createdAt time.Time) *entities.TranscriptionJob {
	t.Helper()
	job := &entities.TranscriptionJob{
		ID:                uuid.New(),
		UserID:            userId,
		OriginalFileName:  "meeting.mp4",
		Status:            status,
		TranscriptionText: text,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	if err := repo.GetDB().Create(job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func multipartUpload(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, mw.FormDataContentType()
}

func doRequest(r *gin.Engine, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r, _ := newTestRouter(t, &fakeService{})

	if w := doRequest(r, http.MethodGet, "/api/transcriptions", "", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: code = %d, want 401", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/transcriptions", "bogus", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: code = %d, want 401", w.Code)
	}
}

func TestCreateAccepted(t *testing.T) {
	wantId := uuid.New()
	svc := &fakeService{
		submitFn: func(ctx context.Context, userId string, upload service.Upload) (uuid.UUID, error) {
			if userId != "user-1" {
				t.Fatalf("userId = %q, want user-1", userId)
			}
			if upload.FileName != "talk.mp3" {
				t.Fatalf("fileName = %q", upload.FileName)
			}
			return wantId, nil
		},
	}
	r, _ := newTestRouter(t, svc)

	body, contentType := multipartUpload(t, "file", "talk.mp3", []byte("audio"))
	w := doRequest(r, http.MethodPost, "/api/transcriptions", "token-1", body, contentType)
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d, want 202: %s", w.Code, w.Body.String())
	}

	var resp dto.SubmitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.TranscriptionId != wantId {
		t.Fatalf("id = %s, want %s", resp.TranscriptionId, wantId)
	}
}

func TestCreateQuotaExceeded(t *testing.T) {
	svc := &fakeService{
		submitFn: func(ctx context.Context, userId string, upload service.Upload) (uuid.UUID, error) {
			return uuid.Nil, repository.ErrDailyLimitReached
		},
	}
	r, _ := newTestRouter(t, svc)

	body, contentType := multipartUpload(t, "file", "talk.mp3", []byte("audio"))
	w := doRequest(r, http.MethodPost, "/api/transcriptions", "token-1", body, contentType)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d, want 429", w.Code)
	}
}

func TestCreateInternalError(t *testing.T) {
	svc := &fakeService{
		submitFn: func(ctx context.Context, userId string, upload service.Upload) (uuid.UUID, error) {
			return uuid.Nil, errors.Join(service.ErrPersistence, errors.New("db down"))
		},
	}
	r, _ := newTestRouter(t, svc)

	body, contentType := multipartUpload(t, "file", "talk.mp3", []byte("audio"))
	w := doRequest(r, http.MethodPost, "/api/transcriptions", "token-1", body, contentType)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", w.Code)
	}
}

func TestCreateWithoutFile(t *testing.T) {
	r, _ := newTestRouter(t, &fakeService{})
	w := doRequest(r, http.MethodPost, "/api/transcriptions", "token-1", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
}

func TestListOrderedNewestFirst(t *testing.T) {
	r, repo := newTestRouter(t, &fakeService{})
	now := time.Now().UTC()
	older := seedJob(t, repo, "user-1", constant.JobStatusCompleted, "text", now.Add(-time.Hour))
	newer := seedJob(t, repo, "user-1", constant.JobStatusProcessing, "", now)
	seedJob(t, repo, "user-2", constant.JobStatusCompleted, "foreign", now)

	w := doRequest(r, http.MethodGet, "/api/transcriptions", "token-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}

	var resp struct {
		Transcriptions []dto.JobResponse `json:"transcriptions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Transcriptions) != 2 {
		t.Fatalf("len = %d, want 2", len(resp.Transcriptions))
	}
	if resp.Transcriptions[0].Id != newer.ID || resp.Transcriptions[1].Id != older.ID {
		t.Fatalf("list not ordered newest first")
	}
}

func TestDownload(t *testing.T) {
	r, repo := newTestRouter(t, &fakeService{})
	now := time.Now().UTC()
	done := seedJob(t, repo, "user-1", constant.JobStatusCompleted, "the transcript", now)
	pending := seedJob(t, repo, "user-1", constant.JobStatusProcessing, "", now)

	w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/transcriptions/%s/download", done.ID), "token-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("completed: code = %d, want 200", w.Code)
	}
	if w.Body.String() != "the transcript" {
		t.Fatalf("body = %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Fatal("missing Content-Disposition header")
	}

	if w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/transcriptions/%s/download", pending.ID), "token-1", nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("processing: code = %d, want 400", w.Code)
	}

	// A job owned by someone else reads exactly like a missing one.
	if w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/transcriptions/%s/download", done.ID), "token-2", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("foreign: code = %d, want 404", w.Code)
	}

	if w := doRequest(r, http.MethodGet, "/api/transcriptions/not-a-uuid/download", "token-1", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("bad id: code = %d, want 404", w.Code)
	}
}

func TestQuota(t *testing.T) {
	r, repo := newTestRouter(t, &fakeService{})
	now := time.Now().UTC()
	seedJob(t, repo, "user-1", constant.JobStatusCompleted, "a", now)
	seedJob(t, repo, "user-1", constant.JobStatusFailed, "", now)

	w := doRequest(r, http.MethodGet, "/api/quota", "token-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", w.Code)
	}

	var resp dto.QuotaResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Limit != 5 || resp.Used != 2 || resp.Remaining != 3 {
		t.Fatalf("quota = %+v, want limit 5 used 2 remaining 3", resp)
	}
}
