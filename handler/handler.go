package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/gustavolhonda/Backend-Liven/config"
	"github.com/gustavolhonda/Backend-Liven/constant"
	"github.com/gustavolhonda/Backend-Liven/dto"
	"github.com/gustavolhonda/Backend-Liven/quota"
	"github.com/gustavolhonda/Backend-Liven/repository"
	"github.com/gustavolhonda/Backend-Liven/service"
)

type ServiceDependencies struct {
	TranscriptionService service.Service
}

// TranscriptionJobHandler feeds queue deliveries into the pipeline when the
// amqp dispatch mode is active.
func TranscriptionJobHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var job dto.JobMessage
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal job message")
		return err
	}

	return deps.TranscriptionService.Process(ctx, job)
}

type Handler struct {
	service service.Service
	gate    *quota.Gate
	repo    repository.JobRepository
	uploads config.Uploads
}

func NewHandler(svc service.Service, gate *quota.Gate, repo repository.JobRepository, uploads config.Uploads) *Handler {
	return &Handler{
		service: svc,
		gate:    gate,
		repo:    repo,
		uploads: uploads,
	}
}

func (h *Handler) Register(r gin.IRouter, identity Identity) {
	api := r.Group("/api", Auth(identity))
	api.POST("/transcriptions", h.Create)
	api.GET("/transcriptions", h.List)
	api.GET("/transcriptions/:id/download", h.Download)
	// Not nested under /transcriptions: a static segment there would clash
	// with the :id wildcard.
	api.GET("/quota", h.Quota)
}

// Create accepts a media upload and answers with the new job id before any
// processing happens.
func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	userId := UserId(c)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	if h.uploads.MaxSizeBytes > 0 && file.Size > h.uploads.MaxSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file too large (max %d bytes)", h.uploads.MaxSizeBytes)})
		return
	}

	localPath := filepath.Join(os.TempDir(), uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, localPath); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to save uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return
	}

	jobId, err := h.service.Submit(ctx, userId, service.Upload{
		FileName:  file.Filename,
		LocalPath: localPath,
	})
	if errors.Is(err, repository.ErrDailyLimitReached) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily transcription limit reached"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create transcription"})
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitResponse{
		Message:         "file received and queued for transcription",
		TranscriptionId: jobId,
	})
}

func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	userId := UserId(c)

	jobs, err := h.repo.ListByUser(ctx, userId)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to list transcriptions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list transcriptions"})
		return
	}

	views := make([]dto.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, dto.JobResponse{
			Id:               job.ID,
			OriginalFileName: job.OriginalFileName,
			Status:           string(job.Status),
			CreatedAt:        job.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"transcriptions": views})
}

// Download serves the finished text as an attachment. Jobs that do not exist
// and jobs owned by someone else are indistinguishable here.
func (h *Handler) Download(c *gin.Context) {
	ctx := c.Request.Context()
	userId := UserId(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transcription not found"})
		return
	}

	job, err := h.repo.FindByIdForUser(ctx, id, userId)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transcription not found"})
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to load transcription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load transcription"})
		return
	}

	if job.Status != constant.JobStatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transcription not ready"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcription_%s.txt", job.ID))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(job.TranscriptionText))
}

// Quota reports the caller's remaining daily allowance without consuming it.
func (h *Handler) Quota(c *gin.Context) {
	ctx := c.Request.Context()
	userId := UserId(c)

	status, err := h.gate.Remaining(ctx, userId, time.Now().UTC())
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to read quota")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read quota"})
		return
	}

	c.JSON(http.StatusOK, dto.QuotaResponse{
		Limit:     status.Limit,
		Used:      status.Used,
		Remaining: status.Remaining,
	})
}
