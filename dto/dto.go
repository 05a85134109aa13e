package dto

import (
	"time"

	"github.com/google/uuid"
)

// JobMessage is handed from the submission path to the processing worker,
// either in process or through the queue.
type JobMessage struct {
	JobId      uuid.UUID `json:"jobId"`
	UserId     string    `json:"userId"`
	ObjectPath string    `json:"objectPath"`
	FileName   string    `json:"fileName"`
}

type SubmitResponse struct {
	Message         string    `json:"message"`
	TranscriptionId uuid.UUID `json:"transcriptionId"`
}

type QuotaResponse struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

type JobResponse struct {
	Id               uuid.UUID `json:"id"`
	OriginalFileName string    `json:"originalFileName"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}
