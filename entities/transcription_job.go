package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/gustavolhonda/Backend-Liven/constant"
)

type TranscriptionJob struct {
	ID                uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	UserID            string             `json:"user_id" gorm:"type:varchar(128);not null;index:idx_transcription_jobs_user_created,priority:1"`
	OriginalFileName  string             `json:"original_file_name" gorm:"type:varchar(255);not null"`
	Status            constant.JobStatus `json:"status" gorm:"type:varchar(20);not null;default:'processing'"`
	TranscriptionText string             `json:"transcription_text,omitempty" gorm:"type:text"`
	CreatedAt         time.Time          `json:"created_at" gorm:"not null;index:idx_transcription_jobs_user_created,priority:2"`
	UpdatedAt         time.Time          `json:"updated_at" gorm:"not null"`
}

func (TranscriptionJob) TableName() string {
	return "transcription_jobs"
}
