package model

import (
	"time"

	"github.com/google/uuid"
)

// ChecklistItem tracks the completion of one pre-flight item for a job.
type ChecklistItem struct {
	JobID     uuid.UUID `gorm:"primaryKey;column:job_id"`
	Key       string    `gorm:"primaryKey;column:key;type:VARCHAR;size:100;"`
	Done      bool      `gorm:"not null"`
	UpdatedAt time.Time
}

type ChecklistItemList []ChecklistItem
