package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type Job struct {
	Id               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	State            JobState          `json:"state"`
	StateReason      string            `json:"stateReason,omitempty"`
	PaperRef         string            `json:"paperRef"`
	PaperOrientation string            `json:"paperOrientation"`
	PlanMode         PlanMode          `json:"planMode"`
	SourcePath       string            `json:"sourcePath"`
	OptimizedPath    string            `json:"optimizedPath,omitempty"`
	PlotOrder        []uuid.UUID       `json:"plotOrder,omitempty"`
	EstimatedSwaps   *int              `json:"estimatedSwaps,omitempty"`
	EstimatedSeconds *float64          `json:"estimatedSeconds,omitempty"`
	LastLayerIdx     int               `json:"lastLayerIdx"`
	HeartbeatAt      *time.Time        `json:"heartbeatAt,omitempty"`
	Layers           []Layer           `json:"layers"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

type JobList []Job

type Layer struct {
	Id         uuid.UUID  `json:"id"`
	JobId      uuid.UUID  `json:"jobId"`
	Name       string     `json:"name"`
	OrderIndex int        `json:"orderIndex"`
	PenId      *uuid.UUID `json:"penId,omitempty"`
	Planned    bool       `json:"planned"`
}

type Pen struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	WidthMM     float64   `json:"widthMm"`
	SpeedCapMMS float64   `json:"speedCapMms"`
}

type PenList []Pen

type JournalEntry struct {
	JobId     uuid.UUID         `json:"jobId"`
	Seq       int               `json:"seq"`
	FromState JobState          `json:"fromState"`
	ToState   JobState          `json:"toState"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type ChecklistItem struct {
	Key  string `json:"key"`
	Done bool   `json:"done"`
}

// JobCreate is the job submission payload. Layers carry the original document
// order; pens may be assigned later through the layer endpoint.
type JobCreate struct {
	Name             string        `json:"name" validate:"required,min=1,max=100"`
	PaperRef         string        `json:"paperRef" validate:"required"`
	PaperOrientation string        `json:"paperOrientation" validate:"omitempty,oneof=portrait landscape"`
	PlanMode         PlanMode      `json:"planMode" validate:"omitempty,oneof=preserve_order optimize"`
	SourcePath       string        `json:"sourcePath" validate:"required"`
	Pristine         bool          `json:"pristine"`
	Layers           []LayerCreate `json:"layers" validate:"required,min=1,dive"`
}

type LayerCreate struct {
	Name       string     `json:"name" validate:"required"`
	OrderIndex int        `json:"orderIndex" validate:"gte=0"`
	PenId      *uuid.UUID `json:"penId"`
}

type PenCreate struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Color       string  `json:"color" validate:"required"`
	WidthMM     float64 `json:"widthMm" validate:"gt=0"`
	SpeedCapMMS float64 `json:"speedCapMms" validate:"gt=0"`
}

type LayerPenAssignment struct {
	PenId uuid.UUID `json:"penId" validate:"required"`
}

type ChecklistItemUpdate struct {
	Done bool `json:"done"`
}

// PlanPreview is the dry-run output of the multi-pen planner for a job.
type PlanPreview struct {
	Mode             PlanMode    `json:"mode"`
	PlotOrder        []uuid.UUID `json:"plotOrder"`
	DistinctPens     int         `json:"distinctPens"`
	EstimatedSwaps   int         `json:"estimatedSwaps"`
	EstimatedSeconds float64     `json:"estimatedSeconds"`
}

type Error struct {
	Message string `json:"message"`
}

// Event is the wire form of a monitor bus event, delivered to subscribers
// over the SSE stream.
type Event struct {
	Type      string            `json:"type"`
	JobId     uuid.UUID         `json:"jobId"`
	Seq       int               `json:"seq,omitempty"`
	FromState JobState          `json:"fromState,omitempty"`
	ToState   JobState          `json:"toState,omitempty"`
	Fraction  float64           `json:"fraction,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

const (
	EventTypeTransition = "transition"
	EventTypeProgress   = "progress"
)
