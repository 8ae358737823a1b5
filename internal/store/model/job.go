package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	api "github.com/plotterd/plotterd/api/v1alpha1"
)

type Job struct {
	gorm.Model
	ID               uuid.UUID `gorm:"primaryKey;"`
	Name             string    `gorm:"not null"`
	State            string    `gorm:"index;not null"`
	StateReason      string
	PaperRef         string `gorm:"not null"`
	PaperOrientation string
	PlanMode         string `gorm:"not null;default:preserve_order"`
	SourcePath       string `gorm:"not null"`
	OptimizedPath    string
	PlotOrder        []byte `gorm:"type:jsonb"`
	EstimatedSwaps   *int
	EstimatedSeconds *float64
	LastLayerIdx     int
	HeartbeatAt      *time.Time `gorm:"index"`
	Metrics          []byte     `gorm:"type:jsonb"`
	Layers           []Layer    `gorm:"constraint:OnDelete:CASCADE;"`
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

// PlotOrderIDs decodes the persisted plot order. Nil until planning completes.
func (j *Job) PlotOrderIDs() []uuid.UUID {
	if len(j.PlotOrder) == 0 {
		return nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(j.PlotOrder, &ids); err != nil {
		return nil
	}
	return ids
}

func (j *Job) SetPlotOrder(ids []uuid.UUID) {
	val, _ := json.Marshal(ids)
	j.PlotOrder = val
}

// MetricsMap decodes the accumulated timing/distance counters.
func (j *Job) MetricsMap() map[string]float64 {
	if len(j.Metrics) == 0 {
		return map[string]float64{}
	}
	m := map[string]float64{}
	_ = json.Unmarshal(j.Metrics, &m)
	return m
}

func (j *Job) SetMetrics(m map[string]float64) {
	val, _ := json.Marshal(m)
	j.Metrics = val
}

func NewJobFromId(id uuid.UUID) *Job {
	return &Job{ID: id}
}

func NewJobFromApiCreateResource(create *api.JobCreate) *Job {
	job := &Job{
		ID:               uuid.New(),
		Name:             create.Name,
		State:            string(api.JobStateNew),
		PaperRef:         create.PaperRef,
		PaperOrientation: create.PaperOrientation,
		PlanMode:         string(api.PlanModePreserveOrder),
		SourcePath:       create.SourcePath,
	}
	if create.PlanMode != "" {
		job.PlanMode = string(create.PlanMode)
	}
	for _, l := range create.Layers {
		job.Layers = append(job.Layers, Layer{
			ID:         uuid.New(),
			JobID:      job.ID,
			Name:       l.Name,
			OrderIndex: l.OrderIndex,
			PenID:      l.PenId,
		})
	}
	return job
}
