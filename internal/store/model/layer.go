package model

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LayerFeatures are the geometry counters the injected time estimator works
// from. They are produced during analysis, not by the planner.
type LayerFeatures struct {
	PathLengthMM float64 `json:"path_length_mm"`
	PenLiftCount int     `json:"pen_lift_count"`
	SegmentCount int     `json:"segment_count"`
}

type Layer struct {
	gorm.Model
	ID         uuid.UUID `gorm:"primaryKey;"`
	JobID      uuid.UUID `gorm:"index;not null"`
	Name       string    `gorm:"not null"`
	OrderIndex int       `gorm:"not null"`
	PenID      *uuid.UUID
	Planned    bool
	Features   []byte `gorm:"type:jsonb"`
}

type LayerList []Layer

func (l *Layer) FeatureStats() LayerFeatures {
	var f LayerFeatures
	if len(l.Features) > 0 {
		_ = json.Unmarshal(l.Features, &f)
	}
	return f
}

func (l *Layer) SetFeatureStats(f LayerFeatures) {
	val, _ := json.Marshal(f)
	l.Features = val
}
