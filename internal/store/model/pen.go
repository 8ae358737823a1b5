package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	api "github.com/plotterd/plotterd/api/v1alpha1"
)

// Pen is immutable reference data describing a physical tool.
type Pen struct {
	gorm.Model
	ID          uuid.UUID `gorm:"primaryKey;"`
	Name        string    `gorm:"uniqueIndex;not null"`
	Color       string
	WidthMM     float64
	SpeedCapMMS float64
}

type PenList []Pen

func NewPenFromApiCreateResource(create *api.PenCreate) *Pen {
	return &Pen{
		ID:          uuid.New(),
		Name:        create.Name,
		Color:       create.Color,
		WidthMM:     create.WidthMM,
		SpeedCapMMS: create.SpeedCapMMS,
	}
}
