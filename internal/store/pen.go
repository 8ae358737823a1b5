package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plotterd/plotterd/internal/store/model"
)

type Pen interface {
	List(ctx context.Context) (model.PenList, error)
	Create(ctx context.Context, pen model.Pen) (*model.Pen, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Pen, error)
	Delete(ctx context.Context, id uuid.UUID) error
	InitialMigration() error
}

type PenStore struct {
	db *gorm.DB
}

var _ Pen = (*PenStore)(nil)

func NewPenStore(db *gorm.DB) Pen {
	return &PenStore{db: db}
}

func (s *PenStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Pen{})
}

func (s *PenStore) getDB(ctx context.Context) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func (s *PenStore) List(ctx context.Context) (model.PenList, error) {
	var pens model.PenList
	result := s.getDB(ctx).Model(&pens).Order("name").Find(&pens)
	if result.Error != nil {
		return nil, result.Error
	}
	return pens, nil
}

func (s *PenStore) Create(ctx context.Context, pen model.Pen) (*model.Pen, error) {
	if result := s.getDB(ctx).Create(&pen); result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &pen, nil
}

func (s *PenStore) Get(ctx context.Context, id uuid.UUID) (*model.Pen, error) {
	var pen model.Pen
	result := s.getDB(ctx).First(&pen, "id = ?", id)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &pen, nil
}

func (s *PenStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.getDB(ctx).Unscoped().Delete(&model.Pen{}, "id = ?", id)
	return translateErrorNil(result.Error)
}

func translateErrorNil(err error) error {
	if err == nil {
		return nil
	}
	return translateError(err)
}
