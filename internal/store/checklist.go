package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/plotterd/plotterd/internal/store/model"
)

type Checklist interface {
	List(ctx context.Context, jobID uuid.UUID) (model.ChecklistItemList, error)
	SetItem(ctx context.Context, jobID uuid.UUID, key string, done bool) error
	// Missing returns the required keys that are not marked done for the job.
	Missing(ctx context.Context, jobID uuid.UUID, required []string) ([]string, error)
	InitialMigration() error
}

type ChecklistStore struct {
	db *gorm.DB
}

var _ Checklist = (*ChecklistStore)(nil)

func NewChecklistStore(db *gorm.DB) Checklist {
	return &ChecklistStore{db: db}
}

func (s *ChecklistStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.ChecklistItem{})
}

func (s *ChecklistStore) getDB(ctx context.Context) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func (s *ChecklistStore) List(ctx context.Context, jobID uuid.UUID) (model.ChecklistItemList, error) {
	var items model.ChecklistItemList
	result := s.getDB(ctx).Where("job_id = ?", jobID).Order("key").Find(&items)
	if result.Error != nil {
		return nil, result.Error
	}
	return items, nil
}

func (s *ChecklistStore) SetItem(ctx context.Context, jobID uuid.UUID, key string, done bool) error {
	item := model.ChecklistItem{JobID: jobID, Key: key, Done: done}
	result := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"done", "updated_at"}),
	}).Create(&item)
	return translateErrorNil(result.Error)
}

func (s *ChecklistStore) Missing(ctx context.Context, jobID uuid.UUID, required []string) ([]string, error) {
	items, err := s.List(ctx, jobID)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(items))
	for _, item := range items {
		done[item.Key] = item.Done
	}

	var missing []string
	for _, key := range required {
		if !done[key] {
			missing = append(missing, key)
		}
	}
	return missing, nil
}
