package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plotterd/plotterd/internal/store/model"
)

type Job interface {
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Update(ctx context.Context, job *model.Job) (*model.Job, error)
	UpdateHeartbeat(ctx context.Context, id uuid.UUID, t time.Time) error
	UpdateProgress(ctx context.Context, id uuid.UUID, lastLayerIdx int) error
	AssignPen(ctx context.Context, layerID uuid.UUID, penID uuid.UUID) (*model.Layer, error)
	MarkLayersPlanned(ctx context.Context, jobID uuid.UUID) error
	InitialMigration() error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Job{}, &model.Layer{})
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := s.getDB(ctx).Model(&jobs).Preload("Layers", layersInOrder)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Find(&jobs); result.Error != nil {
		return nil, result.Error
	}
	return jobs, nil
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if result := s.getDB(ctx).Create(&job); result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job := model.NewJobFromId(id)
	result := s.getDB(ctx).Preload("Layers", layersInOrder).First(&job)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return job, nil
}

func (s *JobStore) Delete(ctx context.Context, id uuid.UUID) error {
	job := model.NewJobFromId(id)
	result := s.getDB(ctx).Unscoped().Delete(&job)
	if result.Error != nil {
		return translateError(result.Error)
	}
	return nil
}

func (s *JobStore) Update(ctx context.Context, job *model.Job) (*model.Job, error) {
	result := s.getDB(ctx).Save(job)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return job, nil
}

// UpdateHeartbeat refreshes the liveness timestamp only. It deliberately does
// not touch any other column so the execution loop can call it concurrently
// with progress writes.
func (s *JobStore) UpdateHeartbeat(ctx context.Context, id uuid.UUID, t time.Time) error {
	result := s.getDB(ctx).Model(&model.Job{}).Where("id = ?", id).Update("heartbeat_at", t)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, lastLayerIdx int) error {
	result := s.getDB(ctx).Model(&model.Job{}).Where("id = ?", id).Update("last_layer_idx", lastLayerIdx)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) AssignPen(ctx context.Context, layerID uuid.UUID, penID uuid.UUID) (*model.Layer, error) {
	var layer model.Layer
	db := s.getDB(ctx)
	if result := db.First(&layer, "id = ?", layerID); result.Error != nil {
		return nil, translateError(result.Error)
	}
	layer.PenID = &penID
	if result := db.Save(&layer); result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &layer, nil
}

func (s *JobStore) MarkLayersPlanned(ctx context.Context, jobID uuid.UUID) error {
	result := s.getDB(ctx).Model(&model.Layer{}).Where("job_id = ?", jobID).Update("planned", true)
	if result.Error != nil {
		return translateError(result.Error)
	}
	return nil
}

func layersInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("layers.order_index")
}

func translateError(err error) error {
	switch err {
	case gorm.ErrRecordNotFound:
		return ErrRecordNotFound
	case gorm.ErrDuplicatedKey:
		return ErrDuplicateKey
	default:
		return err
	}
}
