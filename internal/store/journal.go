package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/plotterd/plotterd/internal/store/model"
)

type Journal interface {
	// Append assigns the next per-job sequence number and persists the entry.
	// Entries are never updated or deleted.
	Append(ctx context.Context, entry model.JournalEntry) (*model.JournalEntry, error)
	List(ctx context.Context, jobID uuid.UUID) (model.JournalEntryList, error)
	Last(ctx context.Context, jobID uuid.UUID) (*model.JournalEntry, error)
	InitialMigration() error
}

type JournalStore struct {
	db *gorm.DB
}

var _ Journal = (*JournalStore)(nil)

func NewJournalStore(db *gorm.DB) Journal {
	return &JournalStore{db: db}
}

func (s *JournalStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.JournalEntry{})
}

func (s *JournalStore) getDB(ctx context.Context) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

func (s *JournalStore) Append(ctx context.Context, entry model.JournalEntry) (*model.JournalEntry, error) {
	db := s.getDB(ctx)

	last, err := s.lastIn(db, entry.JobID)
	switch {
	case err == nil:
		entry.Seq = last.Seq + 1
	case errors.Is(err, ErrRecordNotFound):
		entry.Seq = 1
	default:
		return nil, err
	}

	if result := db.Create(&entry); result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &entry, nil
}

func (s *JournalStore) List(ctx context.Context, jobID uuid.UUID) (model.JournalEntryList, error) {
	var entries model.JournalEntryList
	result := s.getDB(ctx).Where("job_id = ?", jobID).Order("seq").Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

func (s *JournalStore) Last(ctx context.Context, jobID uuid.UUID) (*model.JournalEntry, error) {
	return s.lastIn(s.getDB(ctx), jobID)
}

func (s *JournalStore) lastIn(db *gorm.DB, jobID uuid.UUID) (*model.JournalEntry, error) {
	var entry model.JournalEntry
	result := db.Where("job_id = ?", jobID).Order("seq DESC").First(&entry)
	if result.Error != nil {
		return nil, translateError(result.Error)
	}
	return &entry, nil
}
