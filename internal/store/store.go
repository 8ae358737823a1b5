package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Pen() Pen
	Journal() Journal
	Checklist() Checklist
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db        *gorm.DB
	job       Job
	pen       Pen
	journal   Journal
	checklist Checklist
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:        db,
		job:       NewJobStore(db),
		pen:       NewPenStore(db),
		journal:   NewJournalStore(db),
		checklist: NewChecklistStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Pen() Pen {
	return s.pen
}

func (s *DataStore) Journal() Journal {
	return s.journal
}

func (s *DataStore) Checklist() Checklist {
	return s.checklist
}

func (s *DataStore) InitialMigration() error {
	for _, st := range []interface{ InitialMigration() error }{s.job, s.pen, s.journal, s.checklist} {
		if err := st.InitialMigration(); err != nil {
			return err
		}
	}
	return nil
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
