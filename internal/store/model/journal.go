package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JournalEntry is one immutable record of the append-only transition log.
// The journal is the authoritative replay source for recovery: a job's
// current state must always equal the ToState of its last entry.
type JournalEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	JobID     uuid.UUID `gorm:"index:journal_job_seq,unique;not null"`
	Seq       int       `gorm:"index:journal_job_seq,unique;not null"`
	FromState string    `gorm:"not null"`
	ToState   string    `gorm:"not null"`
	Reason    string
	Metadata  []byte    `gorm:"type:jsonb"`
	CreatedAt time.Time
}

type JournalEntryList []JournalEntry

func (e *JournalEntry) MetadataMap() map[string]string {
	if len(e.Metadata) == 0 {
		return map[string]string{}
	}
	m := map[string]string{}
	_ = json.Unmarshal(e.Metadata, &m)
	return m
}

func (e *JournalEntry) SetMetadata(m map[string]string) {
	if len(m) == 0 {
		e.Metadata = nil
		return
	}
	val, _ := json.Marshal(m)
	e.Metadata = val
}
