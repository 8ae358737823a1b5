package store

import "errors"

// Sentinel errors returned by the entity stores. The service layer maps
// them onto typed API errors; nothing above it sees gorm errors directly.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
)
