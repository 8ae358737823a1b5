package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Transactions travel inside the context: a store method first looks for a
// bound transaction via FromContext and only then falls back to its plain
// connection. This lets the FSM commit a journal append and a job update
// atomically without the stores knowing about each other.

type txKey struct{}

type tx struct {
	db *gorm.DB
}

func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	if _, bound := ctx.Value(txKey{}).(*tx); bound {
		// nested calls join the outer transaction
		return ctx, nil
	}

	conn := db.Session(&gorm.Session{Context: ctx}).Begin()
	if conn.Error != nil {
		return ctx, errors.Wrap(conn.Error, "beginning transaction")
	}
	return context.WithValue(ctx, txKey{}, &tx{db: conn}), nil
}

// FromContext returns the transaction bound to the context, or nil if the
// context carries none.
func FromContext(ctx context.Context) *gorm.DB {
	if t, bound := ctx.Value(txKey{}).(*tx); bound && t != nil && t.db != nil {
		return t.db
	}
	return nil
}

// Commit commits the transaction carried by the context, if any, and returns
// a context without it. Committing twice is a no-op.
func Commit(ctx context.Context) (context.Context, error) {
	return finish(ctx, func(db *gorm.DB) error { return db.Commit().Error })
}

// Rollback discards the transaction carried by the context, if any.
func Rollback(ctx context.Context) (context.Context, error) {
	return finish(ctx, func(db *gorm.DB) error { return db.Rollback().Error })
}

func finish(ctx context.Context, end func(*gorm.DB) error) (context.Context, error) {
	t, bound := ctx.Value(txKey{}).(*tx)
	if !bound || t == nil || t.db == nil {
		return ctx, nil
	}
	db := t.db
	t.db = nil
	return context.WithValue(ctx, txKey{}, nil), end(db)
}
