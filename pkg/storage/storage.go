package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for unknown identifiers.
var ErrNotFound = errors.New("log record not found")

// Store defines the interface for persisting capture records
type Store interface {
	Put(ctx context.Context, rec *CaptureRecord) error
	Get(ctx context.Context, id string) (*CaptureRecord, error)
	// List returns records newest first. When before is non-nil only records
	// with a timestamp strictly below it are returned.
	List(ctx context.Context, limit int, before *int64) ([]*CaptureRecord, error)

	// Health check
	Ping(ctx context.Context) error
}
