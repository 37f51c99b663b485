// Package store keeps the processed output of each uploaded document: the
// component hierarchy, the relations mapping and the IMF document.
package store

import (
	"context"
	"time"
)

// Record is the processed output of one document, keyed by Name (the upload's
// base name without extension). The payloads are JSON, stored verbatim so
// key order survives.
type Record struct {
	Name      string
	Hierarchy []byte
	Relations []byte
	Document  []byte
	UpdatedAt time.Time
}

// Store persists records.
type Store interface {
	// Save writes rec, replacing any record with the same name.
	Save(ctx context.Context, rec Record) error
	// Load returns the record named name, or a NOT_FOUND error.
	Load(ctx context.Context, name string) (*Record, error)
	// List returns the names of all records in ascending order.
	List(ctx context.Context) ([]string, error)
	Close() error
}
