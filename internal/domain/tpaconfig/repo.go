package tpaconfig

import (
	"context"
	"errors"
)

// ErrNotFound signals a missing config or mapping cache entry.
var ErrNotFound = errors.New("tpa config not found")

type Repository interface {
	Upsert(ctx context.Context, clinicID string, cfg *TPAConfig) error
	Get(ctx context.Context, clinicID, insCode string) (*TPAConfig, error)
	List(ctx context.Context, clinicID string) ([]*TPAConfig, error)
	Delete(ctx context.Context, clinicID, insCode string) error

	PutMapping(ctx context.Context, clinicID string, rows []MappingRow) error
	GetMapping(ctx context.Context, clinicID string) ([]MappingRow, error)
	DeleteMapping(ctx context.Context, clinicID string) error
}
