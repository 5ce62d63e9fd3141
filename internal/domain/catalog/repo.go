package catalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("catalog collection not found")

// Repository stores whole collections: writes overwrite the previous list.
type Repository interface {
	Put(ctx context.Context, kind Kind, clinicID, tpaCode string, items []Item) error
	Get(ctx context.Context, kind Kind, clinicID, tpaCode string) ([]Item, error)
	Delete(ctx context.Context, kind Kind, clinicID, tpaCode string) error
}
